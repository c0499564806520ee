package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
	"github.com/amacdonaldai/gen-bionic/internal/log"
)

// Store manages chat persistence. Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a Store on an existing connection pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("session: store requires a connection pool")
	}
	if logger == nil {
		return nil, errors.New("session: store requires a logger")
	}
	return &Store{pool: pool, logger: logger}, nil
}

// NewPool opens a pgx connection pool and verifies connectivity.
func NewPool(ctx context.Context, connURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// CreateChat creates an empty chat.
func (s *Store) CreateChat(ctx context.Context, ownerID, title string) (*Chat, error) {
	if title == "" {
		title = conversation.DefaultTitle
	}
	chat := &Chat{ID: uuid.New(), OwnerID: ownerID, Title: title}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO chats (id, owner_id, title)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		chat.ID, ownerID, title,
	).Scan(&chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	s.logger.DebugContext(ctx, "created chat", "chat_id", chat.ID, "owner_id", ownerID)
	return chat, nil
}

// GetChat retrieves one chat's metadata.
func (s *Store) GetChat(ctx context.Context, id uuid.UUID) (*Chat, error) {
	chat := &Chat{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT owner_id, title, message_count, created_at, updated_at
		FROM chats WHERE id = $1`,
		id,
	).Scan(&chat.OwnerID, &chat.Title, &chat.MessageCount, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", id, err)
	}
	return chat, nil
}

// ListChats returns an owner's chats, most recently updated first.
func (s *Store) ListChats(ctx context.Context, ownerID string, limit, offset int) ([]*Chat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, title, message_count, created_at, updated_at
		FROM chats
		WHERE owner_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		chat := &Chat{}
		if err := rows.Scan(&chat.ID, &chat.OwnerID, &chat.Title, &chat.MessageCount, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and its messages.
func (s *Store) DeleteChat(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete chat %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChatNotFound
	}
	s.logger.DebugContext(ctx, "deleted chat", "chat_id", id)
	return nil
}

// SetTitle updates a chat's title.
func (s *Store) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chats SET title = $2, updated_at = now() WHERE id = $1`,
		id, title,
	)
	if err != nil {
		return fmt.Errorf("set title of chat %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChatNotFound
	}
	return nil
}

// Messages loads a chat's conversation log ordered by sequence number.
// Rows that fail to decode are skipped so one bad row cannot make the
// whole chat unreadable.
func (s *Store) Messages(ctx context.Context, chatID uuid.UUID) ([]conversation.Message, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT content FROM chat_messages
		WHERE chat_id = $1
		ORDER BY sequence_number ASC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("load messages of chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var msgs []conversation.Message
	for rows.Next() {
		var content []byte
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg conversation.Message
		if err := json.Unmarshal(content, &msg); err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable message row", "chat_id", chatID, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// AppendMessages appends messages to a chat's log as one transaction.
// The chat row is locked for the duration so concurrent appends cannot
// race on sequence numbers; all messages land or none do.
func (s *Store) AppendMessages(ctx context.Context, chatID uuid.UUID, msgs ...conversation.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.DebugContext(ctx, "append transaction rollback", "error", err)
		}
	}()

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM chats WHERE id = $1 FOR UPDATE`, chatID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrChatNotFound
	}
	if err != nil {
		return fmt.Errorf("lock chat %s: %w", chatID, err)
	}

	var maxSeq int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) FROM chat_messages WHERE chat_id = $1`,
		chatID,
	).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("read max sequence of chat %s: %w", chatID, err)
	}

	for i, msg := range msgs {
		content, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message %d: %w", i, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_messages (id, chat_id, sequence_number, role, content)
			VALUES ($1, $2, $3, $4, $5)`,
			msg.ID, chatID, maxSeq+i+1, string(msg.Role), content,
		); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE chats SET message_count = $2, updated_at = now() WHERE id = $1`,
		chatID, maxSeq+len(msgs),
	); err != nil {
		return fmt.Errorf("update chat metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}

	s.logger.DebugContext(ctx, "appended messages", "chat_id", chatID, "count", len(msgs))
	return nil
}
