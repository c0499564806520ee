package chat

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatLocksSerialize(t *testing.T) {
	t.Parallel()

	var locks chatLocks
	chatID := uuid.New()

	var wg sync.WaitGroup
	var inTurn atomic.Int32
	var overlapped atomic.Bool
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(chatID)
			defer unlock()
			if inTurn.Add(1) > 1 {
				overlapped.Store(true)
			}
			runtime.Gosched()
			inTurn.Add(-1)
		}()
	}
	wg.Wait()
	assert.False(t, overlapped.Load(), "turns on one chat never overlap")
}

func TestChatLocksEvictIdleEntries(t *testing.T) {
	t.Parallel()

	var locks chatLocks
	a, b := uuid.New(), uuid.New()

	unlockA := locks.lock(a)
	unlockB := locks.lock(b)
	locks.mu.Lock()
	require.Len(t, locks.locks, 2)
	locks.mu.Unlock()

	unlockA()
	unlockB()
	locks.mu.Lock()
	assert.Empty(t, locks.locks, "released chats leave no entry behind")
	locks.mu.Unlock()

	// A waiter keeps the entry alive until the last release.
	unlockA = locks.lock(a)
	waiting := make(chan func())
	go func() { waiting <- locks.lock(a) }()

	for {
		locks.mu.Lock()
		refs := locks.locks[a].refs
		locks.mu.Unlock()
		if refs == 2 {
			break
		}
		runtime.Gosched()
	}

	unlockA()
	unlockWaiter := <-waiting
	locks.mu.Lock()
	require.Len(t, locks.locks, 1)
	locks.mu.Unlock()

	unlockWaiter()
	locks.mu.Lock()
	assert.Empty(t, locks.locks)
	locks.mu.Unlock()
}
