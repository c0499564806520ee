package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/amacdonaldai/gen-bionic/internal/security"
)

const (
	defaultSearchBaseURL  = "https://html.duckduckgo.com/html/"
	defaultSearchResults  = 4
	defaultMaxPageBytes   = 2 << 20 // 2MB per fetched page
	defaultContentRunes   = 6000
	searchRequestTimeout  = 30 * time.Second
	searchWebDescription  = "Search the web for current information on a query. Use for questions about recent events or anything outside your training data."
	searchWebNarration    = "You are a helpful assistant. Using the web search results in the conversation, answer the user's question. Extract the relevant facts, cite the source pages by name, and keep the answer concise."
	searchUserAgentHeader = "Mozilla/5.0 (compatible; gen-bionic/1.0)"
)

// SearchResult is one entry in the searchWeb payload.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchWebOutput is the persisted result of a searchWeb invocation.
type SearchWebOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	// Content is the readable text of the top result, truncated.
	Content string `json:"content,omitempty"`
}

// WebSearcher runs web searches against an HTML search endpoint and
// extracts readable page content from the top hit.
type WebSearcher struct {
	client     *http.Client
	baseURL    string
	maxResults int
	maxBytes   int64
}

// WebSearcherConfig configures a WebSearcher. Zero values take defaults;
// BaseURL is overridable for tests.
type WebSearcherConfig struct {
	Client     *http.Client
	BaseURL    string
	MaxResults int
	MaxBytes   int64
}

// NewWebSearcher creates a WebSearcher.
func NewWebSearcher(cfg WebSearcherConfig) *WebSearcher {
	s := &WebSearcher{
		client:     cfg.Client,
		baseURL:    cfg.BaseURL,
		maxResults: cfg.MaxResults,
		maxBytes:   cfg.MaxBytes,
	}
	if s.client == nil {
		// Result pages come from untrusted search output, so the default
		// client refuses private and metadata targets.
		s.client = security.NewURLValidator().Client(searchRequestTimeout)
	}
	if s.baseURL == "" {
		s.baseURL = defaultSearchBaseURL
	}
	if s.maxResults <= 0 {
		s.maxResults = defaultSearchResults
	}
	if s.maxBytes <= 0 {
		s.maxBytes = defaultMaxPageBytes
	}
	return s
}

// Definition returns the searchWeb tool backed by this searcher.
func (s *WebSearcher) Definition() *Definition {
	return &Definition{
		Name:            "searchWeb",
		Description:     searchWebDescription,
		Schema:          MustSchema[SearchWebInput](),
		NarrationPrompt: searchWebNarration,
		Prepare: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in SearchWebInput
			if err := json.Unmarshal(args, &in); err != nil {
				return "", err
			}
			return in.Query, nil
		},
		Meta: func(args json.RawMessage) string {
			var in SearchWebInput
			_ = json.Unmarshal(args, &in)
			return in.Query
		},
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in SearchWebInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return s.Search(ctx, in.Query)
		},
	}
}

// Search runs the query and assembles the output payload.
func (s *WebSearcher) Search(ctx context.Context, query string) (*SearchWebOutput, error) {
	results, err := s.search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := &SearchWebOutput{Query: query, Results: results}
	if len(results) > 0 {
		// Page fetch failures degrade to snippet-only results.
		if content, err := s.readPage(ctx, results[0].URL); err == nil {
			out.Content = content
		}
	}
	return out, nil
}

func (s *WebSearcher) search(ctx context.Context, query string) ([]SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", searchUserAgentHeader)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var results []SearchResult
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find(".result__title a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		results = append(results, SearchResult{
			Title:   strings.TrimSpace(link.Text()),
			URL:     resolveResultURL(href),
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").Text()),
		})
		return len(results) < s.maxResults
	})
	return results, nil
}

// readPage fetches a result page and extracts its readable text.
func (s *WebSearcher) readPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", searchUserAgentHeader)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(io.LimitReader(resp.Body, s.maxBytes), parsed)
	if err != nil {
		return "", fmt.Errorf("extract page content: %w", err)
	}

	content := strings.TrimSpace(article.TextContent)
	runes := []rune(content)
	if len(runes) > defaultContentRunes {
		content = string(runes[:defaultContentRunes])
	}
	return content, nil
}

// resolveResultURL unwraps the search engine's redirect links, which carry
// the target in the uddg query parameter.
func resolveResultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
