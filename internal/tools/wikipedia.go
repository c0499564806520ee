package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultWikipediaBaseURL = "https://en.wikipedia.org/w/api.php"
	wikipediaSearchLimit    = 5
	wikipediaDescription    = "Look up a subject on Wikipedia. Use for encyclopedic background on people, places, concepts, and history."
	wikipediaNarration      = "You are a helpful assistant. Summarize the Wikipedia content in the conversation into a clear answer to the user's question. Mention the article title."
)

// WikipediaPage is one search hit in the wikipediaSearch payload.
type WikipediaPage struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// WikipediaOutput is the persisted result of a wikipediaSearch invocation.
type WikipediaOutput struct {
	Query string          `json:"query"`
	Pages []WikipediaPage `json:"pages"`
	// Extract is the plain-text intro of the top article.
	Extract string `json:"extract,omitempty"`
}

// WikipediaClient queries the MediaWiki action API.
type WikipediaClient struct {
	client  *http.Client
	baseURL string
}

// WikipediaClientConfig configures a WikipediaClient. BaseURL is
// overridable for tests.
type WikipediaClientConfig struct {
	Client  *http.Client
	BaseURL string
}

// NewWikipediaClient creates a WikipediaClient.
func NewWikipediaClient(cfg WikipediaClientConfig) *WikipediaClient {
	c := &WikipediaClient{client: cfg.Client, baseURL: cfg.BaseURL}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	if c.baseURL == "" {
		c.baseURL = defaultWikipediaBaseURL
	}
	return c
}

// Definition returns the wikipediaSearch tool backed by this client.
func (c *WikipediaClient) Definition() *Definition {
	return &Definition{
		Name:            "wikipediaSearch",
		Description:     wikipediaDescription,
		Schema:          MustSchema[WikipediaInput](),
		NarrationPrompt: wikipediaNarration,
		Prepare: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in WikipediaInput
			if err := json.Unmarshal(args, &in); err != nil {
				return "", err
			}
			return in.Query, nil
		},
		Meta: func(args json.RawMessage) string {
			var in WikipediaInput
			_ = json.Unmarshal(args, &in)
			return in.Query
		},
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in WikipediaInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return c.Search(ctx, in.Query)
		},
	}
}

// wikiSearchResponse mirrors the list=search API shape.
type wikiSearchResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			PageID  int    `json:"pageid"`
		} `json:"search"`
	} `json:"query"`
}

// wikiExtractResponse mirrors the prop=extracts API shape.
type wikiExtractResponse struct {
	Query struct {
		Pages map[string]struct {
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

// Search runs a full-text search and fetches the intro extract of the top
// hit. An extract fetch failure degrades to search hits only.
func (c *WikipediaClient) Search(ctx context.Context, query string) (*WikipediaOutput, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {fmt.Sprint(wikipediaSearchLimit)},
		"format":   {"json"},
	}
	var sr wikiSearchResponse
	if err := c.get(ctx, params, &sr); err != nil {
		return nil, fmt.Errorf("wikipedia search: %w", err)
	}

	out := &WikipediaOutput{Query: query}
	for _, hit := range sr.Query.Search {
		out.Pages = append(out.Pages, WikipediaPage{
			Title:   hit.Title,
			Snippet: stripMarkup(hit.Snippet),
			URL:     articleURL(hit.Title),
		})
	}
	if len(out.Pages) == 0 {
		return out, nil
	}

	extract, err := c.extract(ctx, out.Pages[0].Title)
	if err == nil {
		out.Extract = extract
	}
	return out, nil
}

func (c *WikipediaClient) extract(ctx context.Context, title string) (string, error) {
	params := url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"titles":      {title},
		"format":      {"json"},
	}
	var er wikiExtractResponse
	if err := c.get(ctx, params, &er); err != nil {
		return "", err
	}
	for _, page := range er.Query.Pages {
		return strings.TrimSpace(page.Extract), nil
	}
	return "", nil
}

// articleURL builds the canonical article link. url.URL escapes the path
// minimally, keeping parentheses literal the way Wikipedia publishes them.
func articleURL(title string) string {
	u := url.URL{
		Scheme: "https",
		Host:   "en.wikipedia.org",
		Path:   "/wiki/" + strings.ReplaceAll(title, " ", "_"),
	}
	return u.String()
}

func (c *WikipediaClient) get(ctx context.Context, params url.Values, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

// stripMarkup drops the highlight markup the search API embeds in snippets.
func stripMarkup(snippet string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snippet))
	if err != nil {
		return snippet
	}
	return strings.TrimSpace(doc.Text())
}
