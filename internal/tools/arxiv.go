package tools

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultArxivBaseURL = "http://export.arxiv.org/api/query"
	arxivMaxResults     = 5
	arxivDescription    = "Search arXiv for academic papers on a topic, optionally filtered by submission time (YYYY or YYYY-MM)."
	arxivNarration      = "You are a helpful assistant. From the arXiv data in the conversation, present each paper's title, publication date, link, and a one-sentence summary. Tell the user if nothing relevant was found."
)

// Out-of-band outcomes the paper list cannot express. These travel as the
// tool result so the narration pass can explain them to the user.
const (
	arxivHTTPError     = "HTTP error!"
	arxivNoData        = "No relevant data found. Try again with another keyword!"
	arxivBadTimeFormat = "Invalid time format"
	arxivUnknownError  = "Something went wrong"
)

var (
	arxivYear      = regexp.MustCompile(`^\d{4}$`)
	arxivYearMonth = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
)

// ArxivPaper is one entry in the arxivApiCaller payload.
type ArxivPaper struct {
	Title     string   `json:"title"`
	Published string   `json:"published"`
	Summary   string   `json:"summary"`
	Link      string   `json:"link"`
	Authors   []string `json:"authors"`
}

// ArxivOutput is the persisted result of an arxivApiCaller invocation.
// Notice carries the out-of-band outcome when Papers is empty.
type ArxivOutput struct {
	Query  string       `json:"query"`
	Time   string       `json:"time,omitempty"`
	Papers []ArxivPaper `json:"papers,omitempty"`
	Notice string       `json:"notice,omitempty"`
}

// atomFeed mirrors the arXiv Atom response.
type atomFeed struct {
	Entries []struct {
		Title     string `xml:"title"`
		Published string `xml:"published"`
		Summary   string `xml:"summary"`
		Links     []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Authors []struct {
			Name string `xml:"name"`
		} `xml:"author"`
	} `xml:"entry"`
}

// ArxivClient queries the arXiv export API.
type ArxivClient struct {
	client  *http.Client
	baseURL string
}

// ArxivClientConfig configures an ArxivClient. BaseURL is overridable for
// tests.
type ArxivClientConfig struct {
	Client  *http.Client
	BaseURL string
}

// NewArxivClient creates an ArxivClient.
func NewArxivClient(cfg ArxivClientConfig) *ArxivClient {
	c := &ArxivClient{client: cfg.Client, baseURL: cfg.BaseURL}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	if c.baseURL == "" {
		c.baseURL = defaultArxivBaseURL
	}
	return c
}

// Definition returns the arxivApiCaller tool backed by this client.
func (c *ArxivClient) Definition() *Definition {
	return &Definition{
		Name:            "arxivApiCaller",
		Description:     arxivDescription,
		Schema:          MustSchema[ArxivInput](),
		NarrationPrompt: arxivNarration,
		Prepare: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in ArxivInput
			if err := json.Unmarshal(args, &in); err != nil {
				return "", err
			}
			return strings.TrimSpace(in.Query + " " + in.Time), nil
		},
		Meta: func(args json.RawMessage) string {
			var in ArxivInput
			_ = json.Unmarshal(args, &in)
			return strings.TrimSpace(in.Query + " " + in.Time)
		},
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in ArxivInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return c.Search(ctx, in.Query, in.Time)
		},
	}
}

// Search queries arXiv. Bad time filters, empty feeds, and upstream HTTP
// failures are reported through Notice rather than an error: the user can
// act on them, so they are tool output, not invocation failures.
func (c *ArxivClient) Search(ctx context.Context, query, timeFilter string) (*ArxivOutput, error) {
	out := &ArxivOutput{Query: query, Time: timeFilter}

	searchQuery := "all:" + query
	if timeFilter != "" {
		rangeExpr, ok := submittedDateRange(timeFilter)
		if !ok {
			out.Notice = arxivBadTimeFormat
			return out, nil
		}
		searchQuery += " AND submittedDate:" + rangeExpr
	}

	params := url.Values{
		"search_query": {searchQuery},
		"start":        {"0"},
		"max_results":  {fmt.Sprint(arxivMaxResults)},
		"sortBy":       {"relevance"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		out.Notice = arxivHTTPError
		return out, nil
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		out.Notice = arxivUnknownError
		return out, nil
	}
	if len(feed.Entries) == 0 {
		out.Notice = arxivNoData
		return out, nil
	}

	for _, e := range feed.Entries {
		paper := ArxivPaper{
			Title:     strings.TrimSpace(e.Title),
			Published: e.Published,
			Summary:   strings.TrimSpace(e.Summary),
		}
		for _, l := range e.Links {
			if l.Rel == "alternate" || paper.Link == "" {
				paper.Link = l.Href
			}
		}
		for _, a := range e.Authors {
			paper.Authors = append(paper.Authors, a.Name)
		}
		out.Papers = append(out.Papers, paper)
	}
	return out, nil
}

// submittedDateRange converts a YYYY or YYYY-MM filter to the API's
// [from TO to] range expression.
func submittedDateRange(filter string) (string, bool) {
	switch {
	case arxivYear.MatchString(filter):
		return fmt.Sprintf("[%s01010000 TO %s12312359]", filter, filter), true
	case arxivYearMonth.MatchString(filter):
		start, err := time.Parse("2006-01", filter)
		if err != nil {
			return "", false
		}
		end := start.AddDate(0, 1, 0).Add(-time.Minute)
		return fmt.Sprintf("[%s TO %s]", start.Format("200601021504"), end.Format("200601021504")), true
	default:
		return "", false
	}
}
