package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arxivFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Attention Is All You Need</title>
    <published>2017-06-12T17:57:34Z</published>
    <summary>We propose the Transformer.</summary>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
  </entry>
  <entry>
    <title>Second Paper</title>
    <published>2017-07-01T00:00:00Z</published>
    <summary>Another abstract.</summary>
    <link href="http://arxiv.org/abs/9999.00001v1" rel="alternate" type="text/html"/>
    <author><name>Someone Else</name></author>
  </entry>
</feed>`

const arxivEmptyFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"></feed>`

func TestArxivSearch(t *testing.T) {
	t.Parallel()

	t.Run("parses feed entries", func(t *testing.T) {
		t.Parallel()

		var gotQuery string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("search_query")
			_, _ = w.Write([]byte(arxivFeedXML))
		}))
		defer srv.Close()

		c := NewArxivClient(ArxivClientConfig{Client: srv.Client(), BaseURL: srv.URL})
		out, err := c.Search(context.Background(), "transformers", "")
		require.NoError(t, err)

		assert.Equal(t, "all:transformers", gotQuery)
		assert.Empty(t, out.Notice)
		require.Len(t, out.Papers, 2)
		assert.Equal(t, "Attention Is All You Need", out.Papers[0].Title)
		assert.Equal(t, "http://arxiv.org/abs/1706.03762v7", out.Papers[0].Link)
		assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, out.Papers[0].Authors)
	})

	t.Run("year filter expands to a date range", func(t *testing.T) {
		t.Parallel()

		var gotQuery string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("search_query")
			_, _ = w.Write([]byte(arxivFeedXML))
		}))
		defer srv.Close()

		c := NewArxivClient(ArxivClientConfig{Client: srv.Client(), BaseURL: srv.URL})
		_, err := c.Search(context.Background(), "transformers", "2017")
		require.NoError(t, err)
		assert.Equal(t, "all:transformers AND submittedDate:[201701010000 TO 201712312359]", gotQuery)
	})

	t.Run("invalid time filter", func(t *testing.T) {
		t.Parallel()

		c := NewArxivClient(ArxivClientConfig{BaseURL: "http://never-contacted.invalid"})
		out, err := c.Search(context.Background(), "x", "last year")
		require.NoError(t, err)
		assert.Equal(t, arxivBadTimeFormat, out.Notice)
		assert.Empty(t, out.Papers)
	})

	t.Run("upstream http failure", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := NewArxivClient(ArxivClientConfig{Client: srv.Client(), BaseURL: srv.URL})
		out, err := c.Search(context.Background(), "x", "")
		require.NoError(t, err)
		assert.Equal(t, arxivHTTPError, out.Notice)
	})

	t.Run("empty feed", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(arxivEmptyFeedXML))
		}))
		defer srv.Close()

		c := NewArxivClient(ArxivClientConfig{Client: srv.Client(), BaseURL: srv.URL})
		out, err := c.Search(context.Background(), "no such topic", "")
		require.NoError(t, err)
		assert.Equal(t, arxivNoData, out.Notice)
	})
}

func TestSubmittedDateRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filter string
		want   string
		ok     bool
	}{
		{"2024", "[202401010000 TO 202412312359]", true},
		{"2024-02", "[202402010000 TO 202402292359]", true},
		{"2023-12", "[202312010000 TO 202312312359]", true},
		{"2024-13", "", false},
		{"24", "", false},
		{"yesterday", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			got, ok := submittedDateRange(tt.filter)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
