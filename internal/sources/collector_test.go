package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/config"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query</title>
  <entry>
    <id>http://arxiv.org/abs/2401.00003v1</id>
    <published>2024-01-03T10:00:00Z</published>
    <updated>2024-01-03T10:00:00Z</updated>
    <title>Machine learning
      interatomic potentials</title>
    <summary>  We train a neural
      network.
    </summary>
    <link href="http://arxiv.org/abs/2401.00003v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2401.00003v1" rel="related" type="application/pdf"/>
    <category term="cond-mat.mtrl-sci" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2401.00002v2</id>
    <published>2024-01-02T10:00:00Z</published>
    <title>Second paper</title>
    <summary>Abstract two.</summary>
    <link href="http://arxiv.org/abs/2401.00002v2" rel="alternate" type="text/html"/>
  </entry>
</feed>`

const atomErrorFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/api/errors#incorrect_id_format_for_x</id>
    <title>Error</title>
    <summary>incorrect id format for x</summary>
  </entry>
</feed>`

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>physics.chem-ph updates on arXiv.org</title>
    <item>
      <title>Density functional theory at scale</title>
      <link>https://arxiv.org/abs/2401.00010</link>
      <description>arXiv:2401.00010v1 Announce Type: new
Abstract: We study &lt;i&gt;DFT&lt;/i&gt; &amp; friends.</description>
      <guid isPermaLink="false">oai:arXiv.org:2401.00010v1</guid>
      <category>physics.chem-ph</category>
      <pubDate>Wed, 03 Jan 2024 00:00:00 -0500</pubDate>
    </item>
    <item>
      <title>No link item</title>
      <guid isPermaLink="false">oai:arXiv.org:2401.00011v1</guid>
      <pubDate>Wed, 03 Jan 2024 00:00:00 -0500</pubDate>
    </item>
  </channel>
</rss>`

func newTestCollector(baseURL string, delay time.Duration) *Collector {
	return NewCollector(config.Provider{
		BaseURL:      baseURL,
		MaxResults:   50,
		SortBy:       "submittedDate",
		SortOrder:    "descending",
		RequestDelay: &delay,
		Timeout:      5 * time.Second,
	}, nil)
}

func TestCollector_Fetch_Atom(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(atomFeed))
	}))
	defer srv.Close()

	c := newTestCollector(srv.URL+"/api/query", 0)
	entries, err := c.Fetch(context.Background(), config.Category{
		Name:     "cond-mat.mtrl-sci",
		Keywords: []string{"machine learning"},
	})
	require.NoError(t, err)

	assert.Equal(t, `cat:cond-mat.mtrl-sci AND (abs:"machine learning")`, gotQuery)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "2401.00003v1", first.ID)
	assert.Equal(t, "Machine learning interatomic potentials", first.Title)
	assert.Equal(t, "We train a neural network.", first.Summary)
	assert.Equal(t, "http://arxiv.org/abs/2401.00003v1", first.Link)
	assert.Equal(t, "http://arxiv.org/pdf/2401.00003v1", first.PDFLink)
	assert.Equal(t, []string{"cond-mat.mtrl-sci", "cs.LG"}, first.Tags)
	assert.True(t, time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC).Equal(first.PublishedAt), first.PublishedAt)

	second := entries[1]
	assert.Equal(t, "2401.00002v2", second.ID)
	assert.Empty(t, second.PDFLink)
	assert.Empty(t, second.Tags)
}

func TestCollector_Fetch_AtomKeepsLessThan(t *testing.T) {
	const feed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2412.00042v1</id>
    <published>2024-12-02T10:00:00Z</published>
    <title>Superconductivity for $T&lt;T_c$ in layered cuprates</title>
    <summary>We find a gap when $x&lt;0.2$ &amp; the field is &lt;b&gt;weak&lt;/b&gt;.</summary>
    <link href="http://arxiv.org/abs/2412.00042v1" rel="alternate" type="text/html"/>
  </entry>
</feed>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	entries, err := newTestCollector(srv.URL, 0).Fetch(context.Background(), config.Category{
		Name:     "cond-mat.supr-con",
		Keywords: []string{"superconductivity"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Superconductivity for $T<T_c$ in layered cuprates", entries[0].Title)
	assert.Equal(t, "We find a gap when $x<0.2$ & the field is <b>weak</b>.", entries[0].Summary)
}

func TestCollector_Fetch_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(atomErrorFeed))
	}))
	defer srv.Close()

	c := newTestCollector(srv.URL, 0)
	_, err := c.Fetch(context.Background(), config.Category{Name: "cs.LG", Keywords: []string{"x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incorrect id format")
}

func TestCollector_Fetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestCollector(srv.URL, 0)
	_, err := c.Fetch(context.Background(), config.Category{Name: "cs.LG", Keywords: []string{"x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 503")
}

func TestCollector_Fetch_InvalidXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not xml"))
	}))
	defer srv.Close()

	c := newTestCollector(srv.URL, 0)
	_, err := c.Fetch(context.Background(), config.Category{Name: "cs.LG", Keywords: []string{"x"}})
	require.Error(t, err)
}

func TestCollector_Fetch_NoKeywords(t *testing.T) {
	c := newTestCollector("http://127.0.0.1:1", 0)
	_, err := c.Fetch(context.Background(), config.Category{Name: "cs.LG"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyword set is empty")
}

func TestCollector_Fetch_RSS(t *testing.T) {
	var gotRawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRawQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(rssFeed))
	}))
	defer srv.Close()

	c := newTestCollector("http://export.arxiv.org/api/query", 0)
	entries, err := c.Fetch(context.Background(), config.Category{
		Name:     "physics.chem-ph",
		Keywords: []string{"density functional theory"},
		FeedURL:  srv.URL + "/rss/physics.chem-ph",
	})
	require.NoError(t, err)
	assert.Empty(t, gotRawQuery)

	require.Len(t, entries, 2)
	assert.Equal(t, "2401.00010", entries[0].ID)
	assert.Equal(t, "We study DFT & friends.", entries[0].Summary)
	assert.Equal(t, []string{"physics.chem-ph"}, entries[0].Tags)
	assert.True(t, time.Date(2024, 1, 3, 5, 0, 0, 0, time.UTC).Equal(entries[0].PublishedAt), entries[0].PublishedAt)
	assert.Equal(t, "2401.00011v1", entries[1].ID)
}

func TestCollector_Provider(t *testing.T) {
	c := newTestCollector("http://export.arxiv.org/api/query", 0)
	assert.Equal(t, "export.arxiv.org", c.Provider(config.Category{Name: "cs.LG"}))
	assert.Equal(t, "rss.arxiv.org", c.Provider(config.Category{FeedURL: "https://RSS.arxiv.org/rss/cs.LG"}))
}

func TestCollector_URL(t *testing.T) {
	c := newTestCollector("http://export.arxiv.org/api/query", 0)
	u, err := c.URL(config.Category{Name: "cs.LG", Keywords: []string{"transformer"}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://export.arxiv.org/api/query?max_results=50"))

	u, err = c.URL(config.Category{FeedURL: " https://rss.arxiv.org/rss/cs.LG "})
	require.NoError(t, err)
	assert.Equal(t, "https://rss.arxiv.org/rss/cs.LG", u)
}

func TestCollector_ThrottlesSameProvider(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(atomFeed))
	}))
	defer srv.Close()

	const delay = 150 * time.Millisecond
	c := newTestCollector(srv.URL, delay)
	cat := config.Category{Name: "cs.LG", Keywords: []string{"x"}}

	start := time.Now()
	_, err := c.Fetch(context.Background(), cat)
	require.NoError(t, err)
	firstDone := time.Since(start)
	_, err = c.Fetch(context.Background(), cat)
	require.NoError(t, err)

	assert.Less(t, firstDone, delay, "first request must not wait")
	assert.GreaterOrEqual(t, time.Since(start), delay)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestThrottle_ContextCancelled(t *testing.T) {
	th := &throttle{delay: time.Hour, last: time.Now()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := th.do(ctx, func() error { called = true; return nil })
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestParseTime(t *testing.T) {
	fallback := time.Date(2024, 12, 3, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		parse bool
	}{
		{"RFC3339", "2024-01-02T18:59:59Z", true},
		{"RFC1123Z", "Mon, 02 Jan 2006 15:04:05 -0700", true},
		{"with spaces", "  Mon, 02 Jan 2006 15:04:05 -0700  ", true},
		{"empty uses fallback", "", false},
		{"invalid uses fallback", "yesterday", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTime(tt.value, fallback)
			assert.Equal(t, tt.parse, !got.Equal(fallback))
		})
	}
}

func TestAbstractOf(t *testing.T) {
	assert.Equal(t, "Body.", abstractOf("arXiv:2401.1 Announce Type: new \nAbstract: Body."))
	assert.Equal(t, "Plain", abstractOf("Plain"))
}
