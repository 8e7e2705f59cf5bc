package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrNoKeywords is returned when a query would match the whole category.
var ErrNoKeywords = errors.New("query: keyword set is empty")

// Options are the static paging and ordering parameters of a search.
type Options struct {
	MaxResults int
	SortBy     string
	SortOrder  string
	Start      int
}

// Query is a (category, keyword-set) search, built fresh for every run.
type Query struct {
	Category string
	Keywords []string
	Options  Options
}

// Build validates the inputs and returns a query ANDing the category with
// an OR of exact-phrase abstract filters.
func Build(category string, keywords []string, opts Options) (Query, error) {
	seen := make(map[string]struct{}, len(keywords))
	cleaned := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.Join(strings.Fields(strings.ReplaceAll(k, `"`, "")), " ")
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, k)
	}
	if len(cleaned) == 0 {
		return Query{}, fmt.Errorf("category %q: %w", category, ErrNoKeywords)
	}

	return Query{
		Category: strings.TrimPrefix(strings.TrimSpace(category), "cat:"),
		Keywords: cleaned,
		Options:  opts,
	}, nil
}

// SearchQuery renders the search_query parameter, e.g.
// cat:cond-mat.mtrl-sci AND (abs:"machine learning" OR abs:"neural network").
func (q Query) SearchQuery() string {
	terms := make([]string, 0, len(q.Keywords))
	for _, k := range q.Keywords {
		terms = append(terms, fmt.Sprintf(`abs:"%s"`, k))
	}
	keywordFilter := "(" + strings.Join(terms, " OR ") + ")"
	if q.Category == "" {
		return keywordFilter
	}
	return "cat:" + q.Category + " AND " + keywordFilter
}

// Values returns the request parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("search_query", q.SearchQuery())
	v.Set("start", strconv.Itoa(q.Options.Start))
	if q.Options.MaxResults > 0 {
		v.Set("max_results", strconv.Itoa(q.Options.MaxResults))
	}
	if q.Options.SortBy != "" {
		v.Set("sortBy", q.Options.SortBy)
	}
	if q.Options.SortOrder != "" {
		v.Set("sortOrder", q.Options.SortOrder)
	}
	return v
}

// URL joins the base endpoint with the encoded parameters. Colons stay
// unescaped so field prefixes read the same way the API documents them.
func (q Query) URL(base string) string {
	encoded := strings.ReplaceAll(q.Values().Encode(), "%3A", ":")
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		}
	}
	return base + sep + encoded
}
