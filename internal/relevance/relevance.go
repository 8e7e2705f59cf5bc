package relevance

import (
	"strings"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/paper"
)

// Matcher keeps entries whose title or abstract mentions one of the keywords.
// It stands in for the server-side abstract filter on sources that take no query.
type Matcher struct{}

// New creates a matcher.
func New() *Matcher {
	return &Matcher{}
}

// Filter returns the matching entries in their original order.
// An empty keyword list matches nothing.
func (m *Matcher) Filter(entries []paper.Entry, keywords []string) []paper.Entry {
	phrases := normalizeAll(keywords)
	if len(phrases) == 0 || len(entries) == 0 {
		return nil
	}

	matched := make([]paper.Entry, 0, len(entries))
	for _, e := range entries {
		if len(m.Matches(e, phrases)) > 0 {
			matched = append(matched, e)
		}
	}
	return matched
}

// Matches lists the normalized phrases found in the entry.
func (m *Matcher) Matches(e paper.Entry, phrases []string) []string {
	text := normalize(e.Title + " " + e.Summary)

	var found []string
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			found = append(found, p)
		}
	}
	return found
}

func normalizeAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if n := normalize(strings.ReplaceAll(k, `"`, "")); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(paper.SingleLine(s))
}
