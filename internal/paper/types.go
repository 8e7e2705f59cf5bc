package paper

import (
	"strings"
	"time"
)

// Entry is one feed item after normalization.
type Entry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Link        string    `json:"link"`
	PDFLink     string    `json:"pdf_link,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	TLDR        string    `json:"tldr,omitempty"` // filled by the optional summarizer
}

// DisplayTitle returns the title collapsed to a single line.
func (e Entry) DisplayTitle() string {
	return SingleLine(e.Title)
}

// PreferredLink returns the PDF link when the source provided one.
func (e Entry) PreferredLink() string {
	if e.PDFLink != "" {
		return e.PDFLink
	}
	return e.Link
}

// TagsOr returns the entry tags, or the fallback label when the entry has none.
func (e Entry) TagsOr(fallback string) []string {
	if len(e.Tags) > 0 {
		return e.Tags
	}
	if fallback == "" {
		return nil
	}
	return []string{fallback}
}

// SingleLine collapses line breaks and runs of whitespace into single spaces.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IDFromLink extracts the arXiv identifier from an abstract URL.
// Links without an /abs/ segment are returned trimmed, unchanged.
func IDFromLink(link string) string {
	link = strings.TrimSpace(link)
	if i := strings.LastIndex(link, "/abs/"); i >= 0 {
		return link[i+len("/abs/"):]
	}
	return link
}

// BaseID strips the version suffix from an arXiv identifier
// ("2401.01234v2" -> "2401.01234"). A revised paper keeps its base ID.
func BaseID(id string) string {
	id = strings.TrimSpace(id)
	i := strings.LastIndexByte(id, 'v')
	if i <= 0 || i == len(id)-1 || !isDigit(id[i-1]) {
		return id
	}
	for j := i + 1; j < len(id); j++ {
		if !isDigit(id[j]) {
			return id
		}
	}
	return id[:i]
}

// SameID reports whether two identifiers name the same paper, ignoring versions.
func SameID(a, b string) bool {
	return a != "" && b != "" && BaseID(a) == BaseID(b)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// Message is the aggregated text posted to one destination in a run.
type Message struct {
	Destination string `json:"destination"`
	Text        string `json:"text"`
	Placeholder bool   `json:"placeholder"`
}

// DeliveryStatus describes the outcome of one delivery attempt.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliverySkipped   DeliveryStatus = "skipped"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Delivery records what happened to a destination's message.
type Delivery struct {
	Destination string         `json:"destination"`
	Status      DeliveryStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
}
