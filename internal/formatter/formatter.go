package formatter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/config"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/paper"
)

const (
	// DefaultMaxMessageLength is the webhook text limit.
	DefaultMaxMessageLength = 40000
	ellipsis                = "…"
)

// mrkdwn control characters; anything else is literal text in Slack.
var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Formatter renders one category's qualifying entries as a digest fragment.
type Formatter struct {
	maxEntries int
}

// NewFormatter creates a formatter.
func NewFormatter(cfg config.Digest) *Formatter {
	return &Formatter{maxEntries: cfg.MaxEntriesPerCategory}
}

// Fragment renders entries (oldest first) for a category in at most budget
// runes; a non-positive budget means no bound. Entries that do not fit, or
// exceed the per-category cap, are counted in a trailing "…and N more" line.
// It returns "" for zero entries so callers can omit the section.
func (f *Formatter) Fragment(cat config.Category, entries []paper.Entry, budget int) string {
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	head := header(cat, len(entries))
	sb.WriteString(head)
	used := utf8.RuneCountInString(head)

	limit := len(entries)
	if f.maxEntries > 0 && limit > f.maxEntries {
		limit = f.maxEntries
	}
	reserve := utf8.RuneCountInString(more(len(entries)))

	shown := 0
	for _, e := range entries[:limit] {
		b := bullet(cat, e)
		n := utf8.RuneCountInString(b)
		if budget > 0 {
			// The last entry loses its trailing blank line; any other needs
			// room for the "…and N more" line should the next one not fit.
			need := used + utf8.RuneCountInString(strings.TrimRight(b, "\n"))
			if shown+1 < len(entries) {
				need = used + n + reserve
			}
			if need > budget {
				break
			}
		}
		sb.WriteString(b)
		used += n
		shown++
	}

	if hidden := len(entries) - shown; hidden > 0 {
		sb.WriteString(more(hidden))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func header(cat config.Category, n int) string {
	noun := "papers"
	if n == 1 {
		noun = "paper"
	}
	emoji := cat.Emoji
	if emoji != "" {
		emoji += " "
	}
	return fmt.Sprintf("%s*%s: %d new %s*\n", emoji, escaper.Replace(cat.DisplayLabel()), n, noun)
}

func bullet(cat config.Category, e paper.Entry) string {
	label := "abs"
	if e.PDFLink != "" {
		label = "PDF"
	}
	tags := strings.Join(e.TagsOr(cat.Name), ", ")

	var sb strings.Builder
	fmt.Fprintf(&sb, "• *%s*\n", escaper.Replace(e.DisplayTitle()))
	fmt.Fprintf(&sb, "  📄 <%s|%s> | 🏷️ %s\n", e.PreferredLink(), label, escaper.Replace(tags))
	if tldr := paper.SingleLine(e.TLDR); tldr != "" {
		fmt.Fprintf(&sb, "  💡 %s\n", escaper.Replace(tldr))
	}
	sb.WriteString("\n")
	return sb.String()
}

func more(n int) string {
	return fmt.Sprintf("…and %d more\n", n)
}

// Truncate shortens text to at most limit runes, ending with an ellipsis.
// A non-positive limit uses the webhook default.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		limit = DefaultMaxMessageLength
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)
	cut := limit - utf8.RuneCountInString(ellipsis)
	if cut < 0 {
		cut = 0
	}
	return string(runes[:cut]) + ellipsis
}
