package router

import (
	"fmt"
	"strings"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/config"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/paper"
)

// FragmentSeparator joins the fragments routed to one destination.
const FragmentSeparator = "\n\n"

// Route groups category fragments by destination and returns exactly one
// message per configured destination, in destination order. fragments[i]
// belongs to categories[i]; empty fragments are dropped. A destination left
// with nothing gets a placeholder message instead.
func Route(dests []config.Destination, categories []config.Category, fragments []string) []paper.Message {
	groups := make(map[string][]string, len(dests))
	routed := make(map[string][]string, len(dests))

	for i, cat := range categories {
		routed[cat.Destination] = append(routed[cat.Destination], cat.DisplayLabel())
		if i >= len(fragments) || strings.TrimSpace(fragments[i]) == "" {
			continue
		}
		groups[cat.Destination] = append(groups[cat.Destination], fragments[i])
	}

	messages := make([]paper.Message, 0, len(dests))
	for _, d := range dests {
		parts := groups[d.Name]
		if len(parts) == 0 {
			messages = append(messages, paper.Message{
				Destination: d.Name,
				Text:        Placeholder(d, routed[d.Name]),
				Placeholder: true,
			})
			continue
		}
		messages = append(messages, paper.Message{
			Destination: d.Name,
			Text:        strings.Join(parts, FragmentSeparator),
		})
	}
	return messages
}

// Placeholder returns the "no new items" text for a destination.
func Placeholder(d config.Destination, labels []string) string {
	if d.EmptyMessage != "" {
		return d.EmptyMessage
	}
	if len(labels) == 0 {
		return fmt.Sprintf("📭 No new papers for %s.", d.Name)
	}
	return fmt.Sprintf("📭 No new papers for %s.", strings.Join(labels, ", "))
}
