package filter

import (
	"fmt"
	"time"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/config"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/paper"
)

// Selection is the result of a freshness decision.
type Selection struct {
	// Fresh holds the qualifying entries, oldest first.
	Fresh []paper.Entry
	// Latest is the id of the newest qualifying entry; empty when nothing qualified.
	Latest string
}

// Strategy decides which fetched entries are new.
// Entries are passed in source order, newest first.
type Strategy interface {
	Name() string
	// Persistent reports whether the strategy reads and writes a watermark.
	Persistent() bool
	Select(entries []paper.Entry, mark string, now time.Time) Selection
}

// New returns the strategy configured for a category.
func New(mode string, window time.Duration) (Strategy, error) {
	switch mode {
	case config.ModeID, "":
		return IDWatermark{Window: window}, nil
	case config.ModeTime:
		return TimeWindow{Lookback: window}, nil
	default:
		return nil, fmt.Errorf("unknown freshness mode %q", mode)
	}
}

// IDWatermark accumulates entries until the previously delivered id is reached.
// Window bounds how old an accumulated entry may be; zero disables the bound.
type IDWatermark struct {
	Window time.Duration
}

func (IDWatermark) Name() string     { return config.ModeID }
func (IDWatermark) Persistent() bool { return true }

// Select implements Strategy. An empty mark means first run: every entry is considered.
func (s IDWatermark) Select(entries []paper.Entry, mark string, now time.Time) Selection {
	var threshold time.Time
	if s.Window > 0 {
		threshold = now.Add(-s.Window)
	}

	scanned := make([]paper.Entry, 0, len(entries))
	for _, e := range entries {
		// A revision of the watermarked paper carries a new version suffix.
		if paper.SameID(e.ID, mark) {
			break
		}
		if !threshold.IsZero() && e.PublishedAt.Before(threshold) {
			continue
		}
		scanned = append(scanned, e)
	}
	return newSelection(scanned)
}

// TimeWindow accepts every entry published within Lookback of now. It keeps no state,
// so runs must be spaced exactly Lookback apart to avoid gaps or repeats.
type TimeWindow struct {
	Lookback time.Duration
}

func (TimeWindow) Name() string     { return config.ModeTime }
func (TimeWindow) Persistent() bool { return false }

// Select implements Strategy; the mark is ignored.
func (s TimeWindow) Select(entries []paper.Entry, _ string, now time.Time) Selection {
	threshold := now.Add(-s.Lookback)

	scanned := make([]paper.Entry, 0, len(entries))
	for _, e := range entries {
		if e.PublishedAt.Before(threshold) {
			continue
		}
		scanned = append(scanned, e)
	}
	return newSelection(scanned)
}

// newSelection reverses newest-first scan order into oldest-first output.
func newSelection(scanned []paper.Entry) Selection {
	if len(scanned) == 0 {
		return Selection{}
	}

	fresh := make([]paper.Entry, len(scanned))
	for i, e := range scanned {
		fresh[len(scanned)-1-i] = e
	}
	return Selection{Fresh: fresh, Latest: scanned[0].ID}
}
