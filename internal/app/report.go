package app

import (
	"fmt"
	"time"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/paper"
)

// CategoryResult records what happened to one category in a run.
type CategoryResult struct {
	Category          string `json:"category"`
	Destination       string `json:"destination"`
	Provider          string `json:"provider"`
	Strategy          string `json:"strategy"`
	Fetched           int    `json:"fetched"`
	Fresh             int    `json:"fresh"`
	Selected          int    `json:"selected"`
	PreviousWatermark string `json:"previous_watermark,omitempty"`
	Watermark         string `json:"watermark,omitempty"` // saved this run
	FetchError        string `json:"fetch_error,omitempty"`
	SaveError         string `json:"save_error,omitempty"`
}

// Report summarizes a run.
type Report struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Categories []CategoryResult `json:"categories"`
	Deliveries []paper.Delivery `json:"deliveries"`
}

// Failed reports whether any fetch, watermark save or delivery failed.
// Skipped deliveries (no webhook configured) are not failures.
func (r *Report) Failed() bool {
	if r == nil {
		return false
	}
	for _, c := range r.Categories {
		if c.FetchError != "" || c.SaveError != "" {
			return true
		}
	}
	for _, d := range r.Deliveries {
		if d.Status == paper.DeliveryFailed {
			return true
		}
	}
	return false
}

// Summary is a one-line description for logs.
func (r *Report) Summary() string {
	var selected, fetchFailed int
	for _, c := range r.Categories {
		selected += c.Selected
		if c.FetchError != "" {
			fetchFailed++
		}
	}
	counts := make(map[paper.DeliveryStatus]int)
	for _, d := range r.Deliveries {
		counts[d.Status]++
	}
	return fmt.Sprintf("%d papers from %d categories (%d fetch failures); deliveries: %d delivered, %d skipped, %d failed",
		selected, len(r.Categories), fetchFailed,
		counts[paper.DeliveryDelivered], counts[paper.DeliverySkipped], counts[paper.DeliveryFailed])
}
