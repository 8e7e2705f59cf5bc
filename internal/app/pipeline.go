package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/config"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/filter"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/formatter"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/paper"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/router"
)

// ErrNotConfigured is returned when the pipeline is run without its required dependencies.
var ErrNotConfigured = errors.New("pipeline dependencies not configured")

// Clock is the time source (replaced in tests).
type Clock func() time.Time

// EntrySource fetches a category's entries, newest first.
type EntrySource interface {
	// Provider names the upstream serving the category; categories sharing
	// a provider are fetched sequentially.
	Provider(cat config.Category) string
	Fetch(ctx context.Context, cat config.Category) ([]paper.Entry, error)
}

// WatermarkStore keeps the last delivered identifier per category.
type WatermarkStore interface {
	Load(ctx context.Context, category string) (string, bool, error)
	Save(ctx context.Context, category, id string) error
}

// RelevanceFilter narrows entries to those mentioning a keyword.
type RelevanceFilter interface {
	Filter(entries []paper.Entry, keywords []string) []paper.Entry
}

// Summarizer produces an optional TL;DR per entry ID.
type Summarizer interface {
	Summarize(ctx context.Context, entries []paper.Entry) (map[string]string, error)
}

// Formatter renders a category's entries as a digest fragment.
type Formatter interface {
	Fragment(cat config.Category, entries []paper.Entry, budget int) string
}

// Sender posts one message per destination and reports each outcome.
type Sender interface {
	Deliver(ctx context.Context, messages []paper.Message) []paper.Delivery
}

// PipelineDeps lists the pipeline dependencies. Relevance and Summarizer are optional.
type PipelineDeps struct {
	Source     EntrySource
	Store      WatermarkStore
	Relevance  RelevanceFilter
	Summarizer Summarizer
	Formatter  Formatter
	Sender     Sender
	Clock      Clock
}

// Pipeline runs one fetch, dedup and delivery cycle.
type Pipeline struct {
	cfg        config.Root
	source     EntrySource
	store      WatermarkStore
	relevance  RelevanceFilter
	summarizer Summarizer
	formatter  Formatter
	sender     Sender
	clock      Clock
}

// NewPipeline creates a pipeline over an already validated configuration.
func NewPipeline(cfg config.Root, deps PipelineDeps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Pipeline{
		cfg:        cfg,
		source:     deps.Source,
		store:      deps.Store,
		relevance:  deps.Relevance,
		summarizer: deps.Summarizer,
		formatter:  deps.Formatter,
		sender:     deps.Sender,
		clock:      clock,
	}
}

// categoryRun carries one category through the run.
type categoryRun struct {
	cat        config.Category
	result     CategoryResult
	persistent bool
	latest     string
	entries    []paper.Entry
}

// Run executes the cycle. Fetch, watermark and delivery failures are recorded
// in the report rather than returned; the only errors are missing dependencies
// and cancellation.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if err := p.validateDeps(); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: p.clock(),
	}
	logf := func(format string, args ...any) {
		log.Printf("[%s] "+format, append([]any{report.RunID[:8]}, args...)...)
	}

	logf("Step 1: Fetching %d categories...", len(p.cfg.Categories))
	runs, err := p.collect(ctx, report.StartedAt)
	if err != nil {
		return report, err
	}

	logf("Step 2: Saving watermarks...")
	p.saveWatermarks(ctx, runs)

	if p.summarizer != nil {
		logf("Step 3: Summarizing papers...")
		p.summarize(ctx, runs)
	}

	logf("Step 4: Formatting and routing...")
	limit := p.cfg.Digest.MaxMessageLength
	if limit <= 0 {
		limit = formatter.DefaultMaxMessageLength
	}
	messages := router.Route(p.cfg.Destinations, p.cfg.Categories, p.render(runs, limit))
	for i, msg := range messages {
		messages[i].Text = formatter.Truncate(msg.Text, limit)
		if dropped := utf8.RuneCountInString(msg.Text) - utf8.RuneCountInString(messages[i].Text); dropped > 0 {
			logf("WARNING: message for %s truncated, %d characters dropped", msg.Destination, dropped)
		}
	}

	logf("Step 5: Delivering %d messages...", len(messages))
	report.Deliveries = p.sender.Deliver(ctx, messages)

	report.Categories = make([]CategoryResult, len(runs))
	for i, r := range runs {
		report.Categories[i] = r.result
	}
	report.FinishedAt = p.clock()

	logf("Run finished: %s", report.Summary())
	return report, ctx.Err()
}

// collect fetches and selects every category. Provider groups run
// concurrently; categories inside a group run in configuration order.
func (p *Pipeline) collect(ctx context.Context, now time.Time) ([]*categoryRun, error) {
	runs := make([]*categoryRun, len(p.cfg.Categories))
	var order []string
	groups := make(map[string][]int)

	for i, cat := range p.cfg.Categories {
		provider := p.source.Provider(cat)
		if _, ok := groups[provider]; !ok {
			order = append(order, provider)
		}
		groups[provider] = append(groups[provider], i)
		runs[i] = &categoryRun{
			cat: cat,
			result: CategoryResult{
				Category:    cat.Name,
				Destination: cat.Destination,
				Provider:    provider,
			},
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, provider := range order {
		indexes := groups[provider]
		g.Go(func() error {
			for _, i := range indexes {
				if err := gctx.Err(); err != nil {
					return err
				}
				p.selectCategory(gctx, runs[i], now)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return runs, fmt.Errorf("collect: %w", err)
	}
	return runs, nil
}

func (p *Pipeline) selectCategory(ctx context.Context, r *categoryRun, now time.Time) {
	cat := r.cat

	strategy, err := filter.New(cat.Freshness, cat.Window)
	if err != nil {
		log.Printf("Category %s: %v", cat.Name, err)
		r.result.FetchError = err.Error()
		return
	}
	r.result.Strategy = strategy.Name()
	r.persistent = strategy.Persistent()

	var mark string
	if r.persistent {
		id, ok, err := p.store.Load(ctx, cat.Name)
		switch {
		case err != nil:
			log.Printf("Category %s: watermark unreadable, treating as absent: %v", cat.Name, err)
		case ok:
			mark = id
		}
		r.result.PreviousWatermark = mark
	}

	fetched, err := p.source.Fetch(ctx, cat)
	if err != nil {
		// Fail closed: nothing is delivered and the watermark is left alone.
		log.Printf("Category %s: fetch failed: %v", cat.Name, err)
		r.result.FetchError = err.Error()
		return
	}
	r.result.Fetched = len(fetched)

	sel := strategy.Select(fetched, mark, now)
	r.latest = sel.Latest
	r.result.Fresh = len(sel.Fresh)

	r.entries = sel.Fresh
	if p.relevance != nil && (cat.IsFeed() || cat.LocalFilter) {
		r.entries = p.relevance.Filter(sel.Fresh, cat.Keywords)
	}
	r.result.Selected = len(r.entries)

	log.Printf("Category %s (%s): fetched %d, fresh %d, selected %d", cat.Name, r.result.Strategy, r.result.Fetched, r.result.Fresh, r.result.Selected)
}

// render formats every category, sharing each destination's message limit
// between its categories in configuration order. Entries that no longer fit
// are counted in the fragment's "…and N more" line.
func (p *Pipeline) render(runs []*categoryRun, limit int) []string {
	remaining := make(map[string]int, len(p.cfg.Destinations))
	fragments := make([]string, len(runs))

	for i, r := range runs {
		dest := r.cat.Destination
		budget, ok := remaining[dest]
		if !ok {
			budget = limit
		}
		fragments[i] = p.formatter.Fragment(r.cat, r.entries, max(budget, 1))
		if fragments[i] != "" {
			budget -= utf8.RuneCountInString(fragments[i]) + utf8.RuneCountInString(router.FragmentSeparator)
		}
		remaining[dest] = budget
	}
	return fragments
}

// saveWatermarks persists each persistent category's newest identifier, in
// configuration order. Saves happen before delivery; a failed delivery does
// not roll them back.
func (p *Pipeline) saveWatermarks(ctx context.Context, runs []*categoryRun) {
	for _, r := range runs {
		if !r.persistent || r.result.FetchError != "" || r.latest == "" {
			continue
		}
		if err := p.store.Save(ctx, r.cat.Name, r.latest); err != nil {
			log.Printf("Category %s: save watermark: %v", r.cat.Name, err)
			r.result.SaveError = err.Error()
			continue
		}
		r.result.Watermark = r.latest
	}
}

// summarize attaches TL;DRs. A failure leaves the digest without them.
func (p *Pipeline) summarize(ctx context.Context, runs []*categoryRun) {
	var all []paper.Entry
	seen := make(map[string]struct{})
	for _, r := range runs {
		for _, e := range r.entries {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			all = append(all, e)
		}
	}
	if len(all) == 0 {
		return
	}

	tldrs, err := p.summarizer.Summarize(ctx, all)
	if err != nil {
		log.Printf("WARNING: summaries skipped: %v", err)
		return
	}

	for _, r := range runs {
		for i := range r.entries {
			if tldr, ok := tldrs[r.entries[i].ID]; ok {
				r.entries[i].TLDR = tldr
			}
		}
	}
}

func (p *Pipeline) validateDeps() error {
	switch {
	case p.source == nil,
		p.store == nil,
		p.formatter == nil,
		p.sender == nil,
		p.clock == nil:
		return ErrNotConfigured
	default:
		return nil
	}
}
