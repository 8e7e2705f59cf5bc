package main

import (
	"context"
	"fmt"
	"log"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/app"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/config"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/formatter"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/gemini"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/relevance"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/slack"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/sources"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/state"
)

// store is what the CLI needs from a watermark store.
type store interface {
	app.WatermarkStore
	All(ctx context.Context) (map[string]string, error)
	Delete(ctx context.Context, category string) error
}

func newStore(cfg config.Root) store {
	if cfg.State.Mode == config.StateMemory {
		return state.NewMemoryStore(nil)
	}
	return state.NewFileStore(cfg.State.Path, cfg.State.Layout, cfg.LegacyCategory())
}

// newSummarizer returns nil when summaries are disabled or cannot be set up;
// the digest is then sent without them.
func newSummarizer(ctx context.Context, cfg config.Summary, env *config.EnvConfig) app.Summarizer {
	if !cfg.Enabled {
		return nil
	}
	client, err := gemini.NewClient(ctx, env.GeminiAPIKey)
	if err != nil {
		log.Printf("WARNING: summaries disabled: %v", err)
		return nil
	}
	return gemini.NewSummarizer(client, cfg)
}

// buildPipeline wires the production dependencies. sender and st override the
// Slack sink and configured store when non-nil.
func buildPipeline(ctx context.Context, cfg config.Root, st app.WatermarkStore, sender app.Sender) *app.Pipeline {
	env := config.LoadEnvConfig(cfg.Destinations)

	if sender == nil {
		for _, name := range env.Missing(cfg.Destinations) {
			log.Printf("WARNING: destination %q has no webhook configured; its message will be skipped", name)
		}
		sender = slack.NewSender(slack.NewClient(nil), env.Webhooks)
	}
	if st == nil {
		st = newStore(cfg)
	}

	return app.NewPipeline(cfg, app.PipelineDeps{
		Source:     sources.NewCollector(cfg.Provider, nil),
		Store:      st,
		Relevance:  relevance.New(),
		Summarizer: newSummarizer(ctx, cfg.Summary, env),
		Formatter:  formatter.NewFormatter(cfg.Digest),
		Sender:     sender,
	})
}

func loadConfig(path string) (config.Root, error) {
	cfg, err := config.LoadRoot(path)
	if err != nil {
		return config.Root{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}
