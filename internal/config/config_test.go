package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
provider:
  max_results: 100
  request_delay: 3s
keyword_sets:
  ml:
    - machine learning
    - neural network
categories:
  - name: cond-mat.mtrl-sci
    label: Materials Science
    keyword_set: ml
    destination: materials
  - name: cs.LG
    keywords: [interatomic potential]
    destination: ml
    freshness: time
  - name: physics.chem-ph
    keywords: [density functional theory]
    destination: materials
    feed_url: https://rss.arxiv.org/rss/physics.chem-ph
destinations:
  - name: materials
    webhook_env: SLACK_WEBHOOK_URL
  - name: ml
    webhook_env: SLACK_WEBHOOK_URL_ML
    empty_message: nothing today
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://export.arxiv.org/api/query", cfg.Provider.BaseURL)
	assert.Equal(t, 100, cfg.Provider.MaxResults)
	assert.Equal(t, 3*time.Second, cfg.Provider.Delay())
	assert.Equal(t, 20*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, "submittedDate", cfg.Provider.SortBy)
	assert.Equal(t, "descending", cfg.Provider.SortOrder)

	assert.Equal(t, StateFile, cfg.State.Mode)
	assert.Equal(t, LayoutJSON, cfg.State.Layout)
	assert.Equal(t, "state/watermarks.json", cfg.State.Path)

	require.Len(t, cfg.Categories, 3)
	mtrl := cfg.Categories[0]
	assert.Equal(t, ModeID, mtrl.Freshness)
	assert.Equal(t, 72*time.Hour, mtrl.Window)
	assert.Equal(t, "🎓", mtrl.Emoji)
	assert.Equal(t, []string{"machine learning", "neural network"}, mtrl.Keywords)
	assert.Equal(t, "Materials Science", mtrl.DisplayLabel())
	assert.False(t, mtrl.IsFeed())

	lg := cfg.Categories[1]
	assert.Equal(t, ModeTime, lg.Freshness)
	assert.Equal(t, 24*time.Hour, lg.Window)
	assert.Equal(t, "cs.LG", lg.DisplayLabel())

	assert.True(t, cfg.Categories[2].IsFeed())
	assert.Equal(t, "cond-mat.mtrl-sci", cfg.LegacyCategory())

	d, ok := cfg.Destination("ml")
	require.True(t, ok)
	assert.Equal(t, "nothing today", d.EmptyMessage)
	_, ok = cfg.Destination("nope")
	assert.False(t, ok)
}

func TestParse_RequestDelay(t *testing.T) {
	const base = `
categories: [{name: cs.LG, keywords: [x], destination: a}]
destinations: [{name: a, webhook_env: A}]
`
	tests := []struct {
		name     string
		provider string
		want     time.Duration
	}{
		{name: "default when omitted", provider: "", want: time.Second},
		{name: "explicit zero disables the delay", provider: "provider: {request_delay: 0s}", want: 0},
		{name: "explicit value", provider: "provider: {request_delay: 250ms}", want: 250 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.provider + base))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Provider.Delay())
		})
	}

	_, err := Parse([]byte("provider: {request_delay: -1s}" + base))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RequestDelay")
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no categories",
			yaml:    "destinations: [{name: a, webhook_env: A}]",
			wantErr: "Categories",
		},
		{
			name: "unknown destination",
			yaml: `
categories: [{name: cs.LG, keywords: [x], destination: b}]
destinations: [{name: a, webhook_env: A}]`,
			wantErr: `unknown destination "b"`,
		},
		{
			name: "empty keywords",
			yaml: `
categories: [{name: cs.LG, keywords: ["  "], destination: a}]
destinations: [{name: a, webhook_env: A}]`,
			wantErr: "at least one keyword",
		},
		{
			name: "unknown keyword set",
			yaml: `
categories: [{name: cs.LG, keyword_set: nope, destination: a}]
destinations: [{name: a, webhook_env: A}]`,
			wantErr: `unknown keyword_set "nope"`,
		},
		{
			name: "duplicate category",
			yaml: `
categories:
  - {name: cs.LG, keywords: [x], destination: a}
  - {name: cs.LG, keywords: [y], destination: a}
destinations: [{name: a, webhook_env: A}]`,
			wantErr: `duplicate category "cs.LG"`,
		},
		{
			name: "legacy layout with two persistent categories",
			yaml: `
state: {layout: legacy}
categories:
  - {name: cs.LG, keywords: [x], destination: a}
  - {name: cs.AI, keywords: [y], destination: a}
destinations: [{name: a, webhook_env: A}]`,
			wantErr: "requires exactly one id-watermark category",
		},
		{
			name: "bad freshness mode",
			yaml: `
categories: [{name: cs.LG, keywords: [x], destination: a, freshness: weekly}]
destinations: [{name: a, webhook_env: A}]`,
			wantErr: "Freshness",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))

	cfg, err := LoadRoot(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Destinations, 2)

	_, err = LoadRoot(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv("SLACK_WEBHOOK_URL", " https://hooks.slack.test/a ")
	t.Setenv("SLACK_WEBHOOK_URL_ML", "")
	t.Setenv("GEMINI_API_KEY", "key")

	dests := []Destination{
		{Name: "materials", WebhookEnv: "SLACK_WEBHOOK_URL"},
		{Name: "ml", WebhookEnv: "SLACK_WEBHOOK_URL_ML"},
	}
	env := LoadEnvConfig(dests)

	assert.Equal(t, map[string]string{"materials": "https://hooks.slack.test/a"}, env.Webhooks)
	assert.Equal(t, "key", env.GeminiAPIKey)
	assert.Equal(t, []string{"ml"}, env.Missing(dests))
}
