package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Freshness modes.
const (
	ModeID   = "id"
	ModeTime = "time"
)

// State layouts and modes.
const (
	LayoutJSON   = "json"
	LayoutLegacy = "legacy"

	StateFile   = "file"
	StateMemory = "memory"
)

type (
	// Root holds the whole configuration; it is passed explicitly into the run.
	Root struct {
		Provider     Provider            `yaml:"provider"`
		Freshness    Freshness           `yaml:"freshness"`
		State        State               `yaml:"state"`
		Digest       Digest              `yaml:"digest"`
		Summary      Summary             `yaml:"summary"`
		Schedule     Schedule            `yaml:"schedule"`
		Strict       bool                `yaml:"strict"`
		KeywordSets  map[string][]string `yaml:"keyword_sets"`
		Categories   []Category          `yaml:"categories" validate:"required,min=1,dive"`
		Destinations []Destination       `yaml:"destinations" validate:"required,min=1,dive"`
	}

	// Provider describes the API-style feed source.
	Provider struct {
		BaseURL      string        `yaml:"base_url" validate:"required,url"`
		MaxResults   int           `yaml:"max_results" validate:"gte=1,lte=2000"`
		SortBy       string        `yaml:"sort_by" validate:"oneof=submittedDate lastUpdatedDate relevance"`
		SortOrder    string        `yaml:"sort_order" validate:"oneof=ascending descending"`
		RequestDelay *time.Duration `yaml:"request_delay" validate:"omitempty,gte=0"` // nil: default; 0s: no delay
		Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
		UserAgent    string        `yaml:"user_agent"`
	}

	// Freshness holds the default windows used when a category does not override them.
	Freshness struct {
		Mode     string        `yaml:"mode" validate:"oneof=id time"`
		Window   time.Duration `yaml:"window" validate:"gte=0"`   // sanity bound in id mode
		Lookback time.Duration `yaml:"lookback" validate:"gte=0"` // window in time mode
	}

	// State configures the watermark store.
	State struct {
		Mode   string `yaml:"mode" validate:"oneof=file memory"`
		Path   string `yaml:"path"`
		Layout string `yaml:"layout" validate:"oneof=json legacy"`
	}

	// Digest configures message rendering.
	Digest struct {
		MaxEntriesPerCategory int    `yaml:"max_entries_per_category" validate:"gte=0"`
		MaxMessageLength      int    `yaml:"max_message_length" validate:"gte=0"`
		DefaultEmoji          string `yaml:"default_emoji"`
	}

	// Summary configures the optional Gemini TL;DR step.
	Summary struct {
		Enabled   bool   `yaml:"enabled"`
		Model     string `yaml:"model"`
		BatchSize int    `yaml:"batch_size" validate:"gte=0"`
	}

	// Schedule configures the in-process scheduler.
	Schedule struct {
		Cron string `yaml:"cron"`
		Addr string `yaml:"addr"`
	}

	// Category is one (category, keyword-set) query plus its routing.
	Category struct {
		Name        string        `yaml:"name" validate:"required"`
		Label       string        `yaml:"label"`
		Emoji       string        `yaml:"emoji"`
		Keywords    []string      `yaml:"keywords"`
		KeywordSet  string        `yaml:"keyword_set"`
		Destination string        `yaml:"destination" validate:"required"`
		Freshness   string        `yaml:"freshness" validate:"omitempty,oneof=id time"`
		Window      time.Duration `yaml:"window" validate:"gte=0"`
		FeedURL     string        `yaml:"feed_url" validate:"omitempty,url"`
		LocalFilter bool          `yaml:"local_filter"`
	}

	// Destination is one chat channel; its webhook URL comes from the environment.
	Destination struct {
		Name         string `yaml:"name" validate:"required"`
		WebhookEnv   string `yaml:"webhook_env" validate:"required"`
		EmptyMessage string `yaml:"empty_message"`
	}
)

// Delay returns the pause between two requests to the same provider.
func (p Provider) Delay() time.Duration {
	if p.RequestDelay == nil {
		return 0
	}
	return *p.RequestDelay
}

// DisplayLabel returns the label shown in digests.
func (c Category) DisplayLabel() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}

// IsFeed reports whether the category reads a fixed RSS-style URL.
func (c Category) IsFeed() bool {
	return strings.TrimSpace(c.FeedURL) != ""
}

// LoadRoot reads the configuration file, applies defaults and validates it.
func LoadRoot(path string) (Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Root{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Root{}, err
	}
	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (Root, error) {
	var cfg Root
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Root{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.resolveKeywords(); err != nil {
		return Root{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Root{}, err
	}
	return cfg, nil
}

func (r *Root) applyDefaults() {
	if r.Provider.BaseURL == "" {
		r.Provider.BaseURL = "http://export.arxiv.org/api/query"
	}
	if r.Provider.MaxResults == 0 {
		r.Provider.MaxResults = 300
	}
	if r.Provider.SortBy == "" {
		r.Provider.SortBy = "submittedDate"
	}
	if r.Provider.SortOrder == "" {
		r.Provider.SortOrder = "descending"
	}
	if r.Provider.RequestDelay == nil {
		delay := time.Second
		r.Provider.RequestDelay = &delay
	}
	if r.Provider.Timeout == 0 {
		r.Provider.Timeout = 20 * time.Second
	}

	if r.Freshness.Mode == "" {
		r.Freshness.Mode = ModeID
	}
	if r.Freshness.Window == 0 {
		r.Freshness.Window = 72 * time.Hour
	}
	if r.Freshness.Lookback == 0 {
		r.Freshness.Lookback = 24 * time.Hour
	}

	if r.State.Mode == "" {
		r.State.Mode = StateFile
	}
	if r.State.Path == "" {
		r.State.Path = "state/watermarks.json"
	}
	if r.State.Layout == "" {
		r.State.Layout = LayoutJSON
	}

	if r.Digest.MaxMessageLength == 0 {
		r.Digest.MaxMessageLength = 40000
	}
	if r.Digest.DefaultEmoji == "" {
		r.Digest.DefaultEmoji = "🎓"
	}

	if r.Summary.Model == "" {
		r.Summary.Model = "gemini-2.5-flash"
	}
	if r.Summary.BatchSize == 0 {
		r.Summary.BatchSize = 10
	}

	if r.Schedule.Cron == "" {
		r.Schedule.Cron = "0 */12 * * *"
	}
	if r.Schedule.Addr == "" {
		r.Schedule.Addr = ":8080"
	}

	for i := range r.Categories {
		c := &r.Categories[i]
		if c.Freshness == "" {
			c.Freshness = r.Freshness.Mode
		}
		if c.Window == 0 {
			if c.Freshness == ModeTime {
				c.Window = r.Freshness.Lookback
			} else {
				c.Window = r.Freshness.Window
			}
		}
		if c.Emoji == "" {
			c.Emoji = r.Digest.DefaultEmoji
		}
	}
}

// resolveKeywords appends named keyword sets to each category's inline keywords.
func (r *Root) resolveKeywords() error {
	for i := range r.Categories {
		c := &r.Categories[i]
		if c.KeywordSet == "" {
			continue
		}
		set, ok := r.KeywordSets[c.KeywordSet]
		if !ok {
			return fmt.Errorf("category %q: unknown keyword_set %q", c.Name, c.KeywordSet)
		}
		c.Keywords = append(append([]string(nil), c.Keywords...), set...)
	}
	return nil
}

var validate = validator.New()

// Validate checks struct constraints and cross references.
func (r Root) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	var errs []error
	dests := make(map[string]struct{}, len(r.Destinations))
	for _, d := range r.Destinations {
		if _, dup := dests[d.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate destination %q", d.Name))
		}
		dests[d.Name] = struct{}{}
	}

	names := make(map[string]struct{}, len(r.Categories))
	persistent := 0
	for _, c := range r.Categories {
		if _, dup := names[c.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate category %q", c.Name))
		}
		names[c.Name] = struct{}{}

		if _, ok := dests[c.Destination]; !ok {
			errs = append(errs, fmt.Errorf("category %q: unknown destination %q", c.Name, c.Destination))
		}
		if len(nonEmpty(c.Keywords)) == 0 {
			errs = append(errs, fmt.Errorf("category %q: at least one keyword is required", c.Name))
		}
		if c.Freshness == ModeID {
			persistent++
		}
	}

	if r.State.Layout == LayoutLegacy && persistent != 1 {
		errs = append(errs, fmt.Errorf("state layout %q requires exactly one id-watermark category, got %d", LayoutLegacy, persistent))
	}
	if r.State.Mode == StateFile && strings.TrimSpace(r.State.Path) == "" {
		errs = append(errs, errors.New("state path is required in file mode"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validate config: %w", errors.Join(errs...))
	}
	return nil
}

// LegacyCategory returns the category that owns a bare-identifier state file:
// the first category using the id-watermark strategy.
func (r Root) LegacyCategory() string {
	for _, c := range r.Categories {
		if c.Freshness == ModeID {
			return c.Name
		}
	}
	return ""
}

// Destination looks up a destination by name.
func (r Root) Destination(name string) (Destination, bool) {
	for _, d := range r.Destinations {
		if d.Name == name {
			return d, true
		}
	}
	return Destination{}, false
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
