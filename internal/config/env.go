package config

import (
	"os"
	"strings"
)

// EnvConfig holds secrets and switches read from the environment.
type EnvConfig struct {
	Webhooks     map[string]string // destination name -> webhook URL
	GeminiAPIKey string
}

// LoadEnvConfig reads one webhook variable per destination.
// Missing variables are not an error here: the sink skips those destinations with a warning.
func LoadEnvConfig(dests []Destination) *EnvConfig {
	webhooks := make(map[string]string, len(dests))
	for _, d := range dests {
		if v := strings.TrimSpace(os.Getenv(d.WebhookEnv)); v != "" {
			webhooks[d.Name] = v
		}
	}

	return &EnvConfig{
		Webhooks:     webhooks,
		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
	}
}

// Missing lists destinations without a configured webhook, in config order.
func (e *EnvConfig) Missing(dests []Destination) []string {
	var missing []string
	for _, d := range dests {
		if _, ok := e.Webhooks[d.Name]; !ok {
			missing = append(missing, d.Name)
		}
	}
	return missing
}
