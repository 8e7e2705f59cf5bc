package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/config"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/paper"
)

// maxAbstractRunes caps how much of each abstract goes into the prompt.
const maxAbstractRunes = 2000

// Summarizer implements app.Summarizer with one-sentence TL;DRs per paper.
type Summarizer struct {
	client      GeminiClient
	model       string
	batchSize   int
	minInterval time.Duration // spacing between requests (free tier RPM)
}

// NewSummarizer creates a summarizer.
func NewSummarizer(client GeminiClient, cfg config.Summary) *Summarizer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Summarizer{
		client:      client,
		model:       cfg.Model,
		batchSize:   batchSize,
		minInterval: 12 * time.Second,
	}
}

// Summarize returns entry ID -> TL;DR. Entries the model skipped are absent
// from the map. The first failing batch aborts with an error.
func (s *Summarizer) Summarize(ctx context.Context, entries []paper.Entry) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	totalBatches := (len(entries) + s.batchSize - 1) / s.batchSize
	log.Printf("Summarizing %d papers in %d batch(es)", len(entries), totalBatches)

	out := make(map[string]string, len(entries))
	var last time.Time

	for i, n := 0, 1; i < len(entries); i, n = i+s.batchSize, n+1 {
		end := min(i+s.batchSize, len(entries))

		if !last.IsZero() {
			if wait := s.minInterval - time.Since(last); wait > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(wait):
				}
			}
		}

		log.Printf("Processing summary batch %d/%d (%d papers)...", n, totalBatches, end-i)
		batch, err := s.summarizeBatch(ctx, entries[i:end])
		if err != nil {
			return nil, fmt.Errorf("summarize batch [%d-%d]: %w", i, end-1, err)
		}
		for id, tldr := range batch {
			out[id] = tldr
		}
		last = time.Now()
	}

	log.Printf("Summarization complete: %d/%d papers", len(out), len(entries))
	return out, nil
}

func (s *Summarizer) summarizeBatch(ctx context.Context, entries []paper.Entry) (map[string]string, error) {
	input := make([]paperInput, 0, len(entries))
	wanted := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		input = append(input, paperInput{
			ID:       e.ID,
			Title:    e.DisplayTitle(),
			Abstract: clip(paper.SingleLine(e.Summary), maxAbstractRunes),
		})
		wanted[e.ID] = struct{}{}
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}

	responseText, err := s.client.GenerateText(ctx, s.model, buildPrompt(string(inputJSON)))
	if err != nil {
		return nil, fmt.Errorf("generate text: %w", err)
	}

	var resp []summaryResponse
	if err := json.Unmarshal([]byte(responseText), &resp); err != nil {
		cleaned := extractJSON(responseText)
		if cleaned == "" {
			return nil, fmt.Errorf("unmarshal response: %w (raw: %s)", err, responseText)
		}
		if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
			return nil, fmt.Errorf("unmarshal cleaned response: %w (raw: %s)", err, responseText)
		}
	}

	out := make(map[string]string, len(resp))
	for _, r := range resp {
		if _, ok := wanted[r.ID]; !ok {
			continue
		}
		if tldr := paper.SingleLine(r.TLDR); tldr != "" {
			out[r.ID] = tldr
		}
	}
	return out, nil
}

func buildPrompt(inputJSON string) string {
	return fmt.Sprintf(`You are an editor of a daily digest of new arXiv papers for researchers.
You will receive a JSON list of papers with an id, a title and the abstract.
For every paper write a TL;DR in English: exactly one plain sentence, at most 30 words, stating the main contribution.
Do not invent results that are not in the abstract. Do not use Markdown.
Return only a JSON array without any commentary, in this format:
[{"id": "<paper id>", "tldr": "<one sentence>"}, ...]

Input:
%s`, inputJSON)
}

// extractJSON pulls the first JSON array out of a model response, tolerating
// Markdown code fences and surrounding prose.
func extractJSON(text string) string {
	if start := strings.Index(text, "```"); start != -1 {
		body := text[start+3:]
		body = strings.TrimPrefix(body, "json")
		if end := strings.Index(body, "```"); end != -1 {
			if inner := strings.TrimSpace(body[:end]); inner != "" {
				text = inner
			}
		}
	}

	start := strings.Index(text, "[")
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1])
			}
		}
	}
	return ""
}

func clip(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

type paperInput struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
}

type summaryResponse struct {
	ID   string `json:"id"`
	TLDR string `json:"tldr"`
}
