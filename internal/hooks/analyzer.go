// Package hooks finds compelling short-clip moments in a transcript using
// a language model.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/muhammadegaa/reely/internal/adapter/llm"
	"github.com/muhammadegaa/reely/internal/domain"
)

const (
	systemPrompt = "You are an expert video editor specializing in creating viral short clips. " +
		"You understand what makes content engaging and shareable."

	// Model output caps. Anything over is truncated, never rejected.
	maxHooks       = 5
	maxTitleLength = 100
	maxReasonLen   = 200

	// How many transcript segments to include as timestamp grounding.
	maxPromptSegments = 20
)

// Analyzer asks a language model to surface hook moments.
type Analyzer struct {
	client llm.Client
	log    *zap.SugaredLogger
}

func NewAnalyzer(client llm.Client, log *zap.SugaredLogger) *Analyzer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Analyzer{client: client, log: log}
}

// Analyze returns up to five validated hook moments for the transcript.
// Malformed entries in the model output are discarded rather than failing
// the job; an entirely unparsable response is an analysis error.
func (a *Analyzer) Analyze(ctx context.Context, transcript *domain.Transcript) ([]domain.Hook, error) {
	prompt := buildPrompt(transcript)

	a.log.Infow("analyzing transcript for hooks",
		"provider", a.client.Name(),
		"transcript_chars", len(transcript.Text),
		"sampled", transcript.Sampled)

	raw, err := a.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "hook analysis"), domain.ErrAnalysis)
	}

	jsonText := extractJSONArray(raw)

	var candidates []struct {
		Start  *int   `json:"start"`
		End    *int   `json:"end"`
		Title  string `json:"title"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(jsonText), &candidates); err != nil {
		return nil, errors.Mark(
			errors.Wrapf(err, "model returned unparsable hook response: %s", truncate(raw, 200)),
			domain.ErrAnalysis)
	}

	var hooks []domain.Hook
	for _, c := range candidates {
		if c.Start == nil || c.End == nil || c.Title == "" {
			continue
		}
		if *c.Start < 0 || *c.End <= *c.Start {
			continue
		}
		hooks = append(hooks, domain.Hook{
			Start:  *c.Start,
			End:    *c.End,
			Title:  truncate(c.Title, maxTitleLength),
			Reason: truncate(c.Reason, maxReasonLen),
		})
		if len(hooks) == maxHooks {
			break
		}
	}

	a.log.Infow("hook analysis complete", "candidates", len(candidates), "valid", len(hooks))
	return hooks, nil
}

func buildPrompt(transcript *domain.Transcript) string {
	segments := transcript.Segments
	if len(segments) > maxPromptSegments {
		segments = segments[:maxPromptSegments]
	}

	segmentJSON := "No segments available"
	if len(segments) > 0 {
		if raw, err := json.MarshalIndent(segments, "", "  "); err == nil {
			segmentJSON = string(raw)
		}
	}

	return fmt.Sprintf(`Analyze this video transcript and identify 3-5 "hook moments" that would make compelling short clips.

Hook moments should be:
- Emotionally charged, surprising, or curiosity-inducing
- 15-30 seconds long each
- Self-contained and engaging
- Have clear start/end points

Transcript:
%s

Segment timestamps (for reference):
%s

Respond with ONLY a JSON array in this exact format:
[{
  "start": 120,
  "end": 145,
  "title": "The shocking statistic that changes everything",
  "reason": "Contains surprising data that creates curiosity"
}]

Ensure timestamps are realistic based on the content length.`, transcript.Text, segmentJSON)
}

// extractJSONArray pulls the first JSON array out of a model response that
// may wrap it in prose or markdown code fences.
func extractJSONArray(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
