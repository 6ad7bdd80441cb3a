// Package llm provides chat completion clients for hook analysis. Providers
// share one small interface so the analyzer does not care which backs it.
package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

const requestTimeout = 2 * time.Minute

// Client produces a completion for a system prompt and user message.
type Client interface {
	// Complete returns the raw assistant text for the given prompts.
	Complete(ctx context.Context, system, user string) (string, error)
	// Name identifies the provider for logging and caching.
	Name() string
}

// New returns a client for the named provider. Supported providers are
// "openai" and "anthropic". model may be empty to use the provider default.
func New(provider, apiKey, model string) (Client, error) {
	if apiKey == "" {
		return nil, errors.Newf("no API key configured for provider %q", provider)
	}
	switch provider {
	case "openai":
		return newOpenAI(apiKey, model), nil
	case "anthropic":
		return newAnthropic(apiKey, model), nil
	default:
		return nil, errors.Newf("unknown AI provider %q", provider)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
