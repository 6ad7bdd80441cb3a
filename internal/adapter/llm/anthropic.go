package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
)

const (
	anthropicEndpoint     = "https://api.anthropic.com/v1/messages"
	anthropicVersion      = "2023-06-01"
	defaultAnthropicModel = "claude-3-sonnet-20240229"
)

type anthropicClient struct {
	apiKey string
	model  string
	http   *http.Client
}

func newAnthropic(apiKey, model string) *anthropicClient {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &anthropicClient{apiKey: apiKey, model: model, http: newHTTPClient()}
}

func (c *anthropicClient) Name() string { return "anthropic" }

func (c *anthropicClient) Complete(ctx context.Context, system, user string) (string, error) {
	payload := map[string]any{
		"model":      c.model,
		"max_tokens": 1000,
		"messages": []map[string]string{
			{"role": "user", "content": system + "\n\n" + user},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "anthropic request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read anthropic response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("anthropic returned %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errors.Wrap(err, "decode anthropic response")
	}
	if len(parsed.Content) == 0 {
		return "", errors.New("anthropic returned no content")
	}
	return parsed.Content[0].Text, nil
}
