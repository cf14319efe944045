// Package openai implements synth.Invoker against an OpenAI-compatible
// chat completions API in JSON mode.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/synth"
)

const (
	// DefaultBaseURL is the OpenAI API URL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"
)

// Config holds OpenAI connection settings.
type Config struct {
	// BaseURL overrides the API endpoint, e.g. for a compatible proxy.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the bearer token.
	APIKey string

	// Model defaults to DefaultModel if empty.
	Model string
}

// Invoker implements synth.Invoker on the chat completions API.
type Invoker struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewInvoker creates an OpenAI-backed invoker.
func NewInvoker(cfg Config) (*Invoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Invoker{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

func (o *Invoker) Invoke(ctx context.Context, kind synth.Kind, in any, out any) error {
	prompt := synth.PromptFor(kind)
	if prompt == "" {
		return &memory.SchemaError{Kind: string(kind), Detail: "unknown synthesis kind"}
	}

	input, err := json.Marshal(in)
	if err != nil {
		return &memory.SchemaError{Kind: string(kind), Detail: fmt.Sprintf("encoding input: %v", err)}
	}

	reqBody := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: string(input)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return &memory.ProviderError{Kind: string(kind), Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return &memory.ProviderError{Kind: string(kind), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return &memory.ProviderError{Kind: string(kind), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &memory.ProviderError{
			Kind: string(kind),
			Err:  fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return &memory.ProviderError{Kind: string(kind), Err: fmt.Errorf("decoding response: %w", err)}
	}

	if len(parsed.Choices) == 0 {
		return &memory.SchemaError{Kind: string(kind), Detail: "no choices in response"}
	}

	content := parsed.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return &memory.SchemaError{Kind: string(kind), Detail: fmt.Sprintf("output did not match schema: %v", err)}
	}

	return nil
}

func (o *Invoker) Close() error {
	return nil
}

var _ synth.Invoker = (*Invoker)(nil)
