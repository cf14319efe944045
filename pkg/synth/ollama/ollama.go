// Package ollama implements synth.Invoker against Ollama's chat API
// with JSON-format output.
package ollama

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
	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is used when no model is configured.
	DefaultModel = "llama3.1"
)

// Config holds Ollama connection settings.
type Config struct {
	// BaseURL defaults to DefaultBaseURL if empty.
	BaseURL string

	// Model defaults to DefaultModel if empty.
	Model string
}

// Invoker implements synth.Invoker on Ollama's chat API.
type Invoker struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewInvoker creates an Ollama-backed invoker.
func NewInvoker(cfg Config) (*Invoker, error) {
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
		model:   model,
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
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

	stream := false
	reqBody := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: string(input)},
		},
		Format: "json",
		Stream: &stream,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return &memory.ProviderError{Kind: string(kind), Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return &memory.ProviderError{Kind: string(kind), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return &memory.ProviderError{Kind: string(kind), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &memory.ProviderError{
			Kind: string(kind),
			Err:  fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return &memory.ProviderError{Kind: string(kind), Err: fmt.Errorf("decoding response: %w", err)}
	}

	if err := json.Unmarshal([]byte(parsed.Message.Content), out); err != nil {
		return &memory.SchemaError{Kind: string(kind), Detail: fmt.Sprintf("output did not match schema: %v", err)}
	}

	return nil
}

func (o *Invoker) Close() error {
	return nil
}

var _ synth.Invoker = (*Invoker)(nil)
