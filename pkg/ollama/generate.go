package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GenerateClient calls POST /api/generate without streaming.
type GenerateClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewGenerateClient creates an Ollama completion client.
func NewGenerateClient(baseURL, model string, client *http.Client) *GenerateClient {
	if client == nil {
		client = &http.Client{}
	}
	return &GenerateClient{baseURL: baseURL, model: model, client: client}
}

type generateReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// Generate returns the decoded JSON body of a completion. The shape of the
// body is left to the caller since compatible servers differ.
func (c *GenerateClient) Generate(ctx context.Context, prompt string) (any, error) {
	body, _ := json.Marshal(generateReq{Model: c.model, Prompt: prompt, Stream: false})
	resp, err := post(ctx, c.client, c.baseURL+"/api/generate", body)
	if err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("generate", resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama generate read: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ollama generate decode: %w", err)
	}
	return out, nil
}
