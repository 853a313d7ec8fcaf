package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/palamut62/ai-gant-news/internal/config"
	"github.com/palamut62/ai-gant-news/internal/ports"
)

// GeminiClient implements ports.Generator against the Gemini generateContent REST API.
type GeminiClient struct {
	baseURL      string
	model        string
	apiKey       string
	systemPrompt string
	temperature  float64
	maxTokens    int
	http         *http.Client
}

var _ ports.Generator = (*GeminiClient)(nil)

// NewGeminiClient builds a client from configuration; Endpoint is the API base, e.g. .../v1beta.
func NewGeminiClient(cfg config.GeneratorConfig) *GeminiClient {
	return &GeminiClient{
		baseURL:      strings.TrimSuffix(cfg.Endpoint, "/"),
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		http:         newHTTPClient(cfg.Timeout),
	}
}

// Name identifies the provider inside the registry.
func (c *GeminiClient) Name() string {
	return config.ProviderGemini
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  map[string]any  `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// Generate sends a single-turn prompt and concatenates the text parts of the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("gemini client is nil")
	}
	if c.apiKey == "" || c.baseURL == "" || c.model == "" {
		return "", fmt.Errorf("gemini client misconfigured")
	}

	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	if sp := strings.TrimSpace(c.systemPrompt); sp != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: sp}}}
	}
	genCfg := map[string]any{}
	if c.temperature != 0 {
		genCfg["temperature"] = c.temperature
	}
	if c.maxTokens != 0 {
		genCfg["maxOutputTokens"] = c.maxTokens
	}
	if len(genCfg) > 0 {
		payload.GenerationConfig = genCfg
	}

	var resp geminiResponse
	if err := c.post(ctx, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini response has no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func (c *GeminiClient) post(ctx context.Context, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gemini error %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
