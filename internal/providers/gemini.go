package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	GeminiName    = "gemini"
	GeminiBaseURL = "https://generativelanguage.googleapis.com"

	defaultGeminiModel   = "gemini-2.0-flash"
	defaultGeminiTimeout = 120 * time.Second
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// GeminiClient implements Generator against the Google Generative Language
// API's generateContent endpoint.
type GeminiClient struct {
	apiKey  string
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = GeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultGeminiTimeout
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/") +
		"/v1beta/models/" + url.PathEscape(cfg.Model) + ":generateContent"

	return &GeminiClient{
		apiKey:  cfg.APIKey,
		url:     endpoint,
		timeout: cfg.Timeout,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the client identifier.
func (c *GeminiClient) Name() string {
	return GeminiName
}

// Generate sends one generateContent request and validates the structured
// response.
func (c *GeminiClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	const op = "gemini.generate"
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gmReq := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{
				{Text: systemPrompt + "\n\n" + buildUserPrompt(req, defaultContextBudget)},
			}},
		},
		GenerationConfig: &geminiGenerationConfig{
			ResponseMIMEType: "application/json",
		},
	}

	bodyBytes, err := json.Marshal(gmReq)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(op, resp.StatusCode, string(respBody))
	}

	var gmResp geminiResponse
	if err := json.Unmarshal(respBody, &gmResp); err != nil {
		return nil, Malformed(op, fmt.Errorf("unmarshal response: %w", err))
	}
	if len(gmResp.Candidates) == 0 || len(gmResp.Candidates[0].Content.Parts) == 0 {
		return nil, Malformed(op, fmt.Errorf("no candidates in response"))
	}

	var content strings.Builder
	for _, part := range gmResp.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}

	result, err := parseResult(op, content.String())
	if err != nil {
		return nil, err
	}

	result.Provider = GeminiName
	result.ModelUsed = gmResp.ModelVersion
	result.RequestID = requestID
	result.PromptTokens = gmResp.UsageMetadata.PromptTokenCount
	result.CompletionTokens = gmResp.UsageMetadata.CandidatesTokenCount
	result.TotalTokens = gmResp.UsageMetadata.TotalTokenCount
	result.Duration = time.Since(start)
	return result, nil
}

// Gemini API types (minimal fields)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string `json:"response_mime_type,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	ModelVersion  string `json:"modelVersion"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Verify interface
var _ Generator = (*GeminiClient)(nil)
