package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/marcus/docmorph/internal/config"
	"github.com/marcus/docmorph/internal/domain"
)

// ErrNoAPIKey is returned when a transformation is attempted without an
// API key configured.
var ErrNoAPIKey = errors.New("API key not provided, cannot perform transformation")

// Completer sends a prompt pair to the model and returns the parsed
// transformation result. Satisfied by LLMClient; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*domain.TransformationResult, error)
}

// LLMClient calls an OpenAI-compatible chat completion endpoint.
type LLMClient struct {
	client      *resty.Client
	model       string
	apiKey      string
	endpoint    string
	temperature float64
}

// NewLLMClient creates a new chat completion client.
// Parameters:
//   - cfg: LLM configuration including model, API key, and base URL.
//
// Returns:
//   - *LLMClient: initialized client wrapper.
func NewLLMClient(cfg *config.LLMConfig) *LLMClient {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	// Large documents can take minutes to transform
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	client.SetTimeout(timeout)

	// Default to OpenAI compatible endpoint if not specified
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	endpoint := baseURL + "/chat/completions"

	return &LLMClient{
		client:      client,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		endpoint:    endpoint,
		temperature: float64(cfg.Temperature),
	}
}

// GetModel returns the model name being used.
func (c *LLMClient) GetModel() string {
	return c.model
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model          string             `json:"model"`
	Messages       []chatMessage      `json:"messages"`
	Temperature    float64            `json:"temperature"`
	ResponseFormat chatResponseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Complete sends a system/user prompt pair and parses the model's JSON reply.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - systemPrompt: transformation instructions.
//   - userPrompt: document and template content.
//
// Returns:
//   - *domain.TransformationResult: parsed result; if the reply is not valid
//     JSON the raw text is returned as txt content with ParseError set.
//   - error: non-nil if the API request fails.
func (c *LLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (*domain.TransformationResult, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    c.temperature,
		ResponseFormat: chatResponseFormat{Type: "json_object"},
	}

	var resp chatResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(c.endpoint)

	if err != nil {
		return nil, fmt.Errorf("failed to call completion API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s (%s)", httpResp.StatusCode(), resp.Error.Message, resp.Error.Code)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return nil, fmt.Errorf("completion API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("completion API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in completion response (status: %d)", httpResp.StatusCode())
	}

	return parseTransformation(resp.Choices[0].Message.Content), nil
}

// parseTransformation decodes the assistant's reply. Replies that are not
// valid JSON, or JSON missing the expected keys, still produce a usable
// result rather than an error.
func parseTransformation(raw string) *domain.TransformationResult {
	var parsed struct {
		FileType string `json:"file_type"`
		Content  string `json:"content"`
	}

	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return &domain.TransformationResult{
			FileType:   "txt",
			Content:    raw,
			ParseError: "The API response wasn't valid JSON",
		}
	}

	result := &domain.TransformationResult{
		FileType: parsed.FileType,
		Content:  parsed.Content,
	}
	if result.FileType == "" {
		result.FileType = "txt"
	}
	if result.Content == "" {
		result.Content = raw
	}
	return result
}

// IsContextLengthExceeded reports whether an API error indicates the prompt
// exceeded the model's context window.
func IsContextLengthExceeded(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "context_length_exceeded") ||
		strings.Contains(msg, "maximum context length")
}
