package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultNebiusBaseURL = "https://api.studio.nebius.com/v1"
	DefaultNebiusModel   = "meta-llama/Meta-Llama-3.1-70B-Instruct"

	nebiusTemperature = 0.7
	nebiusMaxTokens   = 1024
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

type NebiusOpts struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NebiusClient implements TextGenerator against Nebius AI Studio's
// OpenAI-compatible chat completions endpoint.
type NebiusClient struct {
	httpClient *resty.Client
	model      string
}

func NewNebiusClient(opts NebiusOpts) *NebiusClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultNebiusBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultNebiusModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &NebiusClient{
		httpClient: resty.New().
			SetDebug(false).
			SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
			SetTimeout(opts.Timeout).
			SetAuthToken(opts.APIKey).
			SetHeader("Accept", "application/json"),
		model: opts.Model,
	}
}

// Generate implements TextGenerator.
func (c *NebiusClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	result := &chatCompletionResponse{}
	res, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(chatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: nebiusTemperature,
			MaxTokens:   nebiusMaxTokens,
		}).
		SetResult(result).
		Post("/chat/completions")
	if _, err := handleError(res, err); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no response from Nebius")
	}

	log.Info().
		Str("model", c.model).
		Int64("inputTokens", result.Usage.PromptTokens).
		Int64("outputTokens", result.Usage.CompletionTokens).
		Msg("text llm call")

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// handleError turns failing responses (>399 status code) into errors.
// Without this, failing responses would have nil error.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, fmt.Errorf("request failed: %w", err)
	}
	if res.IsError() {
		return res, fmt.Errorf("request failed: %s %s (status: %d): %s", res.Request.Method, res.Request.URL, res.StatusCode(), truncate(res.String(), 300))
	}
	return res, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
