package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/llmi-dev/llmi/pkg/config"
	"github.com/llmi-dev/llmi/pkg/logger"
)

// RetryConfig controls how transient API failures are retried.
type RetryConfig struct {
	Attempts     uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig makes up to three attempts with exponential backoff.
var DefaultRetryConfig = RetryConfig{
	Attempts:     3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

// OpenAIClient talks to an OpenAI-compatible endpoint.
type OpenAIClient struct {
	client   *openai.Client
	defaults Options
	retry    RetryConfig
	http     *http.Client
}

// ClientOption configures an OpenAIClient
type ClientOption func(*OpenAIClient)

// WithRetry overrides the retry policy.
func WithRetry(cfg RetryConfig) ClientOption {
	return func(c *OpenAIClient) {
		c.retry = cfg
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *OpenAIClient) {
		c.http = hc
	}
}

// NewOpenAIClient builds a client for backend. defaults supply the token
// ceiling and temperature for requests that do not set them; an empty
// default model is taken from the backend.
func NewOpenAIClient(backend config.Backend, defaults Options, opts ...ClientOption) *OpenAIClient {
	if defaults.Model == "" {
		defaults.Model = backend.Model
	}
	c := &OpenAIClient{
		defaults: defaults,
		retry:    DefaultRetryConfig,
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := openai.DefaultConfig(backend.APIKey)
	if backend.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(backend.BaseURL, "/")
	}
	if c.http != nil {
		cfg.HTTPClient = c.http
	}
	c.client = openai.NewClientWithConfig(cfg)
	return c
}

// Defaults returns the options applied to every request.
func (c *OpenAIClient) Defaults() Options {
	return c.defaults
}

// Complete implements Completer.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	opts = opts.Merge(c.defaults)

	req := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage implements ImageGenerator.
func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt, size string, opts Options) (ImageResult, error) {
	opts = opts.Merge(c.defaults)

	if opts.Endpoint != EndpointImages {
		content, err := c.Complete(ctx, []Message{{
			Role:    RoleUser,
			Content: fmt.Sprintf("Generate an image (size %s) for the following description and return it as a base64 data URL:\n%s", size, prompt),
		}}, opts)
		if err != nil {
			return ImageResult{}, err
		}
		return ImageResult{Content: content}, nil
	}

	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          opts.Model,
		Size:           size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	var resp openai.ImageResponse
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.client.CreateImage(ctx, req)
		return err
	})
	if err != nil {
		return ImageResult{}, errors.Wrap(err, "image generation failed")
	}
	if len(resp.Data) == 0 {
		return ImageResult{}, errors.New("image generation returned no data")
	}

	data := resp.Data[0]
	if data.B64JSON != "" {
		return ImageResult{Content: data.B64JSON}, nil
	}
	return ImageResult{ImageURL: data.URL}, nil
}

func (c *OpenAIClient) withRetry(ctx context.Context, operation func() error) error {
	if c.retry.Attempts <= 1 {
		return operation()
	}

	return retry.Do(
		operation,
		retry.RetryIf(isRetryableError),
		retry.Attempts(c.retry.Attempts),
		retry.Delay(c.retry.InitialDelay),
		retry.MaxDelay(c.retry.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying completion request")
		}),
	)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "connection reset", "timeout", "temporary failure"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return out
}
