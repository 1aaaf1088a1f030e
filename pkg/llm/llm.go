// Package llm is the transport to an OpenAI-compatible completion endpoint.
// Callers depend on the Completer and ImageGenerator interfaces; the
// OpenAIClient implementation wraps go-openai with retries.
package llm

import (
	"context"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Image endpoints.
const (
	EndpointChat   = "chat"
	EndpointImages = "images"
)

// Options tune a single request. Zero values fall back to the client defaults.
type Options struct {
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
	// Endpoint selects how images are generated: EndpointChat asks the
	// vision model through chat completions, EndpointImages uses the images API.
	Endpoint string `mapstructure:"endpoint"`
}

// Merge returns o with zero fields filled from defaults.
func (o Options) Merge(defaults Options) Options {
	if o.Model == "" {
		o.Model = defaults.Model
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = defaults.MaxTokens
	}
	if o.Temperature == 0 {
		o.Temperature = defaults.Temperature
	}
	if o.Endpoint == "" {
		o.Endpoint = defaults.Endpoint
	}
	return o
}

// DecodeOptions converts a loosely typed option map, as passed by skill
// handlers, into Options. Unknown keys are rejected.
func DecodeOptions(raw map[string]interface{}) (Options, error) {
	var opts Options
	if len(raw) == 0 {
		return opts, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return opts, errors.Wrap(err, "failed to create options decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return opts, errors.Wrap(err, "invalid completion options")
	}
	return opts, nil
}

// Completer sends a conversation and returns the assistant's text.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// ImageResult is what an image request produced. At most one field is set.
type ImageResult struct {
	Content  string `json:"content,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ImageGenerator produces an image for prompt at size (e.g. "1024x1024").
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, size string, opts Options) (ImageResult, error)
}
