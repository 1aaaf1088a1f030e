// Package runtime is the capability object handed to skill handlers. It
// gives handlers completion and image generation without exposing
// credentials or transport. One Runtime is built per process and passed
// explicitly to the skill executor.
package runtime

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/llmi-dev/llmi/pkg/config"
	"github.com/llmi-dev/llmi/pkg/llm"
	"github.com/llmi-dev/llmi/pkg/logger"
)

// Defaults for handler requests. The token ceiling is higher than the one
// used for answering questions since skills produce longer documents.
const (
	DefaultMaxTokens   = 4000
	DefaultTemperature = 0.3
)

// Runtime backs the handler-facing API.
type Runtime struct {
	main   config.Backend
	vision config.Backend

	completer llm.Completer
	images    llm.ImageGenerator
}

// Option configures a Runtime
type Option func(*Runtime)

// WithCompleter replaces the client used by CallCompletion.
func WithCompleter(c llm.Completer) Option {
	return func(r *Runtime) {
		r.completer = c
	}
}

// WithImageGenerator replaces the client used by GenerateImage.
func WithImageGenerator(g llm.ImageGenerator) Option {
	return func(r *Runtime) {
		r.images = g
	}
}

// New builds a runtime over the two credential sets. Clients are only
// created for backends that are configured.
func New(main, vision config.Backend, opts ...Option) *Runtime {
	r := &Runtime{main: main, vision: vision}
	for _, opt := range opts {
		opt(r)
	}

	defaults := llm.Options{MaxTokens: DefaultMaxTokens, Temperature: DefaultTemperature}
	if r.completer == nil && main.Configured() {
		r.completer = llm.NewOpenAIClient(main, defaults)
	}
	if r.images == nil && vision.Configured() {
		r.images = llm.NewOpenAIClient(vision, defaults)
	}
	return r
}

// FromEnv builds a runtime from LLM_* and VISION_LLM_* variables.
func FromEnv(opts ...Option) *Runtime {
	return New(config.LoadBackend(config.BackendMain), config.LoadBackend(config.BackendVision), opts...)
}

// HasCompletionEnv reports whether the general backend is configured.
func (r *Runtime) HasCompletionEnv() bool {
	return r.main.Configured() || r.completer != nil
}

// HasVisionEnv reports whether the vision backend is configured.
func (r *Runtime) HasVisionEnv() bool {
	return r.vision.Configured() || r.images != nil
}

// CallCompletion sends prompt, preceded by systemPrompt when non-empty, and
// returns the reply text. options may set model, max_tokens, temperature.
func (r *Runtime) CallCompletion(ctx context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error) {
	if r.completer == nil {
		return "", errors.Wrap(config.ErrMissingCredentials, strings.Join(r.main.Missing(false), ", "))
	}

	opts, err := llm.DecodeOptions(options)
	if err != nil {
		return "", err
	}

	var messages []llm.Message
	if systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	logger.G(ctx).WithField("prompt_chars", len(prompt)).Debug("runtime completion")
	return r.completer.Complete(ctx, messages, opts)
}

// GenerateImage asks the vision backend for an image. The result map has
// exactly one of "content", "image_url" or "error"; failures are reported
// in the map rather than returned.
func (r *Runtime) GenerateImage(ctx context.Context, prompt, size string, options map[string]interface{}) map[string]interface{} {
	if r.images == nil {
		err := errors.Wrap(config.ErrMissingCredentials, strings.Join(r.vision.Missing(false), ", "))
		return map[string]interface{}{"error": err.Error()}
	}

	opts, err := llm.DecodeOptions(options)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}

	logger.G(ctx).WithField("size", size).Debug("runtime image generation")
	result, err := r.images.GenerateImage(ctx, prompt, size, opts)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	if result.ImageURL != "" {
		return map[string]interface{}{"image_url": result.ImageURL}
	}
	return map[string]interface{}{"content": result.Content}
}
