package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// BackendKind selects a credential set.
type BackendKind string

const (
	// BackendMain is used by the question flow and runtime completions.
	BackendMain BackendKind = "main"
	// BackendVision is used by runtime image generation.
	BackendVision BackendKind = "vision"
)

// Backend holds the credentials of one OpenAI-compatible endpoint.
type Backend struct {
	Kind    BackendKind
	APIKey  string
	BaseURL string
	Model   string

	keyVar, urlVar, modelVar string
	modelSet                 bool
}

func envPrefix(kind BackendKind) string {
	if kind == BackendVision {
		return "VISION_LLM_"
	}
	return "LLM_"
}

// LoadBackend reads the credentials of kind from the environment.
func LoadBackend(kind BackendKind) Backend {
	prefix := envPrefix(kind)
	b := Backend{
		Kind:     kind,
		keyVar:   prefix + "API_KEY",
		urlVar:   prefix + "BASE_URL",
		modelVar: prefix + "MODEL_NAME",
	}
	b.APIKey = os.Getenv(b.keyVar)
	b.BaseURL = os.Getenv(b.urlVar)
	b.Model = os.Getenv(b.modelVar)
	b.modelSet = b.Model != ""
	if !b.modelSet {
		b.Model = DefaultModel
	}
	return b
}

// Missing lists the variables required for a connection that are unset.
// When requireModel is true the model variable must be set explicitly.
func (b Backend) Missing(requireModel bool) []string {
	var missing []string
	if b.APIKey == "" {
		missing = append(missing, b.keyVar)
	}
	if b.BaseURL == "" {
		missing = append(missing, b.urlVar)
	}
	if requireModel && !b.modelSet {
		missing = append(missing, b.modelVar)
	}
	return missing
}

// Configured reports whether key and base URL are both present.
func (b Backend) Configured() bool {
	return len(b.Missing(false)) == 0
}

// Require returns ErrMissingCredentials naming every missing variable.
func (b Backend) Require(requireModel bool) error {
	missing := b.Missing(requireModel)
	if len(missing) == 0 {
		return nil
	}
	return errors.Wrap(ErrMissingCredentials, strings.Join(missing, ", "))
}
