package skills

import (
	"context"
	"io"
	"path/filepath"
	"strings"
)

// Capabilities is what a handler may ask of the host. It is implemented by
// runtime.Runtime.
type Capabilities interface {
	CallCompletion(ctx context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error)
	GenerateImage(ctx context.Context, prompt, size string, options map[string]interface{}) map[string]interface{}
	HasCompletionEnv() bool
	HasVisionEnv() bool
}

// Handler is a loaded skill entry point. Close releases whatever the
// loader acquired and must be called exactly once.
type Handler interface {
	Main(ctx context.Context, args []interface{}) (interface{}, error)
	Close() error
}

// Loader turns a handler asset into a Handler scoped to its skill directory.
type Loader interface {
	Load(ctx context.Context, skill *Installed, caps Capabilities) (Handler, error)
}

// IO carries the streams handlers write to.
type IO struct {
	Stdout io.Writer
	Stderr io.Writer
}

// LoaderFor picks the loader for a handler file: Go sources are
// interpreted in-process, everything else runs as a subprocess.
func LoaderFor(handler string, streams IO) Loader {
	if strings.EqualFold(filepath.Ext(handler), ".go") {
		return &InterpreterLoader{IO: streams}
	}
	return &ProcessLoader{IO: streams}
}

// argumentValue converts a preprocessed argument into the plain value
// handlers receive.
func argumentValue(arg interface{}) interface{} {
	switch a := arg.(type) {
	case interface{ Map() map[string]interface{} }:
		return a.Map()
	default:
		return a
	}
}
