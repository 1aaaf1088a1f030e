package skills

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/llmi-dev/llmi/pkg/logger"
)

var (
	// ErrSkillNotFound means no valid manifest exists for the name.
	ErrSkillNotFound = errors.New("skill not found")
	// ErrHandlerMissing means the manifest names a handler that is not on disk.
	ErrHandlerMissing = errors.New("skill handler is missing")
	// ErrHandlerFailed means the handler ran and returned false.
	ErrHandlerFailed = errors.New("skill reported failure")
)

// ExecutionError wraps anything that went wrong while loading or running
// a handler.
type ExecutionError struct {
	Skill string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("skill execution failed: %s: %v", e.Skill, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Executor runs installed skills.
type Executor struct {
	store   *Store
	caps    Capabilities
	io      IO
	loaders func(handler string, streams IO) Loader
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithIO sets where descriptions and handler output are written.
func WithIO(streams IO) ExecutorOption {
	return func(e *Executor) {
		e.io = streams
	}
}

// WithLoader forces every handler through l.
func WithLoader(l Loader) ExecutorOption {
	return func(e *Executor) {
		e.loaders = func(string, IO) Loader { return l }
	}
}

// NewExecutor creates an executor. caps is handed to every handler.
func NewExecutor(store *Store, caps Capabilities, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:   store,
		caps:    caps,
		io:      IO{Stdout: os.Stdout, Stderr: os.Stderr},
		loaders: LoaderFor,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the skill called name with args.
//
// A skill without a handler is documentation: its description is printed
// and Execute succeeds. For a skill with a handler the arguments are
// preprocessed, the handler is loaded scoped to the skill directory and
// its Main is called. Load and run failures, panics included, come back as
// *ExecutionError; a false result comes back as ErrHandlerFailed.
func (e *Executor) Execute(ctx context.Context, name string, args []string) error {
	ctx = logger.WithFields(ctx, logrus.Fields{"skill": name})

	skill, ok := e.store.Resolve(ctx, name)
	if !ok {
		return errors.Wrapf(ErrSkillNotFound, "%q", name)
	}

	if !skill.Manifest.HasHandler() {
		Describe(e.io.Stdout, skill.Manifest)
		return nil
	}

	handlerPath := skill.HandlerPath()
	if info, err := os.Stat(handlerPath); err != nil || info.IsDir() {
		return errors.Wrapf(ErrHandlerMissing, "%s", handlerPath)
	}

	processed := Preprocess(ctx, skill.Manifest, args)

	result, err := e.run(ctx, skill, processed)
	if err != nil {
		return &ExecutionError{Skill: name, Err: err}
	}

	if ok, isBool := result.(bool); isBool && !ok {
		return errors.Wrapf(ErrHandlerFailed, "%q", name)
	}
	logger.G(ctx).Debug("skill completed")
	return nil
}

func (e *Executor) run(ctx context.Context, skill *Installed, args []interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	loader := e.loaders(skill.Manifest.Handler, e.io)
	handler, err := loader.Load(ctx, skill, e.caps)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := handler.Close(); cerr != nil {
			logger.G(ctx).WithError(cerr).Debug("failed to release handler")
		}
	}()

	return handler.Main(ctx, args)
}

// Describe prints the descriptive fields of m.
func Describe(w io.Writer, m *Manifest) {
	fmt.Fprintf(w, "%s (v%s)\n", m.Name, m.Version)
	fmt.Fprintf(w, "%s\n", m.Description)
	if m.Author != "" {
		fmt.Fprintf(w, "Author: %s\n", m.Author)
	}
	if len(m.Parameters) == 0 {
		return
	}

	fmt.Fprintln(w, "Parameters:")
	for _, p := range m.Parameters {
		var attrs []string
		if p.Type != "" {
			attrs = append(attrs, p.Type)
		}
		if p.Required {
			attrs = append(attrs, "required")
		}
		if p.Default != nil {
			attrs = append(attrs, fmt.Sprintf("default: %v", p.Default))
		}

		line := "  " + p.Name
		if len(attrs) > 0 {
			line += " (" + strings.Join(attrs, ", ") + ")"
		}
		if p.Description != "" {
			line += ": " + p.Description
		}
		fmt.Fprintln(w, line)
	}
}
