package skills

import (
	"context"
	"fmt"
	"os"
	"reflect"

	"github.com/pkg/errors"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// RuntimeImportPath is the package interpreted handlers import to reach
// the host capabilities.
const RuntimeImportPath = "llmi/runtime"

// InterpreterLoader runs Go source handlers with the yaegi interpreter.
// The handler is package main and defines
//
//	func Main(args []interface{}) interface{}
//
// (a bool result is also accepted). Imports outside the standard library
// and llmi/runtime resolve against the skill directory only.
type InterpreterLoader struct {
	IO IO
}

type interpHandler struct {
	i    *interp.Interpreter
	main func(args []interface{}) interface{}
}

// Load implements Loader.
func (l *InterpreterLoader) Load(ctx context.Context, skill *Installed, caps Capabilities) (h Handler, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic while loading handler: %v", r)
		}
	}()

	i := interp.New(interp.Options{
		GoPath:               skill.Dir,
		SourcecodeFilesystem: os.DirFS(skill.Dir),
		Stdout:               writerOr(l.IO.Stdout, os.Stdout),
		Stderr:               writerOr(l.IO.Stderr, os.Stderr),
		Env:                  append(os.Environ(), "LLMI_SKILL_DIR="+skill.Dir),
	})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, errors.Wrap(err, "failed to load stdlib symbols")
	}
	if err := i.Use(runtimeExports(ctx, caps)); err != nil {
		return nil, errors.Wrap(err, "failed to load runtime symbols")
	}

	if _, err := i.EvalPath(skill.Manifest.Handler); err != nil {
		return nil, errors.Wrap(err, "failed to evaluate handler")
	}

	v, err := i.Eval("main.Main")
	if err != nil {
		return nil, errors.Wrap(err, "handler does not define Main")
	}

	var main func([]interface{}) interface{}
	switch fn := v.Interface().(type) {
	case func([]interface{}) interface{}:
		main = fn
	case func([]interface{}) bool:
		main = func(args []interface{}) interface{} { return fn(args) }
	default:
		return nil, errors.Errorf("Main has signature %s, expected func([]interface{}) interface{}", v.Type())
	}

	return &interpHandler{i: i, main: main}, nil
}

func (h *interpHandler) Main(_ context.Context, args []interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panicked: %v", r)
		}
	}()

	values := make([]interface{}, len(args))
	for i, a := range args {
		values[i] = argumentValue(a)
	}
	return h.main(values), nil
}

// Close drops the interpreter; nothing loaded for this skill outlives the call.
func (h *interpHandler) Close() error {
	h.i = nil
	h.main = nil
	return nil
}

func runtimeExports(ctx context.Context, caps Capabilities) interp.Exports {
	callCompletion := func(prompt, systemPrompt string, options map[string]interface{}) (string, error) {
		if caps == nil {
			return "", errors.New("runtime is not available")
		}
		return caps.CallCompletion(ctx, prompt, systemPrompt, options)
	}
	generateImage := func(prompt, size string, options map[string]interface{}) map[string]interface{} {
		if caps == nil {
			return map[string]interface{}{"error": "runtime is not available"}
		}
		return caps.GenerateImage(ctx, prompt, size, options)
	}
	hasCompletionEnv := func() bool { return caps != nil && caps.HasCompletionEnv() }
	hasVisionEnv := func() bool { return caps != nil && caps.HasVisionEnv() }

	return interp.Exports{
		fmt.Sprintf("%s/runtime", RuntimeImportPath): {
			"CallCompletion":   reflect.ValueOf(callCompletion),
			"GenerateImage":    reflect.ValueOf(generateImage),
			"HasCompletionEnv": reflect.ValueOf(hasCompletionEnv),
			"HasVisionEnv":     reflect.ValueOf(hasVisionEnv),
		},
	}
}
