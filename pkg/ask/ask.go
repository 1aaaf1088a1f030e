// Package ask implements the question flow: it assembles a prompt from the
// question, attached files, terminal output and session history, sends it
// to the completion backend and extracts a runnable command from the answer.
package ask

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/llmi-dev/llmi/pkg/files"
	"github.com/llmi-dev/llmi/pkg/llm"
	"github.com/llmi-dev/llmi/pkg/logger"
	"github.com/llmi-dev/llmi/pkg/session"
	"github.com/llmi-dev/llmi/pkg/terminal"
)

// Completion defaults of the question flow.
const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.3
)

// Request is one question.
type Request struct {
	Question string
	// Files are attached to the user turn.
	Files []string
	// NoTerminal disables terminal capture even when the question asks for it.
	NoTerminal bool
}

// Answer is the outcome of a question.
type Answer struct {
	Text    string
	Command string
	// TerminalAttached reports whether terminal output was sent along.
	TerminalAttached bool
}

// Flow answers questions.
type Flow struct {
	completer llm.Completer
	options   llm.Options
	sessions  *session.Manager
	sessionID string
	capturer  terminal.Capturer
	shell     func() terminal.ShellInfo
	cacheDir  string
}

// Option configures a Flow
type Option func(*Flow)

// WithSession keeps history for id in m. An empty id disables history.
func WithSession(m *session.Manager, id string) Option {
	return func(f *Flow) {
		f.sessions = m
		f.sessionID = id
	}
}

// WithCapturer sets the terminal capture source.
func WithCapturer(c terminal.Capturer) Option {
	return func(f *Flow) {
		f.capturer = c
	}
}

// WithShellInfo overrides environment discovery.
func WithShellInfo(fn func() terminal.ShellInfo) Option {
	return func(f *Flow) {
		f.shell = fn
	}
}

// WithCacheDir sets where the last suggested command is written.
func WithCacheDir(dir string) Option {
	return func(f *Flow) {
		f.cacheDir = dir
	}
}

// WithOptions overrides the completion options. Zero fields keep the defaults.
func WithOptions(opts llm.Options) Option {
	return func(f *Flow) {
		f.options = opts.Merge(f.options)
	}
}

// New creates a question flow backed by completer.
func New(completer llm.Completer, opts ...Option) *Flow {
	f := &Flow{
		completer: completer,
		options: llm.Options{
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
		},
		shell: terminal.DetectShell,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run answers req. History is loaded before and saved after a successful
// completion; neither step can fail the question.
func (f *Flow) Run(ctx context.Context, req Request) (*Answer, error) {
	if req.Question == "" {
		return nil, errors.New("question is empty")
	}
	ctx = logger.WithFields(ctx, logrus.Fields{"session_id": f.sessionID})

	history := f.history(ctx)

	in := UserInput{Question: req.Question}
	for _, path := range req.Files {
		in.Files = append(in.Files, files.ReadRecord(path))
	}
	if !req.NoTerminal {
		in.Terminal = f.captureTerminal(ctx, req.Question)
	}

	messages, err := f.Messages(history, in)
	if err != nil {
		return nil, err
	}

	text, err := f.completer.Complete(ctx, messages, f.options)
	if err != nil {
		return nil, errors.Wrap(err, "completion failed")
	}

	answer := &Answer{
		Text:             text,
		Command:          ExtractCommand(text),
		TerminalAttached: in.Terminal != "",
	}

	if f.sessions != nil && f.sessionID != "" {
		history = append(history,
			session.Message{Role: session.RoleUser, Content: req.Question},
			session.Message{Role: session.RoleAssistant, Content: text},
		)
		f.sessions.Save(ctx, f.sessionID, history)
	}
	if answer.Command != "" && f.cacheDir != "" {
		SaveLastCommand(ctx, f.cacheDir, answer.Command)
	}
	return answer, nil
}

// Messages lays out the conversation: system prompt, prior turns, then
// the new user turn.
func (f *Flow) Messages(history []session.Message, in UserInput) ([]llm.Message, error) {
	system, err := SystemPrompt(f.shell())
	if err != nil {
		return nil, err
	}
	user, err := UserPrompt(in)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: user})
	return messages, nil
}

func (f *Flow) history(ctx context.Context) []session.Message {
	if f.sessions == nil || f.sessionID == "" {
		return nil
	}
	return f.sessions.Load(ctx, f.sessionID)
}

func (f *Flow) captureTerminal(ctx context.Context, question string) string {
	if f.capturer == nil || !terminal.ShouldCapture(question) {
		return ""
	}
	out, err := f.capturer.Capture(ctx)
	if err != nil {
		logger.G(ctx).WithError(err).Debug("terminal output not attached")
		return ""
	}
	return out
}
