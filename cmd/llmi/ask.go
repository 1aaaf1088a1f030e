package main

import (
	"github.com/spf13/cobra"

	"github.com/llmi-dev/llmi/pkg/ask"
	"github.com/llmi-dev/llmi/pkg/config"
	"github.com/llmi-dev/llmi/pkg/llm"
	"github.com/llmi-dev/llmi/pkg/presenter"
	"github.com/llmi-dev/llmi/pkg/terminal"
)

// newCompleter builds the question-flow backend; tests replace it.
var newCompleter = func(backend config.Backend) llm.Completer {
	return llm.NewOpenAIClient(backend, llm.Options{
		MaxTokens:   ask.DefaultMaxTokens,
		Temperature: ask.DefaultTemperature,
	})
}

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Ask a question and get a runnable command back",
	Long: `Ask a question. When the answer contains a command it is printed
separately and saved to <cache-dir>/last_command for shell key bindings.

Terminal output from the current tmux pane is attached automatically when
the question refers to it, unless --no-terminal is given. Set
LLMI_SESSION_ID to keep a conversation across invocations.

Examples:
  llmi ask "list files sorted by size"
  llmi ask -f Makefile "what does the release target do"
  llmi ask "explain the error above"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		req := askRequest(args)
		req.Files, _ = cmd.Flags().GetStringSlice("file")
		req.NoTerminal, _ = cmd.Flags().GetBool("no-terminal")
		return a.runAsk(cmd, req)
	},
}

func init() {
	askCmd.Flags().StringSliceP("file", "f", nil, "Attach a file to the question (repeatable)")
	askCmd.Flags().Bool("no-terminal", false, "Never attach terminal output")
	rootCmd.AddCommand(askCmd)
}

func askRequest(args []string) ask.Request {
	return ask.Request{Question: joinArgs(args)}
}

func (a *app) runAsk(cmd *cobra.Command, req ask.Request) error {
	backend := config.LoadBackend(config.BackendMain)
	if err := backend.Require(true); err != nil {
		return err
	}

	flow := ask.New(newCompleter(backend),
		ask.WithSession(a.sessions, a.settings.SessionID),
		ask.WithCapturer(terminal.NewTmuxCapturer(a.settings.Terminal.MaxLines, a.settings.Terminal.MaxBytes)),
		ask.WithCacheDir(a.settings.CacheDir),
	)

	answer, err := flow.Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	if answer.TerminalAttached {
		presenter.Info("(terminal output attached)")
	}
	presenter.Answer(answer.Text)
	presenter.Command(answer.Command)
	return nil
}
