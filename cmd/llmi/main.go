package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/llmi-dev/llmi/pkg/config"
	"github.com/llmi-dev/llmi/pkg/logger"
	"github.com/llmi-dev/llmi/pkg/presenter"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitCredentials = 2
)

func init() {
	config.Init()
}

var rootCmd = &cobra.Command{
	Use:   "llmi [question...] | llmi <skill> [args...]",
	Short: "Ask an LLM from the command line and run installed skills",
	Long: `llmi forwards questions to an OpenAI-compatible endpoint and extracts
runnable shell commands from the answer. Installed skills are run by name.

Examples:
  llmi ask "how do I find files larger than 100MB"
  llmi translate notes.md fr
  llmi why did the build above fail`,
	Args:              cobra.ArbitraryArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return dispatch(cmd, args)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	flags.String("log-format", "fmt", "Log format (fmt, text, json)")
	flags.String("skills-dir", "", "Directory skills are installed into (default ~/.llmi/skills)")
	flags.String("cache-dir", "", "Directory for session history and the last command (default ~/.cache/llmi)")
	flags.BoolP("quiet", "q", false, "Only print answers and commands")

	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))
	viper.BindPFlag("skills_dir", flags.Lookup("skills-dir"))
	viper.BindPFlag("cache_dir", flags.Lookup("cache-dir"))
	viper.BindPFlag("quiet", flags.Lookup("quiet"))

	// everything after a skill name belongs to the skill
	rootCmd.Flags().SetInterspersed(false)
}

func setup(_ *cobra.Command, _ []string) error {
	if err := logger.Configure(viper.GetString("log_level"), viper.GetString("log_format")); err != nil {
		return err
	}
	presenter.SetQuiet(viper.GetBool("quiet"))
	return nil
}

// dispatch runs the skill named by the first argument, or treats the whole
// line as a question when no such skill is installed.
func dispatch(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if _, ok := a.store.Resolve(cmd.Context(), args[0]); ok {
		return a.runSkill(cmd, args[0], args[1:])
	}
	return a.runAsk(cmd, askRequest(args))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrMissingCredentials):
		return exitCredentials
	default:
		return exitFailure
	}
}

func execute(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		presenter.Error(err, "")
	}
	return exitCode(err)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
