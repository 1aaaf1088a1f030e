package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/llmi-dev/llmi/pkg/presenter"
	"github.com/llmi-dev/llmi/pkg/session"
)

var errNoSession = errors.New("no session selected: set LLMI_SESSION_ID")

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage conversation history",
	Long: `Questions asked with LLMI_SESSION_ID set share a history of the last
exchanges. These commands create, show and clear that history.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Print a fresh session id",
	Long: `Print a fresh session id. Use it with:

  export LLMI_SESSION_ID=$(llmi session new -q)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		id := session.NewID()
		if presenter.IsQuiet() {
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "export LLMI_SESSION_ID=%s\n", id)
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current session's history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		if a.settings.SessionID == "" {
			return errNoSession
		}

		history := a.sessions.Load(cmd.Context(), a.settings.SessionID)
		if len(history) == 0 {
			presenter.Info("No history")
			return nil
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			data, err := json.MarshalIndent(history, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to encode history")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		for _, m := range history {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n\n", m.Role, m.Content)
		}
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the current session's history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		if a.settings.SessionID == "" {
			return errNoSession
		}
		if err := a.sessions.Clear(cmd.Context(), a.settings.SessionID); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Cleared session %s", a.settings.SessionID))
		return nil
	},
}

func init() {
	sessionShowCmd.Flags().Bool("json", false, "Print the history as JSON")

	sessionCmd.AddCommand(sessionNewCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}
