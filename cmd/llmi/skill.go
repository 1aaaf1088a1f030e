package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/llmi-dev/llmi/pkg/presenter"
	"github.com/llmi-dev/llmi/pkg/skills"
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Manage llmi skills",
	Long:  `Install, list, inspect, run and remove llmi skills.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var skillInstallCmd = &cobra.Command{
	Use:   "install <source>",
	Short: "Install a skill from a manifest URL or path",
	Long: `Install a skill from a skill.json manifest. The source is an http(s)
URL, a path to the manifest, or a directory containing skill.json. When the
manifest names a handler it is fetched from next to the manifest.

Examples:
  llmi skill install https://example.com/skills/translate/skill.json
  llmi skill install ./my-skill`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		result, err := a.installer().Install(cmd.Context(), args[0])
		if err != nil {
			return errors.Wrap(err, "failed to install skill")
		}

		m := result.Skill.Manifest
		presenter.Success(fmt.Sprintf("Installed skill '%s' (v%s) to %s", m.Name, m.Version, result.Skill.Dir))
		if result.HandlerErr != nil {
			presenter.Warning(fmt.Sprintf("Handler '%s' was not installed: %v", m.Handler, result.HandlerErr))
		}
		return nil
	},
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed skills",
	Long: `List installed skills with their version and description.

Examples:
  llmi skill list
  llmi skill list --filter 'gen*'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		filter, _ := cmd.Flags().GetString("filter")
		installed, err := a.store.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(installed) == 0 {
			presenter.Info("No skills installed")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tVERSION\tHANDLER\tDESCRIPTION")
		fmt.Fprintln(tw, "----\t-------\t-------\t-----------")
		for _, s := range installed {
			handler := s.Manifest.Handler
			if handler == "" {
				handler = "-"
			}
			description := truncate(s.Manifest.Description, 60)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Manifest.Name, s.Manifest.Version, handler, description)
		}
		return tw.Flush()
	},
}

var skillInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show a skill's manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		s, ok := a.store.Resolve(cmd.Context(), args[0])
		if !ok {
			return errors.Wrapf(skills.ErrSkillNotFound, "%q", args[0])
		}
		out := cmd.OutOrStdout()
		skills.Describe(out, s.Manifest)
		fmt.Fprintf(out, "Directory: %s\n", s.Dir)
		if s.Manifest.HasHandler() {
			fmt.Fprintf(out, "Handler: %s\n", s.Manifest.Handler)
		}
		return nil
	},
}

var skillRunCmd = &cobra.Command{
	Use:   "run <name> [args...]",
	Short: "Run a skill, even one whose name shadows a command",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		return a.runSkill(cmd, args[0], args[1:])
	},
}

var skillRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an installed skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		if err := a.store.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Removed skill '%s'", args[0]))
		return nil
	},
}

var skillSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of skill.json",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := json.MarshalIndent(skills.ManifestSchema(), "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode schema")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	skillListCmd.Flags().String("filter", "", "Only list skills whose name matches this glob")
	skillRunCmd.Flags().SetInterspersed(false)

	skillCmd.AddCommand(skillInstallCmd)
	skillCmd.AddCommand(skillListCmd)
	skillCmd.AddCommand(skillInfoCmd)
	skillCmd.AddCommand(skillRunCmd)
	skillCmd.AddCommand(skillRemoveCmd)
	skillCmd.AddCommand(skillSchemaCmd)
	rootCmd.AddCommand(skillCmd)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
