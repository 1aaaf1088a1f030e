package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/llmi-dev/llmi/pkg/config"
	"github.com/llmi-dev/llmi/pkg/runtime"
	"github.com/llmi-dev/llmi/pkg/session"
	"github.com/llmi-dev/llmi/pkg/skills"
)

// app holds what every command needs, built from the resolved settings.
type app struct {
	settings config.Settings
	store    *skills.Store
	sessions *session.Manager
}

func loadApp() (*app, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &app{
		settings: settings,
		store:    skills.NewStore(settings.SkillsDir),
		sessions: session.NewManager(
			filepath.Join(settings.CacheDir, "sessions"),
			session.WithMaxHistory(settings.MaxHistory),
		),
	}, nil
}

func (a *app) installer() *skills.Installer {
	return skills.NewInstaller(a.store, skills.WithFetchTimeout(a.settings.FetchTimeout))
}

func (a *app) runSkill(cmd *cobra.Command, name string, args []string) error {
	executor := skills.NewExecutor(a.store, runtime.FromEnv(), skills.WithIO(skills.IO{
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}))
	return executor.Execute(cmd.Context(), name, args)
}
