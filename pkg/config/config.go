// Package config resolves llmi settings from flags, LLMI_* environment
// variables and an optional config.yaml, and reads the completion backend
// credentials from their plain environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// DefaultModel is used when LLM_MODEL_NAME is unset for the runtime.
	DefaultModel = "doubao-seed-1.6-flash"
	// DefaultMaxHistory bounds the persisted session window.
	DefaultMaxHistory = 20
	// DefaultFetchTimeout bounds every manifest and handler fetch.
	DefaultFetchTimeout = 30 * time.Second
)

// ErrMissingCredentials is returned when a backend lacks required variables.
var ErrMissingCredentials = errors.New("missing required environment variables")

// TerminalSettings bounds the captured terminal buffer.
type TerminalSettings struct {
	MaxLines int `mapstructure:"max_lines"`
	MaxBytes int `mapstructure:"max_bytes"`
}

// Settings is the typed view of the viper configuration.
type Settings struct {
	SkillsDir    string           `mapstructure:"skills_dir"`
	CacheDir     string           `mapstructure:"cache_dir"`
	SessionID    string           `mapstructure:"session_id"`
	MaxHistory   int              `mapstructure:"max_history"`
	FetchTimeout time.Duration    `mapstructure:"fetch_timeout"`
	LogLevel     string           `mapstructure:"log_level"`
	LogFormat    string           `mapstructure:"log_format"`
	Terminal     TerminalSettings `mapstructure:"terminal"`
}

// Init wires viper the way the CLI expects: LLMI_ prefixed environment,
// config.yaml under ~/.llmi or the working directory, and defaults.
// A missing config file is not an error.
func Init() {
	viper.SetEnvPrefix("LLMI")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.llmi")
	viper.AddConfigPath(".")

	SetDefaults(viper.GetViper())

	_ = viper.ReadInConfig()
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	v.SetDefault("skills_dir", filepath.Join(home, ".llmi", "skills"))
	v.SetDefault("cache_dir", filepath.Join(home, ".cache", "llmi"))
	v.SetDefault("session_id", "")
	v.SetDefault("max_history", DefaultMaxHistory)
	v.SetDefault("fetch_timeout", DefaultFetchTimeout)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "fmt")
	v.SetDefault("terminal.max_lines", 200)
	v.SetDefault("terminal.max_bytes", 16*1024)
}

// Load decodes the global viper instance into Settings.
func Load() (Settings, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes v into Settings, restoring defaults for nonsensical values.
func LoadFrom(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return s, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if s.MaxHistory <= 0 {
		s.MaxHistory = DefaultMaxHistory
	}
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = DefaultFetchTimeout
	}
	s.SkillsDir = expandHome(s.SkillsDir)
	s.CacheDir = expandHome(s.CacheDir)

	return s, nil
}

func expandHome(path string) string {
	if path == "~" || len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
