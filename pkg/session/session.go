// Package session persists a bounded rolling window of user/assistant
// messages per caller-supplied session identifier. Persistence is best
// effort: read and write failures are logged at debug level and never
// returned to the caller.
package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/llmi-dev/llmi/pkg/logger"
)

// MaxHistory is the default window size.
const MaxHistory = 20

// Role values that are persisted.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Manager stores one JSON file per session under dir.
type Manager struct {
	dir        string
	maxHistory int
}

// Option configures a Manager
type Option func(*Manager)

// WithMaxHistory overrides the window size. Non-positive values are ignored.
func WithMaxHistory(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// NewManager creates a manager rooted at dir. The directory is created
// lazily on first save.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:        dir,
		maxHistory: MaxHistory,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

func (m *Manager) path(sessionID string) string {
	// identifiers come from the environment; keep them inside dir
	return filepath.Join(m.dir, filepath.Base(filepath.Clean("/"+sessionID))+".json")
}

// Load returns the persisted history for sessionID. A missing or corrupt
// file yields an empty history.
func (m *Manager) Load(ctx context.Context, sessionID string) []Message {
	if sessionID == "" {
		return []Message{}
	}
	log := logger.G(ctx).WithField("session_id", sessionID)

	data, err := os.ReadFile(m.path(sessionID))
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Debug("failed to read session history")
		}
		return []Message{}
	}

	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		log.WithError(err).Debug("ignoring corrupt session history")
		return []Message{}
	}
	if messages == nil {
		return []Message{}
	}
	return Truncate(Filter(messages), m.maxHistory)
}

// Save filters out non-conversational roles, keeps the most recent
// maxHistory entries and overwrites the session file. It reports whether
// the write succeeded; failures are only logged.
func (m *Manager) Save(ctx context.Context, sessionID string, messages []Message) bool {
	if sessionID == "" {
		return false
	}
	log := logger.G(ctx).WithFields(logrus.Fields{"session_id": sessionID, "dir": m.dir})

	history := Truncate(Filter(messages), m.maxHistory)
	data, err := json.Marshal(history)
	if err != nil {
		log.WithError(err).Debug("failed to encode session history")
		return false
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		log.WithError(err).Debug("failed to create session directory")
		return false
	}
	if err := os.WriteFile(m.path(sessionID), data, 0o644); err != nil {
		log.WithError(err).Debug("failed to write session history")
		return false
	}

	log.WithField("messages", len(history)).Debug("saved session history")
	return true
}

// Clear removes the session file. An absent file is not an error.
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := os.Remove(m.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	logger.G(ctx).WithField("session_id", sessionID).Debug("cleared session history")
	return nil
}

// Filter returns a copy of messages keeping only user and assistant turns.
func Filter(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleUser || msg.Role == RoleAssistant {
			out = append(out, msg)
		}
	}
	return out
}

// Truncate returns the last n messages, oldest dropped first.
func Truncate(messages []Message, n int) []Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
