package terminal

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// ErrUnsupported is returned when the current terminal cannot be captured.
var ErrUnsupported = errors.New("terminal capture is not supported in this environment")

// Capturer returns the recent contents of the user's terminal.
type Capturer interface {
	Capture(ctx context.Context) (string, error)
}

// TmuxCapturer captures the active tmux pane.
type TmuxCapturer struct {
	MaxLines int
	MaxBytes int

	// run executes tmux; replaced in tests.
	run func(ctx context.Context, args ...string) ([]byte, error)
}

// NewTmuxCapturer returns a capturer bounded to maxLines lines and maxBytes
// bytes of output.
func NewTmuxCapturer(maxLines, maxBytes int) *TmuxCapturer {
	return &TmuxCapturer{
		MaxLines: maxLines,
		MaxBytes: maxBytes,
		run: func(ctx context.Context, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, "tmux", args...).Output()
		},
	}
}

// Capture returns the tail of the current pane, or ErrUnsupported outside tmux.
func (c *TmuxCapturer) Capture(ctx context.Context) (string, error) {
	if os.Getenv("TMUX") == "" {
		return "", ErrUnsupported
	}

	args := []string{"capture-pane", "-p", "-J"}
	if c.MaxLines > 0 {
		args = append(args, "-S", "-"+strconv.Itoa(c.MaxLines))
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return "", errors.Wrap(err, "failed to capture tmux pane")
	}

	return Bound(string(out), c.MaxLines, c.MaxBytes), nil
}

// Bound keeps the last maxLines lines of text and then the last maxBytes
// bytes, cutting on a line boundary where possible. Trailing blank lines
// are dropped first. Zero limits disable the corresponding bound.
func Bound(text string, maxLines, maxBytes int) string {
	text = strings.TrimRight(text, "\n \t")
	if maxLines > 0 {
		lines := strings.Split(text, "\n")
		if len(lines) > maxLines {
			text = strings.Join(lines[len(lines)-maxLines:], "\n")
		}
	}
	if maxBytes > 0 && len(text) > maxBytes {
		start := len(text) - maxBytes
		partial := text[start-1] != '\n'
		text = text[start:]
		if idx := strings.IndexByte(text, '\n'); partial && idx >= 0 && idx < len(text)-1 {
			text = text[idx+1:]
		}
		for len(text) > 0 && !utf8.RuneStart(text[0]) {
			text = text[1:]
		}
	}
	return text
}
