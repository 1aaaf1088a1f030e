package skills

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/llmi-dev/llmi/pkg/logger"
)

// Frame types of the subprocess protocol. The host writes one invoke frame
// to the handler's stdin; the handler may then write completion and image
// requests to stdout, each answered by a reply frame on stdin, and ends
// with a result frame. Stdout lines that are not frames are shown to the
// user as they arrive.
const (
	FrameInvoke     = "invoke"
	FrameCompletion = "completion"
	FrameImage      = "image"
	FrameReply      = "reply"
	FrameResult     = "result"
)

// Frame is one line of the subprocess protocol.
type Frame struct {
	Type         string                 `json:"type"`
	ID           int                    `json:"id,omitempty"`
	Prompt       string                 `json:"prompt,omitempty"`
	SystemPrompt string                 `json:"system_prompt,omitempty"`
	Size         string                 `json:"size,omitempty"`
	Options      map[string]interface{} `json:"options,omitempty"`
	Text         string                 `json:"text,omitempty"`
	Image        map[string]interface{} `json:"image,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Value        interface{}            `json:"value,omitempty"`
}

// invokeFrame starts a handler; args is always present, even when empty.
type invokeFrame struct {
	Type string        `json:"type"`
	Args []interface{} `json:"args"`
}

// interpreters run scripts whose handler file may lack a shebang.
var interpreters = map[string]string{
	".py": "python3",
	".sh": "sh",
	".js": "node",
	".rb": "ruby",
}

// ProcessLoader runs handlers as child processes in the skill directory.
type ProcessLoader struct {
	IO IO
}

type processHandler struct {
	skill  *Installed
	caps   Capabilities
	stdout io.Writer
	stderr io.Writer
}

// Load implements Loader. The process is started by Main.
func (l *ProcessLoader) Load(_ context.Context, skill *Installed, caps Capabilities) (Handler, error) {
	path := skill.HandlerPath()
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "handler is not accessible")
	}
	stdout, stderr := writerOr(l.IO.Stdout, os.Stdout), writerOr(l.IO.Stderr, os.Stderr)
	// os/exec copies a non-file Stderr from its own goroutine while serve
	// writes forwarded stdout lines, and the two may share one writer.
	if _, ok := stderr.(*os.File); !ok {
		mu := &sync.Mutex{}
		stdout = &lockedWriter{mu: mu, w: stdout}
		stderr = &lockedWriter{mu: mu, w: stderr}
	}
	return &processHandler{
		skill:  skill,
		caps:   caps,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (h *processHandler) command(ctx context.Context) *exec.Cmd {
	path := h.skill.HandlerPath()
	var cmd *exec.Cmd
	if interpreter, ok := interpreters[strings.ToLower(filepath.Ext(path))]; ok {
		cmd = exec.CommandContext(ctx, interpreter, path)
	} else {
		cmd = exec.CommandContext(ctx, path)
	}
	cmd.Dir = h.skill.Dir
	cmd.Env = append(os.Environ(), "LLMI_SKILL_DIR="+h.skill.Dir)
	cmd.Stderr = h.stderr
	setSysProcAttr(cmd)
	setCancelFunc(cmd)
	return cmd
}

// Main starts the handler, serves its requests and waits for it to exit.
func (h *processHandler) Main(ctx context.Context, args []interface{}) (interface{}, error) {
	cmd := h.command(ctx)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start handler")
	}

	var mu sync.Mutex
	enc := json.NewEncoder(stdin)
	send := func(f interface{}) {
		mu.Lock()
		defer mu.Unlock()
		// a handler that stopped reading is not an error until it exits
		_ = enc.Encode(f)
	}

	values := make([]interface{}, len(args))
	for i, a := range args {
		values[i] = argumentValue(a)
	}
	// the invoke frame can be large; write it without blocking the reader
	go send(invokeFrame{Type: FrameInvoke, Args: values})

	result, served := h.serve(ctx, stdout, send)

	mu.Lock()
	stdin.Close()
	mu.Unlock()

	if err := cmd.Wait(); err != nil {
		return nil, errors.Wrap(err, "handler exited with error")
	}
	if !served {
		// no result frame: a clean exit counts as success
		return nil, nil
	}
	return result, nil
}

func (h *processHandler) serve(ctx context.Context, stdout io.Reader, send func(interface{})) (interface{}, bool) {
	var (
		result interface{}
		served bool
	)

	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if frame, ok := parseFrame(line); ok {
				switch frame.Type {
				case FrameResult:
					result, served = frame.Value, true
				case FrameCompletion, FrameImage:
					send(h.answer(ctx, frame))
				default:
					fmt.Fprint(h.stdout, line)
				}
			} else {
				fmt.Fprint(h.stdout, line)
			}
		}
		if err != nil {
			if err != io.EOF {
				logger.G(ctx).WithError(err).Debug("failed to read handler output")
			}
			return result, served
		}
	}
}

func (h *processHandler) answer(ctx context.Context, req Frame) Frame {
	reply := Frame{Type: FrameReply, ID: req.ID}
	if h.caps == nil {
		reply.Error = "runtime is not available"
		return reply
	}

	switch req.Type {
	case FrameCompletion:
		text, err := h.caps.CallCompletion(ctx, req.Prompt, req.SystemPrompt, req.Options)
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Text = text
		}
	case FrameImage:
		reply.Image = h.caps.GenerateImage(ctx, req.Prompt, req.Size, req.Options)
	}
	return reply
}

func parseFrame(line string) (Frame, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Frame{}, false
	}
	var f Frame
	if err := json.Unmarshal([]byte(trimmed), &f); err != nil || f.Type == "" {
		return Frame{}, false
	}
	return f, true
}

// Close is a no-op: Main always waits for the child before returning.
func (h *processHandler) Close() error {
	return nil
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
