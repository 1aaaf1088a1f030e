package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmi-dev/llmi/pkg/ask"
	"github.com/llmi-dev/llmi/pkg/config"
	"github.com/llmi-dev/llmi/pkg/llm"
	"github.com/llmi-dev/llmi/pkg/presenter"
	"github.com/llmi-dev/llmi/pkg/skills"
)

type cliEnv struct {
	skillsDir string
	cacheDir  string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	env := cliEnv{
		skillsDir: filepath.Join(t.TempDir(), "skills"),
		cacheDir:  filepath.Join(t.TempDir(), "cache"),
	}
	t.Setenv("LLMI_SKILLS_DIR", env.skillsDir)
	t.Setenv("LLMI_CACHE_DIR", env.cacheDir)
	t.Setenv("LLMI_SESSION_ID", "")
	t.Setenv("TMUX", "")
	for _, name := range []string{"LLM_API_KEY", "LLM_BASE_URL", "LLM_MODEL_NAME", "VISION_LLM_API_KEY", "VISION_LLM_BASE_URL"} {
		t.Setenv(name, "")
	}
	return env
}

func setCredentials(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("LLM_BASE_URL", "http://127.0.0.1:1/v1")
	t.Setenv("LLM_MODEL_NAME", "test-model")
}

// resetFlags restores every flag in the tree, since cobra keeps parsed
// values between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	prev := presenter.SetDefault(presenter.NewWithOptions(&out, &errOut, presenter.ColorNever))
	defer presenter.SetDefault(prev)

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	defer resetFlags(rootCmd)

	code := execute(context.Background(), args)
	return code, out.String(), errOut.String()
}

type fakeCompleter struct {
	reply    string
	messages []llm.Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
	f.messages = messages
	return f.reply, nil
}

func useCompleter(t *testing.T, c llm.Completer) {
	prev := newCompleter
	newCompleter = func(config.Backend) llm.Completer { return c }
	t.Cleanup(func() { newCompleter = prev })
}

func writeSkillSource(t *testing.T, manifest, handlerName, handler string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, skills.ManifestFileName), []byte(manifest), 0o644))
	if handlerName != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, handlerName), []byte(handler), 0o644))
	}
	return dir
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"credentials", errors.Wrap(config.ErrMissingCredentials, "LLM_API_KEY"), exitCredentials},
		{"not found", errors.Wrap(skills.ErrSkillNotFound, "x"), exitFailure},
		{"execution", &skills.ExecutionError{Skill: "x", Err: errors.New("boom")}, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestVersionCommand(t *testing.T) {
	newCLIEnv(t)
	code, out, _ := runCLI(t, "version")
	require.Equal(t, exitOK, code)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "goVersion")
}

func TestSkillLifecycle(t *testing.T) {
	env := newCLIEnv(t)
	src := writeSkillSource(t,
		`{"name":"notes","description":"Team notes","version":"0.2","author":"docs",
		  "parameters":[{"name":"topic","type":"string"}]}`, "", "")

	code, out, _ := runCLI(t, "skill", "install", src)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Installed skill 'notes' (v0.2)")
	assert.FileExists(t, filepath.Join(env.skillsDir, "notes", skills.ManifestFileName))

	code, out, _ = runCLI(t, "skill", "list")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "notes")
	assert.Contains(t, out, "Team notes")

	code, out, _ = runCLI(t, "skill", "list", "--filter", "zzz*")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "No skills installed")

	code, out, _ = runCLI(t, "skill", "info", "notes")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "notes (v0.2)")
	assert.Contains(t, out, "Author: docs")
	assert.Contains(t, out, "Directory: ")

	// a skill without a handler describes itself when run
	code, out, _ = runCLI(t, "notes", "anything")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Team notes")

	code, _, _ = runCLI(t, "skill", "remove", "notes")
	require.Equal(t, exitOK, code)
	assert.NoDirExists(t, filepath.Join(env.skillsDir, "notes"))

	code, _, errOut := runCLI(t, "skill", "info", "notes")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "skill not found")
}

func TestSkillInstallInvalid(t *testing.T) {
	env := newCLIEnv(t)
	src := writeSkillSource(t, `{"name":"broken"}`, "", "")

	code, _, errOut := runCLI(t, "skill", "install", src)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "'description'")
	assert.Contains(t, errOut, "'version'")
	assert.NoDirExists(t, filepath.Join(env.skillsDir, "broken"))
}

func TestSkillInstallMissingHandlerWarns(t *testing.T) {
	newCLIEnv(t)
	src := writeSkillSource(t, `{"name":"half","description":"d","version":"1","handler":"half.sh"}`, "", "")

	code, out, errOut := runCLI(t, "skill", "install", src)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Installed skill 'half'")
	assert.Contains(t, errOut, "Handler 'half.sh' was not installed")
}

func TestSkillSchema(t *testing.T) {
	newCLIEnv(t)
	code, out, _ := runCLI(t, "skill", "schema")
	require.Equal(t, exitOK, code)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Contains(t, schema, "properties")
}

func TestRunProcessSkill(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	newCLIEnv(t)

	src := writeSkillSource(t, `{"name":"greet","description":"d","version":"1","handler":"greet.sh"}`,
		"greet.sh", "read -r invoke\necho \"hello from skill\"\n")
	code, _, _ := runCLI(t, "skill", "install", src)
	require.Equal(t, exitOK, code)

	code, out, _ := runCLI(t, "greet", "--loud", "world")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "hello from skill")

	code, out, _ = runCLI(t, "skill", "run", "greet")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "hello from skill")
}

func TestRunFailingSkill(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	newCLIEnv(t)

	src := writeSkillSource(t, `{"name":"fail","description":"d","version":"1","handler":"fail.sh"}`,
		"fail.sh", "echo '{\"type\":\"result\",\"value\":false}'\n")
	code, _, _ := runCLI(t, "skill", "install", src)
	require.Equal(t, exitOK, code)

	code, _, errOut := runCLI(t, "fail")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "skill reported failure")
}

func TestAskMissingCredentials(t *testing.T) {
	newCLIEnv(t)

	code, _, errOut := runCLI(t, "ask", "how", "do", "I", "list", "files")
	assert.Equal(t, exitCredentials, code)
	assert.Contains(t, errOut, "LLM_API_KEY")
	assert.Contains(t, errOut, "LLM_BASE_URL")

	// an unknown first word is a question too
	code, _, _ = runCLI(t, "unknownskill", "please")
	assert.Equal(t, exitCredentials, code)
}

func TestAsk(t *testing.T) {
	env := newCLIEnv(t)
	setCredentials(t)
	completer := &fakeCompleter{reply: "Run this:\n```command\nls -lS\n```"}
	useCompleter(t, completer)

	code, out, _ := runCLI(t, "ask", "list", "files", "by", "size")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Run this:")
	assert.Contains(t, out, "Suggested command:\nls -lS\n")

	require.Len(t, completer.messages, 2)
	assert.Equal(t, "list files by size", completer.messages[1].Content)

	data, err := os.ReadFile(filepath.Join(env.cacheDir, ask.LastCommandFile))
	require.NoError(t, err)
	assert.Equal(t, "ls -lS\n", string(data))
}

func TestAskQuiet(t *testing.T) {
	newCLIEnv(t)
	setCredentials(t)
	useCompleter(t, &fakeCompleter{reply: "```command\npwd\n```"})

	code, out, _ := runCLI(t, "-q", "ask", "where am I")
	require.Equal(t, exitOK, code)
	assert.NotContains(t, out, "Suggested command:")
	assert.Contains(t, out, "pwd\n")
}

func TestAskWithFile(t *testing.T) {
	newCLIEnv(t)
	setCredentials(t)
	completer := &fakeCompleter{reply: "It builds."}
	useCompleter(t, completer)

	file := filepath.Join(t.TempDir(), "Makefile")
	require.NoError(t, os.WriteFile(file, []byte("build:\n\tgo build ./...\n"), 0o644))

	code, _, _ := runCLI(t, "ask", "-f", file, "what does this do")
	require.Equal(t, exitOK, code)
	user := completer.messages[len(completer.messages)-1].Content
	assert.Contains(t, user, "what does this do")
	assert.Contains(t, user, "go build ./...")
}

func TestSessionCommands(t *testing.T) {
	newCLIEnv(t)
	setCredentials(t)
	completer := &fakeCompleter{reply: "first answer"}
	useCompleter(t, completer)

	code, _, errOut := runCLI(t, "session", "show")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "LLMI_SESSION_ID")

	code, out, _ := runCLI(t, "session", "new")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "export LLMI_SESSION_ID=")

	t.Setenv("LLMI_SESSION_ID", "test-session")

	code, _, _ = runCLI(t, "ask", "first question")
	require.Equal(t, exitOK, code)

	completer.reply = "second answer"
	code, _, _ = runCLI(t, "ask", "second question")
	require.Equal(t, exitOK, code)
	require.Len(t, completer.messages, 4)
	assert.Equal(t, "first question", completer.messages[1].Content)
	assert.Equal(t, "first answer", completer.messages[2].Content)

	code, out, _ = runCLI(t, "session", "show")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "[user] first question")
	assert.Contains(t, out, "[assistant] second answer")

	code, _, _ = runCLI(t, "session", "clear")
	require.Equal(t, exitOK, code)

	code, out, _ = runCLI(t, "session", "show")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "No history")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 60))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))

	long := strings.Repeat("翻译", 40)
	got := truncate(long, 60)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 60, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}
