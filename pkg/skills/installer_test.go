package skills

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handlerManifest = `{"name":"greet","description":"Say hello","version":"1.2.0","handler":"greet.sh"}`

func TestInstallLocal(t *testing.T) {
	ctx := context.Background()
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, ManifestFileName), []byte(handlerManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "greet.sh"), []byte("echo hi\n"), 0o644))

	root := t.TempDir()
	store := NewStore(root)
	installer := NewInstaller(store)

	t.Run("manifest path", func(t *testing.T) {
		result, err := installer.Install(ctx, filepath.Join(srcDir, ManifestFileName))
		require.NoError(t, err)
		assert.True(t, result.HandlerInstalled())
		assert.Equal(t, filepath.Join(root, "greet"), result.Skill.Dir)

		written, err := os.ReadFile(filepath.Join(root, "greet", ManifestFileName))
		require.NoError(t, err)
		assert.Equal(t, handlerManifest, string(written))

		info, err := os.Stat(filepath.Join(root, "greet", "greet.sh"))
		require.NoError(t, err)
		assert.NotZero(t, info.Mode().Perm()&0o100, "handler should be executable")

		skill, ok := store.Resolve(ctx, "greet")
		require.True(t, ok)
		assert.Equal(t, "1.2.0", skill.Manifest.Version)
	})

	t.Run("directory path", func(t *testing.T) {
		result, err := installer.Install(ctx, srcDir)
		require.NoError(t, err)
		assert.Equal(t, "greet", result.Skill.Manifest.Name)
	})
}

func TestInstallInformationalSkill(t *testing.T) {
	srcDir := t.TempDir()
	manifest := filepath.Join(srcDir, "notes.json")
	require.NoError(t, os.WriteFile(manifest, []byte(`{"name":"notes","description":"Just notes","version":"0.1"}`), 0o644))

	root := t.TempDir()
	result, err := NewInstaller(NewStore(root)).Install(context.Background(), manifest)
	require.NoError(t, err)
	assert.False(t, result.HandlerInstalled())
	assert.NoError(t, result.HandlerErr)

	entries, err := os.ReadDir(filepath.Join(root, "notes"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ManifestFileName, entries[0].Name())
}

func TestInstallInvalidManifestWritesNothing(t *testing.T) {
	tests := map[string]string{
		"missing version":     `{"name":"x","description":"d"}`,
		"missing name":        `{"description":"d","version":"1"}`,
		"missing description": `{"name":"x","version":"1"}`,
		"malformed":           `{"name":"x",`,
		"bad name":            `{"name":"a/b","description":"d","version":"1"}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			srcDir := t.TempDir()
			manifest := filepath.Join(srcDir, ManifestFileName)
			require.NoError(t, os.WriteFile(manifest, []byte(body), 0o644))

			root := t.TempDir()
			_, err := NewInstaller(NewStore(root)).Install(context.Background(), manifest)
			assert.True(t, errors.Is(err, ErrInvalidManifest))

			entries, err := os.ReadDir(root)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestInstallMissingHandlerKeepsManifest(t *testing.T) {
	srcDir := t.TempDir()
	manifest := filepath.Join(srcDir, ManifestFileName)
	require.NoError(t, os.WriteFile(manifest, []byte(handlerManifest), 0o644))

	root := t.TempDir()
	store := NewStore(root)
	result, err := NewInstaller(store).Install(context.Background(), manifest)
	require.NoError(t, err)
	assert.Error(t, result.HandlerErr)
	assert.False(t, result.HandlerInstalled())

	_, ok := store.Resolve(context.Background(), "greet")
	assert.True(t, ok)
	assert.NoFileExists(t, filepath.Join(root, "greet", "greet.sh"))
}

func TestReinstallWithoutHandlerDropsPreviousHandler(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewStore(root)
	installer := NewInstaller(store)

	v1 := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(v1, ManifestFileName), []byte(handlerManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(v1, "greet.sh"), []byte("echo v1\n"), 0o644))
	result, err := installer.Install(ctx, v1)
	require.NoError(t, err)
	require.True(t, result.HandlerInstalled())

	v2 := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(v2, ManifestFileName),
		[]byte(`{"name":"greet","description":"Say hello","version":"2.0.0","handler":"greet.sh"}`), 0o644))
	result, err = installer.Install(ctx, v2)
	require.NoError(t, err)
	assert.Error(t, result.HandlerErr)
	assert.False(t, result.HandlerInstalled())
	assert.NoFileExists(t, filepath.Join(root, "greet", "greet.sh"))

	skill, ok := store.Resolve(ctx, "greet")
	require.True(t, ok)
	assert.Equal(t, "2.0.0", skill.Manifest.Version)

	executor := NewExecutor(store, &fakeCapabilities{}, WithIO(IO{Stdout: io.Discard, Stderr: io.Discard}))
	err = executor.Execute(ctx, "greet", nil)
	assert.True(t, errors.Is(err, ErrHandlerMissing), "got %v", err)
}

func TestReinstallReplacesHandler(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	installer := NewInstaller(NewStore(root))

	for _, body := range []string{"echo v1\n", "echo v2\n"} {
		src := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(src, ManifestFileName), []byte(handlerManifest), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(src, "greet.sh"), []byte(body), 0o644))
		result, err := installer.Install(ctx, src)
		require.NoError(t, err)
		require.True(t, result.HandlerInstalled())
	}

	data, err := os.ReadFile(filepath.Join(root, "greet", "greet.sh"))
	require.NoError(t, err)
	assert.Equal(t, "echo v2\n", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "greet"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files left behind")
}

func TestInstallRemote(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/skills/greet/skill.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(handlerManifest))
	})
	mux.HandleFunc("/skills/greet/greet.sh", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("echo remote\n"))
	})
	mux.HandleFunc("/skills/gone/skill.json", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/skills/orphan/skill.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"name":"orphan","description":"d","version":"1","handler":"run.py"}`))
	})
	mux.HandleFunc("/skills/slow/skill.json", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()

	t.Run("manifest and handler", func(t *testing.T) {
		root := t.TempDir()
		result, err := NewInstaller(NewStore(root), WithHTTPClient(server.Client())).
			Install(ctx, server.URL+"/skills/greet/skill.json")
		require.NoError(t, err)
		assert.True(t, result.HandlerInstalled())

		data, err := os.ReadFile(filepath.Join(root, "greet", "greet.sh"))
		require.NoError(t, err)
		assert.Equal(t, "echo remote\n", string(data))
	})

	t.Run("manifest not found", func(t *testing.T) {
		root := t.TempDir()
		_, err := NewInstaller(NewStore(root)).Install(ctx, server.URL+"/skills/gone/skill.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
		assert.NoDirExists(t, filepath.Join(root, "gone"))
	})

	t.Run("handler not found", func(t *testing.T) {
		root := t.TempDir()
		result, err := NewInstaller(NewStore(root)).Install(ctx, server.URL+"/skills/orphan/skill.json")
		require.NoError(t, err)
		assert.Error(t, result.HandlerErr)
		assert.FileExists(t, filepath.Join(root, "orphan", ManifestFileName))
	})

	t.Run("timeout", func(t *testing.T) {
		root := t.TempDir()
		_, err := NewInstaller(NewStore(root), WithFetchTimeout(100*time.Millisecond)).
			Install(ctx, server.URL+"/skills/slow/skill.json")
		assert.Error(t, err)
	})
}

func TestInstallUnsupportedScheme(t *testing.T) {
	for _, src := range []string{"ftp://example.com/skill.json", "file:///tmp/skill.json"} {
		_, err := NewInstaller(NewStore(t.TempDir())).Install(context.Background(), src)
		assert.True(t, errors.Is(err, ErrUnsupportedSource), src)
	}
}

func TestSourceSibling(t *testing.T) {
	remote, err := parseSource("https://example.com/skills/greet/skill.json")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/skills/greet/greet.sh", remote.sibling("greet.sh").String())

	local, err := parseSource("/opt/skills/greet/skill.json")
	require.NoError(t, err)
	assert.Equal(t, "/opt/skills/greet/greet.sh", local.sibling("greet.sh").String())
}
