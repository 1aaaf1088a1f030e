package skills

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/llmi-dev/llmi/pkg/files"
	"github.com/llmi-dev/llmi/pkg/logger"
)

// DefaultFetchTimeout bounds each manifest and handler fetch.
const DefaultFetchTimeout = 30 * time.Second

const maxManifestSize = 1 << 20

// ErrUnsupportedSource is returned for sources that are neither a local
// path nor an http(s) URL.
var ErrUnsupportedSource = errors.New("unsupported skill source")

// InstallResult describes a completed install. A non-nil HandlerErr means
// the manifest was installed but its handler could not be fetched.
type InstallResult struct {
	Skill      *Installed
	HandlerErr error
}

// HandlerInstalled reports whether a handler asset was written.
func (r *InstallResult) HandlerInstalled() bool {
	return r.Skill.Manifest.HasHandler() && r.HandlerErr == nil
}

// Installer fetches skills into a Store.
type Installer struct {
	store   *Store
	timeout time.Duration
	client  *http.Client
}

// InstallerOption configures an Installer instance
type InstallerOption func(*Installer)

// WithFetchTimeout overrides the per-fetch timeout.
func WithFetchTimeout(d time.Duration) InstallerOption {
	return func(i *Installer) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithHTTPClient sets the client used for remote sources. Its Timeout is
// replaced by the fetch timeout.
func WithHTTPClient(c *http.Client) InstallerOption {
	return func(i *Installer) {
		i.client = c
	}
}

// NewInstaller creates an installer writing into store.
func NewInstaller(store *Store, opts ...InstallerOption) *Installer {
	i := &Installer{
		store:   store,
		timeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}

	client := &http.Client{}
	if i.client != nil {
		copied := *i.client
		client = &copied
	}
	client.Timeout = i.timeout
	i.client = client
	return i
}

// source is a parsed install location.
type source struct {
	remote *url.URL
	path   string
}

func (s source) String() string {
	if s.remote != nil {
		return s.remote.String()
	}
	return s.path
}

// sibling resolves name next to the manifest: same directory for paths,
// same base URL with the last segment replaced for remote sources.
func (s source) sibling(name string) source {
	if s.remote != nil {
		return source{remote: s.remote.ResolveReference(&url.URL{Path: name})}
	}
	return source{path: filepath.Join(filepath.Dir(s.path), name)}
}

func parseSource(raw string) (source, error) {
	if idx := strings.Index(raw, "://"); idx > 0 {
		u, err := url.Parse(raw)
		if err != nil {
			return source{}, errors.Wrapf(ErrUnsupportedSource, "%s: %v", raw, err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return source{remote: u}, nil
		default:
			return source{}, errors.Wrapf(ErrUnsupportedSource, "scheme %q", u.Scheme)
		}
	}

	abs, err := filepath.Abs(raw)
	if err != nil {
		return source{}, errors.Wrapf(err, "failed to resolve %s", raw)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		abs = filepath.Join(abs, ManifestFileName)
	}
	return source{path: abs}, nil
}

// Install fetches the manifest at raw, validates it and writes it into the
// store, then fetches the handler if the manifest names one. Nothing is
// written unless the manifest is valid. A handler that cannot be fetched
// leaves the manifest installed and is reported in InstallResult.HandlerErr.
func (i *Installer) Install(ctx context.Context, raw string) (*InstallResult, error) {
	src, err := parseSource(raw)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithFields(ctx, logrus.Fields{"source": src.String()})

	data, err := i.fetch(ctx, src, maxManifestSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch manifest")
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}

	dir := i.store.Dir(manifest.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create skill directory %s", dir)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), data, 0o644); err != nil {
		return nil, errors.Wrap(err, "failed to write manifest")
	}
	logger.G(ctx).WithField("skill", manifest.Name).WithField("version", manifest.Version).Info("installed skill manifest")

	result := &InstallResult{Skill: &Installed{Manifest: manifest, Dir: dir}}
	if !manifest.HasHandler() {
		return result, nil
	}

	if err := i.installHandler(ctx, src.sibling(manifest.Handler), result.Skill.HandlerPath()); err != nil {
		logger.G(ctx).WithError(err).WithField("skill", manifest.Name).Warn("skill installed without its handler")
		result.HandlerErr = err
	}
	return result, nil
}

// installHandler replaces dest with the fetched handler. On any failure dest
// is removed so a previous version's handler never runs under a new manifest.
func (i *Installer) installHandler(ctx context.Context, src source, dest string) (err error) {
	defer func() {
		if err != nil {
			if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.G(ctx).WithError(rmErr).WithField("path", dest).Warn("failed to remove stale handler")
			}
		}
	}()

	data, err := i.fetch(ctx, src, files.MaxFileSize)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch handler %s", src)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create handler file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write handler")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to write handler")
	}
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		return errors.Wrap(err, "failed to mark handler executable")
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return errors.Wrap(err, "failed to install handler")
	}
	return nil
}

func (i *Installer) fetch(ctx context.Context, src source, limit int64) ([]byte, error) {
	if src.remote == nil {
		return readLocal(src.path, limit)
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.remote.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", src)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("GET %s: unexpected status %s", src, resp.Status)
	}
	return readLimited(resp.Body, limit)
}

func readLocal(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Wrap(files.ErrNotAFile, path)
	}
	return readLimited(f, limit)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.Errorf("content exceeds %d bytes", limit)
	}
	return data, nil
}
