package skills

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/llmi-dev/llmi/pkg/logger"
)

// Installed is a manifest together with where it lives on disk.
type Installed struct {
	Manifest *Manifest
	Dir      string
}

// HandlerPath is the absolute path of the handler asset, or "".
func (s *Installed) HandlerPath() string {
	if !s.Manifest.HasHandler() {
		return ""
	}
	return filepath.Join(s.Dir, s.Manifest.Handler)
}

// Store is the on-disk skills root. Installer writes into it.
type Store struct {
	root string
}

// NewStore returns a store over root. The directory need not exist.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the skills root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory a skill named name occupies.
func (s *Store) Dir(name string) string {
	return filepath.Join(s.root, name)
}

// Resolve loads the manifest of the skill called name. A missing, unreadable
// or malformed manifest means the skill is not installed.
func (s *Store) Resolve(ctx context.Context, name string) (*Installed, bool) {
	if !isPlainFileName(name) {
		return nil, false
	}
	return s.load(ctx, s.Dir(name))
}

// Remove deletes the directory of the skill called name.
func (s *Store) Remove(ctx context.Context, name string) error {
	skill, ok := s.Resolve(ctx, name)
	if !ok {
		return errors.Wrapf(ErrSkillNotFound, "%q", name)
	}
	if err := os.RemoveAll(skill.Dir); err != nil {
		return errors.Wrapf(err, "failed to remove %s", skill.Dir)
	}
	return nil
}

func (s *Store) load(ctx context.Context, dir string) (*Installed, bool) {
	path := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.G(ctx).WithError(err).WithField("path", path).Debug("failed to read skill manifest")
		}
		return nil, false
	}

	m, err := ParseManifest(data)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("path", path).Debug("ignoring invalid skill manifest")
		return nil, false
	}
	return &Installed{Manifest: m, Dir: dir}, true
}

// ListAll returns every installed skill in directory order. Entries without
// a valid manifest are skipped.
func (s *Store) ListAll(ctx context.Context) []*Installed {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.G(ctx).WithError(err).WithField("dir", s.root).Debug("failed to read skills directory")
		}
		return nil
	}

	var skills []*Installed
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if skill, ok := s.load(ctx, filepath.Join(s.root, entry.Name())); ok {
			skills = append(skills, skill)
		}
	}
	return skills
}

// List returns installed skills whose name matches the glob pattern,
// sorted by name. An empty pattern matches everything.
func (s *Store) List(ctx context.Context, pattern string) ([]*Installed, error) {
	var matcher glob.Glob
	if pattern != "" {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid filter %q", pattern)
		}
		matcher = g
	}

	var out []*Installed
	for _, skill := range s.ListAll(ctx) {
		if matcher == nil || matcher.Match(skill.Manifest.Name) {
			out = append(out, skill)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Manifest.Name < out[j].Manifest.Name
	})
	return out, nil
}
