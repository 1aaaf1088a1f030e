// Package skills implements installable command extensions. A skill is a
// directory under the skills root holding a skill.json manifest and, when
// the manifest names one, a handler that is executed with the user's
// arguments.
package skills

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// ManifestFileName is the manifest inside every skill directory.
const ManifestFileName = "skill.json"

// ParamTypeFile marks a parameter whose argument is a path to materialize.
const ParamTypeFile = "file"

// ErrInvalidManifest is wrapped by every manifest validation failure.
var ErrInvalidManifest = errors.New("invalid skill manifest")

// Parameter describes one positional argument of a skill.
type Parameter struct {
	Name        string      `json:"name" jsonschema:"description=Parameter name"`
	Description string      `json:"description,omitempty" jsonschema:"description=What the argument is for"`
	Type        string      `json:"type,omitempty" jsonschema:"description=Argument type; 'file' arguments are read and passed as file records"`
	Required    bool        `json:"required,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// Manifest is the identity and contract of an installed skill.
type Manifest struct {
	Name        string      `json:"name" jsonschema:"required,description=Unique skill name; also the directory and subcommand name"`
	Description string      `json:"description" jsonschema:"required"`
	Version     string      `json:"version" jsonschema:"required"`
	Author      string      `json:"author,omitempty"`
	Handler     string      `json:"handler,omitempty" jsonschema:"description=Handler file name relative to the manifest; absent for informational skills"`
	Parameters  []Parameter `json:"parameters,omitempty"`
}

// HasHandler reports whether the skill is executable.
func (m *Manifest) HasHandler() bool {
	return m.Handler != ""
}

// FileParameter returns the index and definition of the first parameter of
// type file, or -1.
func (m *Manifest) FileParameter() (int, *Parameter) {
	for i := range m.Parameters {
		if m.Parameters[i].Type == ParamTypeFile {
			return i, &m.Parameters[i]
		}
	}
	return -1, nil
}

// Validate checks required fields and that name and handler are safe to
// use as path components. Every problem is reported, not just the first.
func (m *Manifest) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(m.Name) == "" {
		result = multierror.Append(result, errors.New("missing required field 'name'"))
	}
	if strings.TrimSpace(m.Description) == "" {
		result = multierror.Append(result, errors.New("missing required field 'description'"))
	}
	if strings.TrimSpace(m.Version) == "" {
		result = multierror.Append(result, errors.New("missing required field 'version'"))
	}

	if m.Name != "" && !isPlainFileName(m.Name) {
		result = multierror.Append(result, errors.Errorf("name %q must be a plain directory name", m.Name))
	}
	if m.Handler != "" && !isPlainFileName(m.Handler) {
		result = multierror.Append(result, errors.Errorf("handler %q must be a file name next to the manifest", m.Handler))
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return errors.Wrap(ErrInvalidManifest, result.Error())
}

func isPlainFileName(name string) bool {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Base(name) == name
}

// ParseManifest decodes and validates manifest bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(ErrInvalidManifest, "malformed JSON: %v", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ManifestSchema returns the JSON schema of skill.json, for skill authors.
func ManifestSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	schema := r.Reflect(&Manifest{})
	schema.Title = "llmi skill manifest"
	return schema
}
