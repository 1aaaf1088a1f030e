package ask

import (
	"embed"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/llmi-dev/llmi/pkg/files"
	"github.com/llmi-dev/llmi/pkg/terminal"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// UserInput is everything that goes into the user turn of a question.
type UserInput struct {
	Question string
	Files    []files.Record
	Terminal string
}

// SystemPrompt renders the assistant persona for the given environment.
func SystemPrompt(env terminal.ShellInfo) (string, error) {
	return render("system.tmpl", env)
}

// UserPrompt renders the question with its attachments.
func UserPrompt(in UserInput) (string, error) {
	return render("user.tmpl", in)
}

func render(name string, data interface{}) (string, error) {
	var buf strings.Builder
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", errors.Wrapf(err, "failed to execute template %s", name)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
