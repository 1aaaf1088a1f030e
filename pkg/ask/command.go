package ask

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/llmi-dev/llmi/pkg/logger"
)

// LastCommandFile is the file under the cache directory that shell key
// bindings read the most recent suggestion from.
const LastCommandFile = "last_command"

var commandBlock = regexp.MustCompile("(?s)```command\\s*\\n(.*?)\\n```")

// ExtractCommand returns the trimmed body of the first ```command block in
// text, or "" when there is none.
func ExtractCommand(text string) string {
	m := commandBlock.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// SaveLastCommand writes command to dir/last_command. Failures are logged
// and reported as false.
func SaveLastCommand(ctx context.Context, dir, command string) bool {
	log := logger.G(ctx).WithField("path", dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Debug("failed to create cache directory")
		return false
	}
	if err := os.WriteFile(filepath.Join(dir, LastCommandFile), []byte(command+"\n"), 0o644); err != nil {
		log.WithError(err).Debug("failed to cache last command")
		return false
	}
	return true
}
