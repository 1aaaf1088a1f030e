package skills

import (
	"context"

	"github.com/llmi-dev/llmi/pkg/files"
	"github.com/llmi-dev/llmi/pkg/logger"
)

// Preprocess builds the argument list handed to a handler. Each element is
// either a string or a files.Record. When the manifest declares a file
// parameter, the first positional argument is read and replaced by its
// record. If that read fails the raw arguments are returned unchanged and
// the handler is left to deal with the path itself.
//
// rawArgs is never modified.
func Preprocess(ctx context.Context, m *Manifest, rawArgs []string) []interface{} {
	args := make([]interface{}, len(rawArgs))
	for i, a := range rawArgs {
		args[i] = a
	}

	idx, param := m.FileParameter()
	if idx < 0 || len(rawArgs) == 0 {
		return args
	}

	// only the first positional argument binds to the first file parameter
	record, err := files.Read(rawArgs[0])
	if err != nil {
		logger.G(ctx).WithError(err).
			WithField("skill", m.Name).
			WithField("parameter", param.Name).
			Debug("passing file argument through unread")
		return args
	}

	args[0] = record
	return args
}
