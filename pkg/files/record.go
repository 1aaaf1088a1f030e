// Package files turns local paths into FileContentRecords, the shape in
// which file contents are attached to questions and handed to skills.
package files

import (
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// MaxFileSize is the largest file that will be read. Larger files are
// rejected outright, never partially read.
const MaxFileSize int64 = 10 * 1024 * 1024

var (
	// ErrFileTooLarge is returned for files above MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds 10 MiB limit")
	// ErrNotAFile is returned when the path names a directory or device.
	ErrNotAFile = errors.New("path is not a regular file")
)

// Record is a materialized file. Exactly one of the content fields or Error
// is meaningful: a record with a non-empty Error carries nothing else.
type Record struct {
	Path     string `json:"path,omitempty"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Content  string `json:"content,omitempty"`
	IsBinary bool   `json:"is_binary,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether the record describes a read failure.
func (r Record) Failed() bool {
	return r.Error != ""
}

// Map returns the record as a plain map, which is how records are handed to
// interpreted handlers.
func (r Record) Map() map[string]interface{} {
	if r.Failed() {
		return map[string]interface{}{"error": r.Error}
	}
	return map[string]interface{}{
		"path":      r.Path,
		"name":      r.Name,
		"size":      r.Size,
		"content":   r.Content,
		"is_binary": r.IsBinary,
	}
}

// Read materializes path. Text that decodes as UTF-8 is kept verbatim;
// anything else is base64-encoded and flagged binary.
func Read(path string) (Record, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Record{}, errors.Wrapf(err, "failed to resolve %s", path)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, errors.Errorf("file not found: %s", abs)
		}
		return Record{}, errors.Wrapf(err, "failed to stat %s", abs)
	}
	if !info.Mode().IsRegular() {
		return Record{}, errors.Wrap(ErrNotAFile, abs)
	}
	if info.Size() > MaxFileSize {
		return Record{}, errors.Wrapf(ErrFileTooLarge, "%s is %d bytes", abs, info.Size())
	}

	f, err := os.Open(abs)
	if err != nil {
		return Record{}, errors.Wrapf(err, "failed to open %s", abs)
	}
	defer f.Close()

	// the file may have grown since Stat
	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return Record{}, errors.Wrapf(err, "failed to read %s", abs)
	}
	if int64(len(data)) > MaxFileSize {
		return Record{}, errors.Wrapf(ErrFileTooLarge, "%s grew past the limit while reading", abs)
	}

	record := Record{
		Path: abs,
		Name: filepath.Base(abs),
		Size: int64(len(data)),
	}
	if utf8.Valid(data) {
		record.Content = string(data)
	} else {
		record.Content = base64.StdEncoding.EncodeToString(data)
		record.IsBinary = true
	}
	return record, nil
}

// ReadRecord is Read with the error folded into the record itself.
func ReadRecord(path string) Record {
	record, err := Read(path)
	if err != nil {
		return Record{Error: err.Error()}
	}
	return record
}
