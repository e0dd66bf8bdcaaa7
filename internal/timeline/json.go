package timeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File and directory permissions.
const (
	filePermissions = 0o600
	dirPermissions  = 0o750
	jsonIndent      = "    "
)

// Interchange document keys.
const (
	KeyStartTime  = "start_time"
	KeyEndTime    = "end_time"
	KeyWord       = "word"
	KeyPhoneme    = "phoneme"
	KeyViseme     = "viseme"
	KeyMouthShape = "mouth_shape"
)

// ErrMissingKey is wrapped by DocumentError when a required key is absent.
var ErrMissingKey = errors.New("missing required key")

// DocumentError reports a malformed interchange document.
type DocumentError struct {
	Path  string
	Index int
	Key   string
	Err   error
}

func (e *DocumentError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("malformed document %s: %v", e.Path, e.Err)
	}

	return fmt.Sprintf("malformed document %s: entry %d key %q: %v", e.Path, e.Index, e.Key, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// parseJSON parses JSON data into the target.
func parseJSON(data []byte, target any) error {
	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

// encodeJSON renders v as indented JSON terminated by a newline.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", jsonIndent)

	err := encoder.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return buf.Bytes(), nil
}

// writeFileAtomic writes data next to path and renames it into place so
// readers never observe a partially written document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	dirErr := os.MkdirAll(dir, dirPermissions)
	if dirErr != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, dirErr)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}

	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write %s: %w", path, errors.Join(writeErr, closeErr))
	}

	chmodErr := os.Chmod(tmpName, filePermissions)
	if chmodErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to set permissions on %s: %w", path, chmodErr)
	}

	renameErr := os.Rename(tmpName, path)
	if renameErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to move %s into place: %w", path, renameErr)
	}

	return nil
}
