package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SaveError reports a transcript that could not be written to disk.
type SaveError struct {
	Path string
	Err  error
}

// Error formats the failure for the user.
func (e *SaveError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("could not save transcript to %s", e.Path)
	}
	return fmt.Sprintf("could not save transcript to %s: %v", e.Path, e.Err)
}

// Unwrap exposes the filesystem error.
func (e *SaveError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TextPath appends .txt when path carries no extension.
func TextPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.Ext(path) != "" {
		return path
	}
	return path + ".txt"
}

// DefaultName returns "<video>.txt" inside dir for the given source video.
func DefaultName(dir, videoPath string) string {
	base := filepath.Base(videoPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "transcript"
	}
	name := stem + ".txt"
	if strings.TrimSpace(dir) == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// Save writes text verbatim as UTF-8 and returns the final path.
// Parent directories are created as needed and existing files are replaced.
func Save(path, text string) (string, error) {
	target := TextPath(path)
	if target == "" {
		return "", &SaveError{Path: path, Err: fmt.Errorf("empty path")}
	}

	if dir := filepath.Dir(target); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", &SaveError{Path: target, Err: err}
		}
	}
	if err := os.WriteFile(target, []byte(text), 0o644); err != nil {
		return "", &SaveError{Path: target, Err: err}
	}
	return target, nil
}
