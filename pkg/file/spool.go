package file

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Spool copies r into a new uniquely named file in dir and returns its path.
// A partial file is removed on failure.
func Spool(dir, name string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create spool dir: %w", err)
	}
	dst := filepath.Join(dir, UniqueName(name))
	out, err := os.Create(dst)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", 0, err
	}
	return dst, n, nil
}
