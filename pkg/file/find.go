package file

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FindOlderThan lists regular files under dir last modified before cutoff.
// A missing dir yields no files.
func FindOlderThan(dir string, cutoff time.Time) ([]string, error) {
	var ret []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() && info.ModTime().Before(cutoff) {
			ret = append(ret, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return ret, err
}
