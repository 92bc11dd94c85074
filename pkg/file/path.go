package file

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UniqueName returns a random file name that keeps name's extension.
func UniqueName(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if ext == "." {
		ext = ""
	}
	return uuid.NewString() + ext
}
