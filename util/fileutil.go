package util

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// FileExists returns true if the file or directory at path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ExpandTilde expands a leading tilde in filePath to the current
// user's home directory. Paths without one are returned unchanged.
func ExpandTilde(filePath string) (string, error) {
	if !strings.HasPrefix(filePath, "~") {
		return filePath, nil
	}
	usr, err := user.Current()
	if err != nil {
		return "", err
	}
	return filepath.Join(usr.HomeDir, filePath[1:]), nil
}

// LooksSafeToDelete returns true if dir is at least minLength
// characters long and contains at least minSeparators path
// separators. This keeps us from deleting things like "/" or
// "/usr/local" because of a bad setting.
func LooksSafeToDelete(dir string, minLength, minSeparators int) bool {
	separator := string(os.PathSeparator)
	separatorCount := len(dir) - len(strings.ReplaceAll(dir, separator, ""))
	return len(dir) >= minLength && separatorCount >= minSeparators
}
