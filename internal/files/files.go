// Package files implements generic file tools missing from the standard library.
package files

import (
	"os"
	"os/user"
	"path"
	"strings"
)

// Exists returns true if file or directory exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ExpandHome replaces a leading "~" or "~/" in filePath by the current user's home directory.
func ExpandHome(filePath string) string {
	if filePath == "" || filePath[0] != '~' {
		return filePath
	}
	if filePath != "~" && !strings.HasPrefix(filePath, "~/") {
		return filePath
	}
	var homeDir string
	if usr, err := user.Current(); err == nil {
		homeDir = usr.HomeDir
	} else if home, err := os.UserHomeDir(); err == nil {
		homeDir = home
	} else {
		return filePath
	}
	return path.Join(homeDir, filePath[1:])
}
