// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// FileExists reports whether the named file or directory exists.
func FileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

// CleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.  An empty path is returned
// unchanged.
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		homeDir := os.Getenv("HOME")
		if u, err := user.Current(); err == nil {
			homeDir = u.HomeDir
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// os.ExpandEnv only understands the POSIX $VARIABLE form.
	return filepath.Clean(os.ExpandEnv(path))
}
