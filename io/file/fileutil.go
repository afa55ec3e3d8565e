// Package file includes all our file related helpers used by the
// relay node for directory and log file handling.
package file

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/SeungheonOh/xreserve-relay/config/params"
	"github.com/pkg/errors"
)

// HomeDir for a user.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// ExpandPath given a string which may be a relative path.
// 1. replace tilde with users home dir
// 2. expands embedded environment variables
// 3. cleans the path, e.g. /a/b/../c -> /a/c
func ExpandPath(p string) (string, error) {
	if len(p) > 1 && p[:2] == "~/" {
		if home := HomeDir(); home != "" {
			p = home + p[1:]
		}
	}
	return filepath.Abs(filepath.Clean(os.ExpandEnv(p)))
}

// MkdirAll takes in a path, expands it if necessary, and looks through the
// permissions of every directory along the path, ensuring we are not attempting
// to overwrite any existing permissions. Finally, creates the directory accordingly
// with standardized, 0700 permissions.
func MkdirAll(dirPath string) error {
	exists, err := HasDir(dirPath)
	if err != nil {
		return err
	}
	if exists {
		info, err := os.Stat(dirPath)
		if err != nil {
			return err
		}
		if info.Mode().Perm() != params.RelayIoConfig().ReadWriteExecutePermissions {
			return errors.New("dir already exists without proper 0700 permissions")
		}
	}
	return os.MkdirAll(dirPath, params.RelayIoConfig().ReadWriteExecutePermissions)
}

// HasDir checks if a directory indeed exists at the specified path.
func HasDir(dirPath string) (bool, error) {
	fullPath, err := ExpandPath(dirPath)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if info == nil {
		return false, err
	}
	return info.IsDir(), err
}
