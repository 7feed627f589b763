package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is returned when a database path lives on a network
// mount. SQLite locking is unreliable there.
var ErrNetworkFilesystem = errors.New("sqlite database on network filesystem")

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// errUnsupportedDetect is returned by detectFilesystemType on platforms
// without a statfs mapping; the check is skipped there.
var errUnsupportedDetect = errors.New("filesystem detection unsupported")

// CheckLocalFilesystem ensures the history database path is on local disk.
func CheckLocalFilesystem(path string) error {
	return checkFilesystem(path, detectFilesystemType)
}

func checkFilesystem(path string, detect func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}
	if path == MemoryPath {
		return nil
	}

	existing, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, err := detect(existing)
	if errors.Is(err, errUnsupportedDetect) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}

	if isNetworkFilesystem(fsType) {
		return fmt.Errorf("%w: %q is on %q; set history.path to a local file", ErrNetworkFilesystem, path, fsType)
	}
	return nil
}

// nearestExistingPath walks up from path until it finds something that exists,
// so a database that has not been created yet is checked through its parent.
func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, found := networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
	return found
}
