package util

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// MountInfo describes the filesystem a path lives on
type MountInfo struct {
	Network    bool   // NFS, SMB/CIFS, sshfs and similar
	FSType     string // filesystem type name when known
	MountPoint string
}

// DetectMount reports the filesystem of path. A path that does not exist
// yet is resolved through its nearest existing parent, so an output root
// can be checked before the first batch creates it.
func DetectMount(path string) (*MountInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	existing, err := existingAncestor(absPath)
	if err != nil {
		return nil, err
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(existing, &stat); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem of %s: %w", existing, err)
	}
	return detectPlatformMount(existing, &stat)
}

// IsNetworkPath reports whether path is on a network filesystem.
// Detection errors count as local.
func IsNetworkPath(path string) bool {
	info, err := DetectMount(path)
	if err != nil {
		return false
	}
	return info.Network
}

func existingAncestor(path string) (string, error) {
	for p := path; ; p = filepath.Dir(p) {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}
		if parent := filepath.Dir(p); parent == p {
			return "", fmt.Errorf("%w: no existing parent of %s", ErrNotFound, path)
		}
	}
}
