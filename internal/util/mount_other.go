//go:build !linux && !darwin

package util

import "syscall"

// Other platforms are treated as local storage
func detectPlatformMount(path string, stat *syscall.Statfs_t) (*MountInfo, error) {
	return &MountInfo{}, nil
}
