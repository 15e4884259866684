package util

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"syscall"
)

// GenerateFileKey identifies a video by where it lives on disk: SHA1 of
// device, inode, size and mtime. The scanner uses it to drop a video
// reached through two source arguments, and the catalog uses it to find
// videos a resumed batch already finished. Without inode data (non-Unix
// filesystems) only size and mtime are hashed.
func GenerateFileKey(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return sha1Hex(fmt.Sprintf("%d:%d:%d:%d", st.Dev, st.Ino, info.Size(), info.ModTime().Unix())), nil
	}
	return sha1Hex(fmt.Sprintf("%d:%d", info.Size(), info.ModTime().Unix())), nil
}

// StableSuffix returns 8 hex digits derived from s. The organizer appends it
// to an output name claimed by another source, so the same source gets the
// same name in every run.
func StableSuffix(s string) string {
	sum := sha1.Sum([]byte(s))
	return fmt.Sprintf("%x", sum[:4])
}

// GenerateContentHash hashes the file content, for hash-verified placement
func GenerateContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// GetFileMetadata returns size and mtime (Unix seconds) for the scan record
func GetFileMetadata(path string) (size int64, mtime int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Size(), info.ModTime().Unix(), nil
}

func sha1Hex(s string) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(s)))
}
