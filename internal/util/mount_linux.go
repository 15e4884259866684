//go:build linux

package util

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Kernel superblock magic numbers of network filesystems
var networkMagic = map[uint32]string{
	0x6969:     "nfs",
	0xff534d42: "cifs",
	0xfe534d42: "smb2",
	0x517b:     "smb",
	0x564c:     "ncpfs",
}

var networkFSTypes = []string{"nfs", "cifs", "smb", "ncpfs", "fuse.sshfs", "fuse.rclone", "9p"}

func detectPlatformMount(path string, stat *syscall.Statfs_t) (*MountInfo, error) {
	info := &MountInfo{}
	if name, ok := networkMagic[uint32(stat.Type)]; ok {
		info.Network = true
		info.FSType = name
	}

	f, err := os.Open("/proc/mounts")
	if err != nil {
		return info, nil
	}
	defer f.Close()

	mounts, err := parseMounts(f)
	if err != nil {
		return info, nil
	}
	if mp, fsType := mountFor(path, mounts); mp != "" {
		info.MountPoint = mp
		if isNetworkFSType(fsType) {
			info.Network = true
		}
		if info.FSType == "" || info.Network {
			info.FSType = fsType
		}
	}
	return info, nil
}

// parseMounts reads /proc/mounts lines into mount point -> fs type
func parseMounts(r io.Reader) (map[string]string, error) {
	mounts := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		// device mountpoint fstype options dump pass
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts[unescapeMount(fields[1])] = fields[2]
	}
	return mounts, scanner.Err()
}

// mountFor finds the longest mount point containing path
func mountFor(path string, mounts map[string]string) (string, string) {
	best, bestType := "", ""
	for mp, fsType := range mounts {
		if !withinDir(path, mp) || len(mp) <= len(best) {
			continue
		}
		best, bestType = mp, fsType
	}
	return best, bestType
}

func withinDir(path, dir string) bool {
	if dir == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

func isNetworkFSType(fsType string) bool {
	fsType = strings.ToLower(fsType)
	for _, t := range networkFSTypes {
		if fsType == t || strings.HasPrefix(fsType, t) {
			return true
		}
	}
	return false
}

// unescapeMount decodes the octal escapes /proc/mounts uses for spaces,
// tabs and backslashes
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return r.Replace(s)
}
