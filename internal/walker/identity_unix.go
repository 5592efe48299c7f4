//go:build unix

package walker

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func fileIdentity(info os.FileInfo) (dev, inode uint64) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return uint64(st.Dev), uint64(st.Ino)
}

// deviceID returns the device a path lives on, following symlinks.
func deviceID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Dev), nil
}
