//go:build !unix

package walker

import "os"

func fileIdentity(info os.FileInfo) (dev, inode uint64) {
	return 0, 0
}

func deviceID(path string) (uint64, error) {
	return 0, nil
}
