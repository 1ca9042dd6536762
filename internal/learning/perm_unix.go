//go:build !windows

package learning

import "os"

func restrictDir(dir string) error {
	return os.Chmod(dir, 0o700)
}
