//go:build !windows

package parser

import (
	"os"
	"syscall"
)

// openNoFollow opens an export for reading, refusing a symlink
// as the final path component so a file dropped into the import
// directory cannot redirect the read elsewhere.
func openNoFollow(path string) (*os.File, error) {
	return os.OpenFile(
		path, os.O_RDONLY|syscall.O_NOFOLLOW, 0,
	)
}
