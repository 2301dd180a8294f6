//go:build windows

package parser

import "os"

// openNoFollow opens an export for reading. O_NOFOLLOW is not
// available on Windows; discovery already skips symlinks.
func openNoFollow(path string) (*os.File, error) {
	return os.Open(path)
}
