package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

const maxLogSize = 10 << 20

// setupLogFile tees the standard logger into debug.log in the
// data dir. Failure to open the file only costs the copy.
func setupLogFile(dataDir string) {
	path := filepath.Join(dataDir, "debug.log")
	truncateLogFile(path, maxLogSize)

	f, err := os.OpenFile(
		path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644,
	)
	if err != nil {
		log.Printf("warning: cannot open log file: %v", err)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
}

// truncateLogFile empties path once it grows past limit.
// Symlinks and other non-regular files are left alone.
func truncateLogFile(path string, limit int64) {
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if info.Size() <= limit {
		return
	}
	if err := os.Truncate(path, 0); err != nil {
		log.Printf("warning: truncating log file: %v", err)
	}
}
