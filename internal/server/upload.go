package server

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/wesm/clinicview/internal/parser"
)

// maxUploadSize caps the request body of an export upload.
const maxUploadSize = 64 << 20

type uploadRequest struct {
	collection string
	file       multipart.File
	filename   string
}

type uploadResponse struct {
	File       string `json:"file"`
	Collection string `json:"collection,omitempty"`
	Records    int    `json:"records"`
	Invalid    int    `json:"invalid"`
}

// parseUploadRequest extracts and validates the collection
// param and the multipart file. The caller must close req.file.
func parseUploadRequest(
	r *http.Request,
) (*uploadRequest, string) {
	var collection string
	if c := strings.TrimSpace(r.URL.Query().Get("collection")); c != "" {
		collection = parser.NormalizeCollection(c)
		if collection == "" {
			return nil, "unknown collection: " + c
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "file field required"
	}

	if !parser.IsExportFile(header.Filename) {
		file.Close()
		return nil, "file must be .jsonl or .ndjson"
	}

	safeName := filepath.Base(header.Filename)
	ext := filepath.Ext(safeName)
	if safeName != header.Filename ||
		!isSafeName(strings.TrimSuffix(safeName, ext)) {
		file.Close()
		return nil, "invalid filename"
	}

	// Name the file after the collection so later rescans infer
	// the same collection for documents that do not carry one.
	if collection != "" && parser.CollectionFromName(safeName) == "" {
		safeName = collection + "-" + safeName
	}

	return &uploadRequest{
		collection: collection,
		file:       file,
		filename:   safeName,
	}, ""
}

// uploadDir returns the directory uploads are written to. It
// lives under the first import dir so the sync engine accepts
// the files.
func (s *Server) uploadDir() (string, error) {
	dirs := s.engine.ImportDirs()
	if len(dirs) == 0 || dirs[0] == "" {
		return "", fmt.Errorf("no import directory configured")
	}
	return filepath.Join(dirs[0], "uploads"), nil
}

// saveUpload writes src to <uploadDir>/<filename>. The data is
// staged in a hidden temp file and renamed into place so the
// watcher never sees a partial export.
func (s *Server) saveUpload(
	filename string, src io.Reader,
) (string, error) {
	dir, err := s.uploadDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf(
			"creating upload directory: %w", err,
		)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("saving uploaded file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing uploaded file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing uploaded file: %w", err)
	}

	destPath := filepath.Join(dir, filename)
	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("saving uploaded file: %w", err)
	}
	return destPath, nil
}

func (s *Server) handleUploadRecords(
	w http.ResponseWriter, r *http.Request,
) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	req, errMsg := parseUploadRequest(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	defer req.file.Close()

	destPath, err := s.saveUpload(req.filename, req.file)
	if err != nil {
		log.Printf("Error saving upload: %v", err)
		writeError(w, http.StatusInternalServerError,
			"failed to save upload")
		return
	}

	stats := s.engine.SyncPaths([]string{destPath})
	s.metrics.observeSync(stats)
	if stats.Failed > 0 || stats.Records == 0 {
		// A rejected export would fail again on every rescan.
		if err := os.Remove(destPath); err != nil {
			log.Printf("removing rejected upload: %v", err)
		}
		msg := "no records parsed from upload"
		if len(stats.Warnings) > 0 {
			msg = strings.ReplaceAll(
				stats.Warnings[0], destPath, req.filename,
			)
		}
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		File:       req.filename,
		Collection: req.collection,
		Records:    stats.Records,
		Invalid:    stats.Invalid,
	})
}

// isSafeName rejects names containing path separators, "..",
// or starting with "." to prevent directory traversal.
func isSafeName(name string) bool {
	if name == "" {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	if strings.HasPrefix(name, ".") {
		return false
	}
	return true
}
