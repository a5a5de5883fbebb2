package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kozaktomas/deface/internal/config"
)

// FilesHandler lists the shared directory so API clients can discover
// uploaded videos and reference folders. Debug aid; no uploads or downloads.
type FilesHandler struct {
	config *config.Config
}

// NewFilesHandler creates a files handler.
func NewFilesHandler(cfg *config.Config) *FilesHandler {
	return &FilesHandler{config: cfg}
}

type fileEntry struct {
	Name     string    `json:"name"`
	IsDir    bool      `json:"is_dir"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// List handles GET /files.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	sharedDir := h.config.Web.SharedDir
	if sharedDir == "" {
		respondError(w, http.StatusInternalServerError, "shared directory not configured")
		return
	}

	entries, err := os.ReadDir(sharedDir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reading shared directory failed")
		return
	}

	files := make([]fileEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileEntry{
			Name:     filepath.Base(e.Name()),
			IsDir:    e.IsDir(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"shared_dir": sharedDir,
		"files":      files,
	})
}
