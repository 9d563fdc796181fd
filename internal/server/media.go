package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MediaPrefix is served from disk instead of being proxied. When the upstream is this server's own
// host, proxying it would redirect forever.
const MediaPrefix = "/api/media_files/"

// MediaHandler serves uploaded media files from a local directory.
type MediaHandler struct {
	root string
}

// NewMediaHandler creates a handler serving files below dir. An empty dir answers every request
// with 404.
func NewMediaHandler(dir string) *MediaHandler {
	return &MediaHandler{root: dir}
}

// Routes returns the HTTP routes this handler serves.
func (h *MediaHandler) Routes() []string {
	return []string{MediaPrefix}
}

// ServeHTTP serves a regular file below the media root. Traversal attempts get 400, directories and
// missing files 404.
func (h *MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.root == "" {
		http.NotFound(w, r)
		return
	}

	rel, ok := mediaPath(r.URL.Path)
	if !ok {
		http.Error(w, "Invalid media path", http.StatusBadRequest)
		return
	}

	full := filepath.Join(h.root, filepath.FromSlash(rel))
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "Unable to open media file", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// mediaPath returns the slash-separated path below [MediaPrefix], rejecting any ".." segment.
func mediaPath(urlPath string) (string, bool) {
	rel := strings.TrimPrefix(urlPath, MediaPrefix)
	if rel == "" || rel == urlPath || strings.Contains(rel, "\x00") || strings.Contains(rel, `\`) {
		return "", false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", false
		}
	}
	clean := path.Clean("/" + rel)
	return strings.TrimPrefix(clean, "/"), clean != "/"
}
