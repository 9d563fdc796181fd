package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// StaticHandler serves the frontend build, falling back to index.html for client-side routes.
type StaticHandler struct {
	root  string
	files http.Handler
}

// NewStaticHandler creates a handler for the build directory dir.
func NewStaticHandler(dir string) *StaticHandler {
	return &StaticHandler{root: dir, files: http.FileServer(http.Dir(dir))}
}

// Routes returns the HTTP routes this handler serves.
func (h *StaticHandler) Routes() []string {
	return []string{"/"}
}

func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	if info, err := os.Stat(filepath.Join(h.root, filepath.FromSlash(name))); err == nil && !info.IsDir() || name == "/" {
		h.files.ServeHTTP(w, r)
		return
	}
	if path.Ext(name) != "" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filepath.Join(h.root, "index.html"))
}
