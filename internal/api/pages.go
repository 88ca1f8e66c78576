package api

import (
	"net/http"
	"os"
	"path/filepath"
)

// PageHandler serves the web client's entry pages from dir.
type PageHandler struct {
	dir string
}

// Index serves the journal page.
func (p *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	p.File("index.html").ServeHTTP(w, r)
}

// File serves one page; without a web directory a plain placeholder is written.
func (p *PageHandler) File(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.dir != "" {
			path := filepath.Join(p.dir, name)
			if _, err := os.Stat(path); err == nil {
				http.ServeFile(w, r, path)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("moodtrack: " + name + "\n"))
	})
}
