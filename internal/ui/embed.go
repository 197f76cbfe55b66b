package ui

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed static
var staticFS embed.FS

// StaticFS returns the embedded static/ filesystem with the prefix stripped.
func StaticFS() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}

// BlockPage parses the block page template.
func BlockPage() (*template.Template, error) {
	return template.ParseFS(staticFS, "static/blocked.html")
}

// Handler serves the embedded assets. Templates are not served and missing
// assets return 404.
func Handler() (http.Handler, error) {
	sub, err := StaticFS()
	if err != nil {
		return nil, err
	}

	fileServer := http.FileServerFS(sub)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if p == "" || p == "." || strings.HasSuffix(p, ".html") {
			http.NotFound(w, r)
			return
		}
		if _, err := fs.Stat(sub, p); err != nil {
			http.NotFound(w, r)
			return
		}
		r.URL.Path = "/" + p
		fileServer.ServeHTTP(w, r)
	}), nil
}
