package panel

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web
var content embed.FS

// indexFile is served for the root and for any path with no matching file.
const indexFile = "index.html"

// Handler returns the status page handler. Assets come from dir when it
// names an existing directory, otherwise from the embedded copy.
func Handler(dir string) http.Handler {
	return handler(assets(dir))
}

func assets(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	sub, err := fs.Sub(content, "web")
	if err != nil {
		// The embed directive guarantees "web" exists.
		panic("panel: embedded assets missing: " + err.Error())
	}
	return sub
}

func handler(fsys fs.FS) http.Handler {
	files := http.FileServerFS(fsys)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		// Device data changes constantly; the page must never be stale.
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		name := path.Clean("/" + r.URL.Path)[1:]
		if name == "" {
			name = indexFile
		}
		if fi, err := fs.Stat(fsys, name); err != nil || fi.IsDir() {
			http.ServeFileFS(w, r, fsys, indexFile)
			return
		}
		files.ServeHTTP(w, r)
	})
}
