package ui

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

//go:embed build
var buildFiles embed.FS
var files, _ = fs.Sub(buildFiles, "build")

// Register serves the landing page on / and /index.html.
func Register(r *mux.Router) {
	index := page("index.html")
	r.Methods("GET").Path("/").Handler(index)
	r.Methods("GET").Path("/index.html").Handler(index)
}

// page reads the embedded HTML file name once and returns a handler writing it.
func page(name string) http.HandlerFunc {
	content, err := fs.ReadFile(files, name)
	if err != nil {
		log.Panic().Err(err).Str("file", name).Msg("Embedded page missing")
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(content)
	}
}
