// Package web embeds the Mini App page and its static assets.
//
// dist/index.html is an html/template rendered with the agent catalog, so the
// catalog view is complete before any script runs. dist/static holds the
// script and stylesheet served under /static/.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/ashureev/tinyagents/internal/catalog"
)

//go:embed all:dist
var distFS embed.FS

// PageData is the template input for index.html.
type PageData struct {
	Cards           []catalog.Card
	BackgroundColor string
}

// Page renders the Mini App shell.
type Page struct {
	tmpl *template.Template
	data PageData
}

// NewPage parses the embedded index template for the given catalog.
func NewPage(cat *catalog.Catalog, backgroundColor string) (*Page, error) {
	tmpl, err := template.ParseFS(distFS, "dist/index.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse index template: %w", err)
	}
	return &Page{
		tmpl: tmpl,
		data: PageData{Cards: cat.Cards(), BackgroundColor: backgroundColor},
	}, nil
}

// ServeHTTP renders the page.
func (p *Page) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, p.data); err != nil {
		slog.Error("web: failed to render index", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("web: failed to write index", "error", err)
	}
}

// StaticHandler serves the embedded assets. Mount it under /static/.
func StaticHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist/static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(subFS)))
}
