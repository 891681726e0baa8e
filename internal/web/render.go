package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/errors"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
}

// ArchivePageData is the template data for the public archive.
type ArchivePageData struct {
	PageData
	Items []ArchiveItem
}

// ArchiveItem is one unlocked public capsule in the archive listing.
type ArchiveItem struct {
	ID         uint64
	Owner      string
	UnlockTime uint64
	Keys       []string
}

// CapsulePageData is the template data for a single archived capsule.
type CapsulePageData struct {
	PageData
	Capsule capsule.Capsule
	Entries []RenderedEntry
}

// RenderedEntry is a content entry whose value has been rendered from markdown.
type RenderedEntry struct {
	Key  string
	HTML template.HTML
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	log       *zap.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	funcMap := template.FuncMap{
		"formatTime": formatTime,
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"archive": "archive.html",
		"capsule": "capsule.html",
		"error":   "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		log:       log,
	}
}

// renderPage renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPage(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.log.Error("template not found", zap.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.log.Error("template execution error", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders the HTML error page.
func (r *Renderer) renderError(w http.ResponseWriter, err error) {
	hErr := asHeritageError(err)
	if hErr.Code == errors.ErrInternal {
		r.log.Error("request failed", zap.Error(err))
	}
	r.renderPage(w, hErr.Status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", hErr.Status),
			Version: r.version,
		},
		StatusCode: hErr.Status,
		Message:    publicMessage(hErr),
	})
}

// renderAPIError writes the JSON error envelope used by every /api route.
func renderAPIError(w http.ResponseWriter, err error) {
	hErr := asHeritageError(err)
	errorObj := map[string]any{
		"code":    string(hErr.Code),
		"message": publicMessage(hErr),
		"status":  hErr.Status,
	}
	if hErr.Code != errors.ErrInternal && hErr.Details != nil {
		errorObj["details"] = hErr.Details
	}
	renderJSON(w, hErr.Status, map[string]any{"error": errorObj})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func asHeritageError(err error) *errors.HeritageError {
	var hErr *errors.HeritageError
	if !stderrors.As(err, &hErr) {
		hErr = errors.NewInternal(err)
	}
	return hErr
}

// publicMessage hides internal error text, which may carry paths or SQL.
func publicMessage(hErr *errors.HeritageError) string {
	if hErr.Code == errors.ErrInternal {
		return "an internal error occurred"
	}
	return hErr.Message
}

// renderMarkdown converts markdown text to HTML using goldmark.
// Raw HTML in the source is not passed through.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats a nanosecond timestamp as "2006-01-02 15:04" UTC.
func formatTime(nanos uint64) string {
	return time.Unix(0, int64(nanos)).UTC().Format("2006-01-02 15:04")
}
