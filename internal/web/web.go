package web

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi"
	log "github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

type Page struct {
	Title       string
	IngressPath string
	SocketPort  string
}

type Handler struct {
	tmpl *template.Template
	page Page
}

func NewHandler(page Page) (*Handler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{tmpl: tmpl, page: page}, nil
}

func (h *Handler) SetRoutes(r chi.Router) {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		// the embedded tree is fixed at build time
		panic(err)
	}

	r.Get("/", h.render("home.html"))
	r.Get("/card-reader", h.render("card-reader.html"))
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
}

func (h *Handler) render(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := h.tmpl.ExecuteTemplate(&buf, name, h.page); err != nil {
			log.Errorf("Failed to render %s: %v", name, err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := buf.WriteTo(w); err != nil {
			log.Errorf("Failed to write %s: %v", name, err)
		}
	}
}
