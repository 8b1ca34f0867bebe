package server

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/deworm/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// errorMessages maps the callback's error kinds to copy shown on the error
// page. Unknown kinds fall back to the generic message.
var errorMessages = map[string]string{
	ErrorKindDenied:        "Spotify access was denied. DeWorm needs playback permissions to work.",
	ErrorKindStateMismatch: "The login attempt could not be verified. Please try again.",
	ErrorKindNoCode:        "Spotify did not return an authorization code. Please try again.",
	ErrorKindAuthFailed:    "Signing in to Spotify failed. Please try again.",
}

// PageHandler renders the HTML surface: landing page, the search/player page
// and the auth error page.
type PageHandler struct {
	templates *template.Template
	stores    StoreFactory
	logger    *log.Logger
}

// NewPageHandler parses the embedded templates.
func NewPageHandler(stores StoreFactory, logger *log.Logger) (*PageHandler, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &PageHandler{templates: templates, stores: stores, logger: logger}, nil
}

// Routes returns the HTTP routes this handler serves.
func (h *PageHandler) Routes() []string {
	return []string{"/", "/search", "/auth/error", "/static/"}
}

func (h *PageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/":
		h.index(w, r)
	case "/search":
		h.search(w, r)
	case "/auth/error":
		h.authError(w, r)
	default:
		http.StripPrefix("/", http.FileServerFS(staticFS)).ServeHTTP(w, r)
	}
}

type pageData struct {
	Authenticated bool
	Profile       *models.UserProfile
	ErrorMessage  string
	ErrorKind     string
}

func (h *PageHandler) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template render failed", "template", name, "err", err)
	}
}

func (h *PageHandler) index(w http.ResponseWriter, r *http.Request) {
	store := h.stores(w, r)
	sess := store.Get()

	h.render(w, "index.html", pageData{
		Authenticated: store.IsAuthenticated(),
		Profile:       sess.Profile,
	})
}

// search is the player page; it requires a session and bounces anonymous
// visitors to the landing page.
func (h *PageHandler) search(w http.ResponseWriter, r *http.Request) {
	store := h.stores(w, r)
	sess := store.Get()

	if sess.AccessToken == "" && sess.RefreshToken == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	h.render(w, "search.html", pageData{
		Authenticated: true,
		Profile:       sess.Profile,
	})
}

func (h *PageHandler) authError(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("error")
	message, ok := errorMessages[kind]
	if !ok {
		message = "Something went wrong during sign in. Please try again."
	}

	h.render(w, "auth_error.html", pageData{
		ErrorKind:    kind,
		ErrorMessage: message,
	})
}

var _ Handler = (*PageHandler)(nil)
