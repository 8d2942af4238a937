// Package api exposes the relay over HTTP: the browser login flow, the
// refresh API and the admin token endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"git.sr.ht/~jakintosh/oauth-relay/internal/resources"
	"git.sr.ht/~jakintosh/oauth-relay/internal/service"
	"git.sr.ht/~jakintosh/oauth-relay/internal/session"
)

type Options struct {
	// AdminPasswordHash is a bcrypt hash; when set, admin routes require
	// HTTP Basic auth with a matching password.
	AdminPasswordHash string
	// Health reports the database connection state.
	Health func() string
	Logger *slog.Logger
}

type API struct {
	service   *service.Service
	sessions  *session.Manager
	views     *resources.Views
	adminHash []byte
	health    func() string
	log       *slog.Logger
}

func New(
	svc *service.Service,
	sessions *session.Manager,
	views *resources.Views,
	opts Options,
) *API {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	health := opts.Health
	if health == nil {
		health = func() string { return "unknown" }
	}
	var adminHash []byte
	if opts.AdminPasswordHash != "" {
		adminHash = []byte(opts.AdminPasswordHash)
	}
	return &API{
		service:   svc,
		sessions:  sessions,
		views:     views,
		adminHash: adminHash,
		health:    health,
		log:       log.With("component", "api"),
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (a *API) decodeRequest(req any, w http.ResponseWriter, r *http.Request) bool {
	err := json.NewDecoder(r.Body).Decode(req)
	if err != nil {
		a.logApiErr(r, "bad json request", err)
		writeJsonError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func returnJson(data any, w http.ResponseWriter) {
	body, err := json.Marshal(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func writeJsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

// writeError maps service errors to a status and a message that carries no
// provider details. fallback is used for unexpected failures.
func (a *API) writeError(
	w http.ResponseWriter,
	r *http.Request,
	err error,
	fallback string,
) {
	a.logApiErr(r, fallback, err)

	switch {
	case errors.Is(err, service.ErrMissingSubject):
		writeJsonError(w, http.StatusBadRequest, "No sub provided")
	case errors.Is(err, service.ErrTokenNotFound):
		writeJsonError(w, http.StatusNotFound, "No refresh token found for this user")
	case errors.Is(err, service.ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", `Bearer realm="oauth-relay"`)
		writeJsonError(w, http.StatusUnauthorized, "Unauthorized")
	default:
		writeJsonError(w, http.StatusInternalServerError, fallback)
	}
}

func (a *API) logApiErr(r *http.Request, msg string, err error) {
	a.log.Warn(msg, "method", r.Method, "path", r.URL.Path, "error", err)
}

func (a *API) renderView(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	name string,
	data any,
) {
	page, err := a.views.RenderTemplate(name, data)
	if err != nil {
		a.logApiErr(r, "couldn't render template", err)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(resources.ServerErrorHTML))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(page)
}
