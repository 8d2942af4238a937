package api

import (
	"crypto/subtle"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

const adminUser = "admin"

type DeleteResponse struct {
	Success bool `json:"success"`
}

func (a *API) ListTokens() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := a.service.ListTokens(r.Context())
		if err != nil {
			a.writeError(w, r, err, "Failed to fetch tokens")
			return
		}
		returnJson(records, w)
	}
}

func (a *API) DeleteToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := url.PathUnescape(mux.Vars(r)["sub"])
		if err != nil {
			a.logApiErr(r, "bad subject in path", err)
			writeJsonError(w, http.StatusBadRequest, "No sub provided")
			return
		}

		if err := a.service.DeleteToken(r.Context(), sub); err != nil {
			a.writeError(w, r, err, "Failed to delete token")
			return
		}
		returnJson(&DeleteResponse{Success: true}, w)
	}
}

// requireAdmin checks HTTP Basic credentials when an admin password hash is
// configured.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.adminHash == nil {
			next.ServeHTTP(w, r)
			return
		}

		user, password, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(adminUser)) == 1
		if !ok || !userOK || bcrypt.CompareHashAndPassword(a.adminHash, []byte(password)) != nil {
			a.log.Warn("admin auth failed", "method", r.Method, "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Basic realm="oauth-relay admin"`)
			writeJsonError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
