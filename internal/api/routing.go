package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Router keeps every route on one router so that a method mismatch under
// /api answers 405.
func (a *API) Router() http.Handler {
	r := mux.NewRouter().UseEncodedPath()
	r.Use(a.recoverPanics)

	r.HandleFunc("/login", a.Login()).Methods(http.MethodGet)
	r.HandleFunc("/callback", a.Callback()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.Health()).Methods(http.MethodGet)

	r.HandleFunc("/api/refresh", a.Refresh()).Methods(http.MethodPost)

	r.Handle("/api/admin/tokens", a.requireAdmin(a.ListTokens())).Methods(http.MethodGet)
	r.Handle("/api/admin/tokens/{sub}", a.requireAdmin(a.DeleteToken())).Methods(http.MethodDelete)

	return r
}

// recoverPanics turns a panicking handler into a 500 response.
func (a *API) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				a.log.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", v)
				writeJsonError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
