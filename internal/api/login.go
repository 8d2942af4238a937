package api

import (
	"errors"
	"net/http"

	"git.sr.ht/~jakintosh/oauth-relay/internal/resources"
	"git.sr.ht/~jakintosh/oauth-relay/internal/service"
)

// Login starts an authorization attempt and redirects to the provider.
func (a *API) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := a.sessions.Begin(r.Context(), w, r)
		if err != nil {
			a.logApiErr(r, "couldn't start session", err)
			http.Error(w, "Failed to start login", http.StatusInternalServerError)
			return
		}

		authURL, err := a.service.LoginURL(r.Context(), id)
		if err != nil {
			a.logApiErr(r, "couldn't build login url", err)
			http.Error(w, "Failed to start login", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// Callback completes the attempt started by Login and renders the result.
func (a *API) Callback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		id := a.sessions.SessionID(r)

		result, err := a.service.HandleCallback(r.Context(), id, q.Get("code"), q.Get("state"))
		a.sessions.ClearCookie(w)
		if err != nil {
			a.logApiErr(r, "callback failed", err)
			a.renderView(w, r, callbackStatus(err), resources.CallbackErrorView, resources.CallbackErrorModel{
				Error: service.DisplayMessage(err),
			})
			return
		}

		a.renderView(w, r, http.StatusOK, resources.CallbackView, resources.CallbackModel{
			AccessToken: result.AccessToken,
			Subject:     result.Subject,
			ExpiresIn:   result.ExpiresIn,
			Credential:  result.Credential,
			Degraded:    result.Degraded,
		})
	}
}

func callbackStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrMissingCode),
		errors.Is(err, service.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrExchange),
		errors.Is(err, service.ErrIdentityToken):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
