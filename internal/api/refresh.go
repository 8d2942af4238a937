package api

import (
	"net/http"
	"strings"
)

type RefreshRequest struct {
	Sub string `json:"sub"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (a *API) Refresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		if ok := a.decodeRequest(&req, w, r); !ok {
			return
		}

		result, err := a.service.Refresh(r.Context(), req.Sub, bearerToken(r))
		if err != nil {
			a.writeError(w, r, err, "Token refresh failed")
			return
		}

		response := RefreshResponse{
			AccessToken: result.AccessToken,
			ExpiresIn:   result.ExpiresIn,
		}
		returnJson(&response, w)
	}
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
