package httpapi

import (
	"net/http"

	"orgdesk.org/internal/apperr"
	"orgdesk.org/internal/auth"
)

type successResponse struct {
	Success bool `json:"success"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	res, err := a.auth.Register(r.Context(), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	res, err := a.auth.Login(r.Context(), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeAppError(w, r, apperr.Unauthorized("No token provided"))
		return
	}
	if err := a.auth.Logout(r.Context(), token); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	user, err := auth.RequireUser(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
