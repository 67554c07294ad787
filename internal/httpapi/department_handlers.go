package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"orgdesk.org/internal/auth"
	"orgdesk.org/internal/org"
)

type renameRequest struct {
	Name string `json:"name"`
}

// pathID parses the {id} URL parameter. Unparseable ids become 0 and are
// rejected by the service like any other non-positive id.
func pathID(r *http.Request) int64 {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// ownerHandler resolves the authenticated user before calling fn.
func ownerHandler(fn func(w http.ResponseWriter, r *http.Request, owner int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := auth.RequireUser(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		fn(w, r, user.ID)
	}
}

func (a *API) listDepartments(w http.ResponseWriter, r *http.Request, owner int64) {
	list, err := a.org.ListDepartments(r.Context(), owner)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) createDepartment(w http.ResponseWriter, r *http.Request, owner int64) {
	var in org.CreateDepartmentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	d, err := a.org.CreateDepartment(r.Context(), owner, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) getDepartment(w http.ResponseWriter, r *http.Request, owner int64) {
	d, err := a.org.GetDepartment(r.Context(), owner, pathID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) updateDepartment(w http.ResponseWriter, r *http.Request, owner int64) {
	var body renameRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeAppError(w, r, err)
		return
	}
	d, err := a.org.UpdateDepartment(r.Context(), owner, org.UpdateDepartmentInput{ID: pathID(r), Name: body.Name})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) deleteDepartment(w http.ResponseWriter, r *http.Request, owner int64) {
	if err := a.org.DeleteDepartment(r.Context(), owner, pathID(r)); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (a *API) listSubDepartments(w http.ResponseWriter, r *http.Request, owner int64) {
	list, err := a.org.ListSubDepartments(r.Context(), owner)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) createSubDepartment(w http.ResponseWriter, r *http.Request, owner int64) {
	var in org.CreateSubDepartmentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	sub, err := a.org.CreateSubDepartment(r.Context(), owner, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (a *API) getSubDepartment(w http.ResponseWriter, r *http.Request, owner int64) {
	sub, err := a.org.GetSubDepartment(r.Context(), owner, pathID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *API) updateSubDepartment(w http.ResponseWriter, r *http.Request, owner int64) {
	var body renameRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeAppError(w, r, err)
		return
	}
	sub, err := a.org.UpdateSubDepartment(r.Context(), owner, org.UpdateSubDepartmentInput{ID: pathID(r), Name: body.Name})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *API) deleteSubDepartment(w http.ResponseWriter, r *http.Request, owner int64) {
	if err := a.org.DeleteSubDepartment(r.Context(), owner, pathID(r)); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
