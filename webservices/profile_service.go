package webservices

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/camsync-app/camsyncengine"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

type ProfileService struct {
	logger   *logpkg.Logger
	profiles *camsyncengine.ProfileSet
	chi.Router
}

func NewProfileService(logger *logpkg.Logger, profiles *camsyncengine.ProfileSet) *ProfileService {
	ps := &ProfileService{logger, profiles, chi.NewRouter()}

	ps.Get("/", ps.handleList)
	ps.Post("/", ps.handleAdd)
	ps.Put("/{id}/enabled", ps.handleSetEnabled)
	ps.Delete("/{id}", ps.handleDelete)

	return ps
}

func (ps *ProfileService) handleList(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, ps.profiles.Profiles())
}

func (ps *ProfileService) handleAdd(w http.ResponseWriter, r *http.Request) {
	var profile camsync.AttributeProfile
	err := render.DecodeJSON(r.Body, &profile)
	if err != nil {
		errorsx.HTTPError(w, ps.logger, errorsx.Wrap(err), http.StatusBadRequest)
		return
	}

	if profile.Name == "" {
		errorsx.HTTPError(w, ps.logger, errorsx.Errorf("profile name is required"), http.StatusBadRequest)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, ps.profiles.Add(profile))
}

type setEnabledRequestType struct {
	Enabled bool `json:"enabled"`
}

func (ps *ProfileService) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequestType
	err := render.DecodeJSON(r.Body, &req)
	if err != nil {
		errorsx.HTTPError(w, ps.logger, errorsx.Wrap(err), http.StatusBadRequest)
		return
	}

	setErr := ps.profiles.SetEnabled(chi.URLParam(r, "id"), req.Enabled)
	if setErr != nil {
		errorsx.HTTPError(w, ps.logger, setErr, profileErrorStatusCode(setErr))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (ps *ProfileService) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := ps.profiles.Delete(chi.URLParam(r, "id"))
	if err != nil {
		errorsx.HTTPError(w, ps.logger, err, profileErrorStatusCode(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func profileErrorStatusCode(err errorsx.Error) int {
	cause := errorsx.Cause(err)
	switch {
	case errors.Is(cause, camsyncengine.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(cause, camsyncengine.ErrBuiltinProfileDeleted):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
