package webservices

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/camsync-app/camsyncengine"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

type UploadService struct {
	logger      *logpkg.Logger
	engine      *camsyncengine.Engine
	defaultMode camsyncdal.UploadMode
	chi.Router
}

func NewUploadService(logger *logpkg.Logger, engine *camsyncengine.Engine, defaultMode camsyncdal.UploadMode) *UploadService {
	us := &UploadService{logger, engine, defaultMode, chi.NewRouter()}

	us.Get("/", us.handleList)
	us.Post("/", us.handleAdd)
	us.Post("/{id}/retry", us.handleRetry)
	us.Delete("/{id}", us.handleDelete)

	return us
}

type queuedEditResponseType struct {
	camsyncdal.QueuedEdit
	StateName string `json:"stateName"`
}

type listUploadsResponseType struct {
	Items   []queuedEditResponseType `json:"items"`
	Offline bool                     `json:"offline"`
	Armed   bool                     `json:"armed"`
}

func (us *UploadService) handleList(w http.ResponseWriter, r *http.Request) {
	queue := us.engine.Queue()

	items := []queuedEditResponseType{}
	for _, item := range queue.Items() {
		items = append(items, queuedEditResponseType{item, item.State.String()})
	}

	render.JSON(w, r, listUploadsResponseType{
		Items:   items,
		Offline: queue.IsOffline(),
		Armed:   queue.IsArmed(),
	})
}

type addUploadRequestType struct {
	Lat       float64               `json:"lat"`
	Lon       float64               `json:"lon"`
	Direction float64               `json:"direction"`
	ProfileID string                `json:"profileId"`
	Mode      camsyncdal.UploadMode `json:"mode"`
}

func (us *UploadService) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addUploadRequestType
	err := render.DecodeJSON(r.Body, &req)
	if err != nil {
		errorsx.HTTPError(w, us.logger, errorsx.Wrap(err), http.StatusBadRequest)
		return
	}

	profile, profileErr := us.engine.Profiles().Get(req.ProfileID)
	if profileErr != nil {
		errorsx.HTTPError(w, us.logger, profileErr, http.StatusBadRequest)
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = us.defaultMode
	}

	item, addErr := us.engine.Queue().Add(camsyncdal.NewEdit{
		Lat:       req.Lat,
		Lon:       req.Lon,
		Direction: req.Direction,
		Profile:   *profile,
		Mode:      mode,
	})
	if addErr != nil {
		errorsx.HTTPError(w, us.logger, addErr, http.StatusBadRequest)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, queuedEditResponseType{item, item.State.String()})
}

func (us *UploadService) handleRetry(w http.ResponseWriter, r *http.Request) {
	err := us.engine.Queue().Retry(chi.URLParam(r, "id"))
	if err != nil {
		errorsx.HTTPError(w, us.logger, err, queueErrorStatusCode(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (us *UploadService) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := us.engine.Queue().Delete(chi.URLParam(r, "id"))
	if err != nil {
		errorsx.HTTPError(w, us.logger, err, queueErrorStatusCode(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func queueErrorStatusCode(err errorsx.Error) int {
	cause := errorsx.Cause(err)
	switch {
	case errors.Is(cause, camsyncdal.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(cause, camsyncdal.ErrItemNotInErrorState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
