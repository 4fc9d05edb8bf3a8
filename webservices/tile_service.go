package webservices

import (
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/camsync-app/camsyncengine"
	"github.com/jamesrr39/camsync-app/tilefetch"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

type TileService struct {
	logger *logpkg.Logger
	engine *camsyncengine.Engine
	// sources maps a tile source name to its URL template
	sources map[string]string
	chi.Router
}

func NewTileService(logger *logpkg.Logger, engine *camsyncengine.Engine, sources map[string]string) *TileService {
	ts := &TileService{logger, engine, sources, chi.NewRouter()}

	ts.Get("/{source}/{z}/{x}/{y}", ts.handleGetTile)
	ts.Post("/cancel", ts.handleCancel)
	ts.Post("/viewport", ts.handleViewport)

	return ts
}

func (ts *TileService) handleGetTile(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	x := chi.URLParam(r, "x")
	y := chi.URLParam(r, "y")
	zStr := chi.URLParam(r, "z")

	urlTemplate, ok := ts.sources[source]
	if !ok {
		errorsx.HTTPError(w, ts.logger, errorsx.Errorf("unknown tile source %q", source), http.StatusNotFound)
		return
	}

	ints, err := stringsToInts(x, y, zStr)
	if err != nil {
		errorsx.HTTPError(w, ts.logger, errorsx.Wrap(err), http.StatusBadRequest)
		return
	}

	key := camsync.TileKey{X: ints[0], Y: ints[1], Z: ints[2], URLTemplate: urlTemplate}

	data, tileErr := ts.engine.Tile(r.Context(), key)
	if tileErr != nil {
		cause := errorsx.Cause(tileErr)
		switch {
		case errors.Is(cause, tilefetch.ErrCancelled):
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(cause, camsyncdal.ErrNoDataAvailable):
			errorsx.HTTPError(w, ts.logger, tileErr, http.StatusNotFound)
		case errors.Is(cause, tilefetch.ErrFetchFailed):
			errorsx.HTTPError(w, ts.logger, tileErr, http.StatusBadGateway)
		default:
			errorsx.HTTPError(w, ts.logger, tileErr, http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, err = w.Write(data)
	if err != nil {
		switch err.(type) {
		case *net.OpError:
			// broken pipe (request cancelled). Do nothing
		default:
			ts.logger.Warn("couldn't write tile %s: %s", key, err)
		}
		return
	}
}

func (ts *TileService) handleCancel(w http.ResponseWriter, r *http.Request) {
	ts.engine.CancelTiles()
	w.WriteHeader(http.StatusNoContent)
}

type viewportResponseType struct {
	Dropped int `json:"dropped"`
}

func (ts *TileService) handleViewport(w http.ResponseWriter, r *http.Request) {
	bounds, err := parseBoundsString(r.URL.Query().Get("bounds"))
	if err != nil {
		errorsx.HTTPError(w, ts.logger, errorsx.Wrap(err), http.StatusBadRequest)
		return
	}

	dropped := ts.engine.ViewportChanged(bounds)

	render.JSON(w, r, viewportResponseType{dropped})
}

func stringsToInts(s ...string) ([]int, error) {
	var ints []int
	for _, str := range s {
		i, err := strconv.Atoi(str)
		if err != nil {
			return nil, err
		}
		ints = append(ints, i)
	}

	return ints, nil
}
