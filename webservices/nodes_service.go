package webservices

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/camsync-app/camsyncengine"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

type NodesWebService struct {
	logger *logpkg.Logger
	engine *camsyncengine.Engine
	chi.Router
}

func NewNodesWebService(logger *logpkg.Logger, engine *camsyncengine.Engine) *NodesWebService {
	router := chi.NewRouter()
	service := &NodesWebService{logger, engine, router}

	router.Get("/", service.handleGet)
	return service
}

func (s *NodesWebService) handleGet(w http.ResponseWriter, r *http.Request) {
	bounds, err := parseBoundsString(r.URL.Query().Get("bounds"))
	if err != nil {
		errorsx.HTTPError(w, s.logger, errorsx.Wrap(err), http.StatusBadRequest)
		return
	}

	result, err := s.engine.NodesInViewport(r.Context(), bounds)
	if err != nil {
		errorsx.HTTPError(w, s.logger, errorsx.Wrap(err), http.StatusInternalServerError)
		return
	}

	render.JSON(w, r, result)
}

// (S,W,N,E)
// (52.533251,-1.394072,52.800548,-0.898208)
func parseBoundsString(boundsString string) (camsync.GeoRect, errorsx.Error) {
	var bounds camsync.GeoRect

	withoutBrackets := strings.TrimPrefix(strings.TrimSuffix(boundsString, ")"), "(")
	fragments := strings.Split(withoutBrackets, ",")
	if len(fragments) != 4 {
		return bounds, errorsx.Errorf("expected 4 bounds, but got %d. A bounds URL parameter should be in the format 'bounds=(S,W,N,E)'", len(fragments))
	}

	for index, fragment := range fragments {
		trimmedFragment := strings.TrimSpace(fragment)
		coordinate, err := strconv.ParseFloat(trimmedFragment, 64)
		if err != nil {
			return bounds, errorsx.Wrap(err, "fragment", trimmedFragment)
		}

		switch index {
		case 0:
			bounds.South = coordinate
		case 1:
			bounds.West = coordinate
		case 2:
			bounds.North = coordinate
		case 3:
			bounds.East = coordinate
		}
	}

	if bounds.South > bounds.North {
		return bounds, errorsx.Errorf("south (%v) is north of north (%v)", bounds.South, bounds.North)
	}

	return bounds, nil
}
