package webservices

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/camsync-app/camsyncengine"
	"github.com/jamesrr39/camsync-app/netstatus"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

func NewInfoService(logger *logpkg.Logger, engine *camsyncengine.Engine, tracker *netstatus.Tracker, config *camsyncdal.EngineConfig) *InfoService {
	ws := &InfoService{logger, engine, tracker, config, chi.NewRouter()}
	ws.Get("/info", ws.handleGetInfo)
	ws.Get("/status", ws.handleGetStatus)
	ws.Put("/offline", ws.handlePutOffline)

	return ws
}

// InfoService reports what data the engine has and how the remote endpoints are doing
type InfoService struct {
	logger  *logpkg.Logger
	engine  *camsyncengine.Engine
	tracker *netstatus.Tracker
	config  *camsyncdal.EngineConfig
	chi.Router
}

type infoType struct {
	TileSources    []string                    `json:"tileSources"`
	UploadMode     camsyncdal.UploadMode       `json:"uploadMode"`
	OfflineRegions []*camsyncdal.OfflineRegion `json:"offlineRegions"`
}

func (ws *InfoService) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	tileSources := []string{}
	for name := range ws.config.Tiles.Sources {
		tileSources = append(tileSources, name)
	}
	sort.Strings(tileSources)

	regions := []*camsyncdal.OfflineRegion{}
	for _, conn := range ws.engine.Regions().GetConns() {
		regions = append(regions, conn.RegionInfo())
	}

	// make deterministic
	sort.Slice(regions, func(a, b int) bool {
		return regions[a].Name < regions[b].Name
	})

	render.JSON(w, r, infoType{tileSources, ws.config.Uploads.Mode, regions})
}

type statusType struct {
	Offline  bool                     `json:"offline"`
	Degraded bool                     `json:"degraded"`
	Sources  []netstatus.SourceStatus `json:"sources"`
}

func (ws *InfoService) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, statusType{
		Offline:  ws.engine.IsOffline(),
		Degraded: ws.tracker.IsDegraded(),
		Sources:  ws.tracker.Snapshot(),
	})
}

type offlineRequestType struct {
	Offline bool `json:"offline"`
}

func (ws *InfoService) handlePutOffline(w http.ResponseWriter, r *http.Request) {
	var req offlineRequestType
	err := render.DecodeJSON(r.Body, &req)
	if err != nil {
		errorsx.HTTPError(w, ws.logger, errorsx.Wrap(err), http.StatusBadRequest)
		return
	}

	ws.engine.SetOffline(req.Offline)

	w.WriteHeader(http.StatusNoContent)
}
