package webservices

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/camsync-app/camsyncengine"
	"github.com/jamesrr39/camsync-app/netstatus"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

type AdminService struct {
	logger           *logpkg.Logger
	pathsConfig      *camsyncdal.PathsConfig
	engine           *camsyncengine.Engine
	tracker          *netstatus.Tracker
	uploadsURLPrefix string
	chi.Router
}

// NewAdminService serves an HTML view of the upload queue and offline regions.
// uploadsURLPrefix is where the UploadService is mounted, for the retry and delete buttons.
func NewAdminService(
	logger *logpkg.Logger,
	pathsConfig *camsyncdal.PathsConfig,
	engine *camsyncengine.Engine,
	tracker *netstatus.Tracker,
	uploadsURLPrefix string,
) *AdminService {
	as := &AdminService{logger, pathsConfig, engine, tracker, uploadsURLPrefix, chi.NewRouter()}

	as.Router.Get("/", as.handleGet)

	return as
}

func (as *AdminService) handleGet(w http.ResponseWriter, r *http.Request) {
	var regions []*camsyncdal.OfflineRegion
	for _, conn := range as.engine.Regions().GetConns() {
		regions = append(regions, conn.RegionInfo())
	}

	data := map[string]interface{}{
		"UploadsURLPrefix": as.uploadsURLPrefix,
		"QueueItems":       as.engine.Queue().Items(),
		"Offline":          as.engine.IsOffline(),
		"Sources":          as.tracker.Snapshot(),
		"OfflineRegions":   regions,
	}

	if as.pathsConfig != nil {
		data["OfflineRegionsDir"] = as.pathsConfig.OfflineRegionsDir
		data["QueueStoreURL"] = as.pathsConfig.QueueStoreURL
	}

	err := adminTmpl.Execute(w, data)
	if err != nil {
		errorsx.HTTPError(w, as.logger, errorsx.Wrap(err), http.StatusInternalServerError)
		return
	}
}

var adminTmpl *template.Template

func init() {
	var err error
	adminTmpl, err = template.New("admin/index.html").Parse(adminTemplate)
	if err != nil {
		panic(err)
	}
}

const adminTemplate = `
<html>
	<head>
		<title>admin</title>
		<style type="text/css">
		div {
			margin: 10px;
			border: 1px solid grey;
			padding: 10px;
		}
		.error {
			color: darkred;
		}
		</style>
		<script>
		function queueAction(method, path) {
			fetch('{{.UploadsURLPrefix}}/' + path, {method: method})
				.then(resp => {
					if (!resp.ok) {
						throw new Error('status code ' + resp.status);
					}
					window.location.reload();
				})
				.catch(e => {
					console.error(e);
					alert('failed: ' + e);
				});
		}
		</script>
	</head>
	<body>
		<h1>camsync admin</h1>
		<div>
			<h2>Connection</h2>
			<p>Offline mode: {{.Offline}}</p>
			{{range .Sources}}
				<p {{if .Degraded}}class="error"{{end}}>
					{{.Source}}: {{if .Degraded}}degraded ({{.LastIssue}}, {{.ConsecutiveIssues}} in a row){{else}}ok{{end}}
				</p>
			{{end}}
		</div>

		<div>
			<h2>Upload Queue</h2>
			<sub>Refresh page for updates. Queue is stored at {{.QueueStoreURL}}</sub>
			{{range .QueueItems}}
				<h3>{{.Profile.Name}} at {{.Lat}}, {{.Lon}}</h3>
				<p>Status: {{.State}} ({{.Mode}})</p>
				<p>Attempts: {{.Attempts}}</p>
				{{if .LastError}}<p class="error">Last error: {{.LastError}}</p>{{end}}
				{{if .RemoteNodeID}}<p>Remote node: {{.RemoteNodeID}}</p>{{end}}
				<p>Created: {{.CreatedAt.Format "2006-01-02 15:04:05"}}</p>
				{{if eq .State.String "Error"}}
					<button onclick="queueAction('POST', '{{.ID}}/retry')">Retry</button>
				{{end}}
				<button onclick="queueAction('DELETE', '{{.ID}}')">Delete</button>
			{{else}}
				<p>Nothing queued</p>
			{{end}}
		</div>

		<div>
			<h2>Offline regions</h2>
			<p>Regions are loaded from <pre>{{.OfflineRegionsDir}}</pre></p>
			{{range .OfflineRegions}}
				<p>{{.Name}}: {{.Status}}, zoom {{.MinZoom}} to {{.MaxZoom}} ({{.Bounds}})</p>
			{{end}}
		</div>
	</body>
</html>
`
