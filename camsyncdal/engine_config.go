package camsyncdal

import (
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"gopkg.in/yaml.v3"
)

const (
	DefaultOverpassEndpoint  = "https://overpass-api.de/api/interpreter"
	DefaultTileURLTemplate   = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	ProductionOSMAPIEndpoint = "https://api.openstreetmap.org"
	SandboxOSMAPIEndpoint    = "https://master.apis.dev.openstreetmap.org"
)

type TilesConfig struct {
	MaxConcurrentFetches uint            `yaml:"maxConcurrentFetches"`
	MaxAttempts          int             `yaml:"maxAttempts"`
	RetryDelays          []time.Duration `yaml:"retryDelays"`
	RetryJitter          time.Duration   `yaml:"retryJitter"`
	MaxRetryDelay        time.Duration   `yaml:"maxRetryDelay"`
	HTTPTimeout          time.Duration   `yaml:"httpTimeout"`
	// Sources maps a tile source name to its URL template
	Sources map[string]string `yaml:"sources"`
}

type OverpassConfig struct {
	Endpoint       string `yaml:"endpoint"`
	MaxSplitDepth  int    `yaml:"maxSplitDepth"`
	ResultCap      int    `yaml:"resultCap"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	// HTTPTimeout bounds a whole query request. It must outlast TimeoutSeconds so a server-side timeout reply is read, not cut off.
	HTTPTimeout          time.Duration `yaml:"httpTimeout"`
	RateLimitCooldown    time.Duration `yaml:"rateLimitCooldown"`
	MaxConcurrentQueries uint          `yaml:"maxConcurrentQueries"`
	RequestsPerMinute    int           `yaml:"requestsPerMinute"`
}

type UploadsConfig struct {
	Mode            UploadMode    `yaml:"mode"`
	MaxAttempts     int           `yaml:"maxAttempts"`
	FailureCooldown time.Duration `yaml:"failureCooldown"`
	DrainInterval   time.Duration `yaml:"drainInterval"`
	SimulateDelay   time.Duration `yaml:"simulateDelay"`
	ProductionAPI   string        `yaml:"productionApi"`
	SandboxAPI      string        `yaml:"sandboxApi"`
}

// EngineConfig holds the tunable values of the sync engine
type EngineConfig struct {
	UserAgent string         `yaml:"userAgent"`
	Tiles     TilesConfig    `yaml:"tiles"`
	Overpass  OverpassConfig `yaml:"overpass"`
	Uploads   UploadsConfig  `yaml:"uploads"`
}

func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		UserAgent: "camsync-app",
		Tiles: TilesConfig{
			MaxConcurrentFetches: 4,
			MaxAttempts:          3,
			RetryDelays:          []time.Duration{200 * time.Millisecond, time.Second, 3 * time.Second},
			RetryJitter:          250 * time.Millisecond,
			MaxRetryDelay:        5 * time.Second,
			HTTPTimeout:          20 * time.Second,
			Sources: map[string]string{
				"osm": DefaultTileURLTemplate,
			},
		},
		Overpass: OverpassConfig{
			Endpoint:             DefaultOverpassEndpoint,
			MaxSplitDepth:        3,
			ResultCap:            50000,
			TimeoutSeconds:       25,
			HTTPTimeout:          40 * time.Second,
			RateLimitCooldown:    30 * time.Second,
			MaxConcurrentQueries: 2,
			RequestsPerMinute:    20,
		},
		Uploads: UploadsConfig{
			Mode:            UploadModeSandbox,
			MaxAttempts:     3,
			FailureCooldown: 10 * time.Second,
			DrainInterval:   2 * time.Second,
			SimulateDelay:   time.Second,
			ProductionAPI:   ProductionOSMAPIEndpoint,
			SandboxAPI:      SandboxOSMAPIEndpoint,
		},
	}
}

// LoadEngineConfig reads a YAML config file on top of the defaults. Keys missing from the file keep their default value.
func LoadEngineConfig(fs gofs.Fs, filePath string) (*EngineConfig, errorsx.Error) {
	config := DefaultEngineConfig()

	data, err := fs.ReadFile(filePath)
	if err != nil {
		return nil, errorsx.Wrap(err, "filePath", filePath)
	}

	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, errorsx.Wrap(err, "filePath", filePath)
	}

	validationErr := config.Validate()
	if validationErr != nil {
		return nil, errorsx.Wrap(validationErr, "filePath", filePath)
	}

	return config, nil
}

func (c *EngineConfig) Validate() errorsx.Error {
	if c.Tiles.MaxConcurrentFetches == 0 {
		return errorsx.Errorf("tiles.maxConcurrentFetches must be at least 1")
	}
	if c.Tiles.MaxAttempts < 1 {
		return errorsx.Errorf("tiles.maxAttempts must be at least 1")
	}
	for i, delay := range c.Tiles.RetryDelays {
		if delay < 0 {
			return errorsx.Errorf("tiles.retryDelays[%d] is negative (%s)", i, delay)
		}
	}
	if c.Tiles.RetryJitter < 0 || c.Tiles.MaxRetryDelay < 0 {
		return errorsx.Errorf("tiles.retryJitter and tiles.maxRetryDelay must not be negative")
	}
	if c.Overpass.Endpoint == "" {
		return errorsx.Errorf("overpass.endpoint is required")
	}
	if c.Overpass.MaxSplitDepth < 0 {
		return errorsx.Errorf("overpass.maxSplitDepth must not be negative")
	}
	if c.Overpass.ResultCap < 0 {
		return errorsx.Errorf("overpass.resultCap must not be negative (0 is unlimited)")
	}
	if c.Overpass.TimeoutSeconds < 1 {
		return errorsx.Errorf("overpass.timeoutSeconds must be at least 1")
	}
	serverTimeout := time.Duration(c.Overpass.TimeoutSeconds) * time.Second
	if c.Overpass.HTTPTimeout <= serverTimeout {
		return errorsx.Errorf("overpass.httpTimeout (%s) must be longer than overpass.timeoutSeconds (%s)", c.Overpass.HTTPTimeout, serverTimeout)
	}
	if c.Overpass.MaxConcurrentQueries == 0 {
		return errorsx.Errorf("overpass.maxConcurrentQueries must be at least 1")
	}
	if c.Overpass.RateLimitCooldown < 0 {
		return errorsx.Errorf("overpass.rateLimitCooldown must not be negative")
	}
	if !c.Uploads.Mode.IsValid() {
		return errorsx.Errorf("uploads.mode %q is not one of %v", c.Uploads.Mode, uploadModes)
	}
	if c.Uploads.MaxAttempts < 1 {
		return errorsx.Errorf("uploads.maxAttempts must be at least 1")
	}
	if c.Uploads.DrainInterval <= 0 {
		return errorsx.Errorf("uploads.drainInterval must be positive")
	}
	if c.Uploads.FailureCooldown < 0 || c.Uploads.SimulateDelay < 0 {
		return errorsx.Errorf("uploads.failureCooldown and uploads.simulateDelay must not be negative")
	}

	return nil
}
