package camsyncdal

import (
	"os"
	"path/filepath"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/userextra"
)

const DefaultRootDir = "~/.local/share/github.com/jamesrr39/camsync/"

type PathsConfig struct {
	DataDir           string
	OfflineRegionsDir string
	TraceDir          string
	// QueueStoreURL is a store URL, e.g. "json:///path/to/queue.json", see ParseStoreURL
	QueueStoreURL string
}

func NewDefaultPathsConfig() (*PathsConfig, errorsx.Error) {
	rootDir, err := userextra.ExpandUser(DefaultRootDir)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return NewPathsConfigFromRoot(rootDir), nil
}

func NewPathsConfigFromRoot(rootDir string) *PathsConfig {
	dataDir := filepath.Join(rootDir, "data")

	return &PathsConfig{
		DataDir:           dataDir,
		OfflineRegionsDir: filepath.Join(rootDir, "offline_regions"),
		TraceDir:          filepath.Join(rootDir, "trace"),
		QueueStoreURL:     string(StoreTypeJSON) + StoreURLSeparator + filepath.Join(dataDir, "upload_queue.json"),
	}
}

func (pc *PathsConfig) EnsurePaths() errorsx.Error {
	for _, dirPath := range []string{pc.DataDir, pc.OfflineRegionsDir, pc.TraceDir} {
		err := os.MkdirAll(dirPath, 0755)
		if err != nil {
			return errorsx.Wrap(err, "dirPath", dirPath)
		}
	}

	return nil
}
