package jsonqueuestore

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
)

// Store keeps the queue as a JSON array in a single file.
// Saves go to a temporary file first and are renamed into place.
type Store struct {
	fs       gofs.Fs
	filePath string
}

var _ camsyncdal.QueueStore = &Store{}

func NewStore(fs gofs.Fs, filePath string) *Store {
	return &Store{fs, filePath}
}

func (s *Store) Save(items []*camsyncdal.QueuedEdit) errorsx.Error {
	if items == nil {
		items = []*camsyncdal.QueuedEdit{}
	}

	data, err := json.MarshalIndent(items, "", "\t")
	if err != nil {
		return errorsx.Wrap(err)
	}

	err = s.fs.MkdirAll(filepath.Dir(s.filePath), 0755)
	if err != nil {
		return errorsx.Wrap(err, "filePath", s.filePath)
	}

	tempFilePath := s.filePath + ".tmp"
	err = s.fs.WriteFile(tempFilePath, data, 0600)
	if err != nil {
		return errorsx.Wrap(err, "filePath", tempFilePath)
	}

	err = s.fs.Rename(tempFilePath, s.filePath)
	if err != nil {
		return errorsx.Wrap(err, "filePath", s.filePath)
	}

	return nil
}

// Load returns an empty queue if the file doesn't exist yet
func (s *Store) Load() ([]*camsyncdal.QueuedEdit, errorsx.Error) {
	data, err := s.fs.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errorsx.Wrap(err, "filePath", s.filePath)
	}

	var items []*camsyncdal.QueuedEdit
	err = json.Unmarshal(data, &items)
	if err != nil {
		return nil, errorsx.Wrap(err, "filePath", s.filePath)
	}

	return items, nil
}
