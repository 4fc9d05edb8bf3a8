package camsyncdal

import (
	"errors"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
)

var (
	ErrNoDataAvailable      = errors.New("no data available")
	ErrItemNotFound         = errors.New("queue item not found")
	ErrItemNotInErrorState  = errors.New("queue item is not in the error state")
	ErrUnsupportedStoreType = errors.New("unsupported store type")
)

type StoreType string

const (
	StoreTypeJSON       StoreType = "json"
	StoreTypeBolt       StoreType = "bolt"
	StoreTypeSQLite     StoreType = "sqlite"
	StoreTypePostgresql StoreType = "postgresql"
)

type StoreURL struct {
	Type           StoreType
	ConnectionPath string
}

func (u StoreURL) String() string {
	return string(u.Type) + StoreURLSeparator + u.ConnectionPath
}

const StoreURLSeparator = "://"

// ParseStoreURL splits "type://connection-path" into its parts
func ParseStoreURL(str string) (StoreURL, errorsx.Error) {
	idx := strings.Index(str, StoreURLSeparator)
	if idx < 0 {
		return StoreURL{}, errorsx.Errorf("couldn't find store URL separator %q in %q", StoreURLSeparator, str)
	}

	storeType := StoreType(str[:idx])
	switch storeType {
	case StoreTypeJSON, StoreTypeBolt, StoreTypeSQLite, StoreTypePostgresql:
	default:
		return StoreURL{}, errorsx.Wrap(ErrUnsupportedStoreType, "type", storeType)
	}

	connectionPath := str[idx+len(StoreURLSeparator):]
	if connectionPath == "" {
		return StoreURL{}, errorsx.Errorf("empty connection path in store URL %q", str)
	}

	return StoreURL{
		Type:           storeType,
		ConnectionPath: connectionPath,
	}, nil
}
