package queuestore

import (
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/camsync-app/camsyncdal/queuestore/boltqueuestore"
	"github.com/jamesrr39/camsync-app/camsyncdal/queuestore/jsonqueuestore"
	"github.com/jamesrr39/camsync-app/camsyncdal/queuestore/sqlqueuestore"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
)

// Open creates the QueueStore a store URL points at, e.g. "bolt:///var/lib/camsync/queue.bolt"
func Open(fs gofs.Fs, storeURLStr string) (camsyncdal.QueueStore, errorsx.Error) {
	storeURL, err := camsyncdal.ParseStoreURL(storeURLStr)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	var store camsyncdal.QueueStore
	switch storeURL.Type {
	case camsyncdal.StoreTypeJSON:
		store = jsonqueuestore.NewStore(fs, storeURL.ConnectionPath)
	case camsyncdal.StoreTypeBolt:
		store, err = boltqueuestore.Open(storeURL.ConnectionPath)
	case camsyncdal.StoreTypeSQLite:
		store, err = sqlqueuestore.NewSQLiteStore(storeURL.ConnectionPath)
	case camsyncdal.StoreTypePostgresql:
		store, err = sqlqueuestore.NewPostgresqlStore(storeURL.ConnectionPath)
	default:
		return nil, errorsx.Wrap(camsyncdal.ErrUnsupportedStoreType, "type", storeURL.Type)
	}
	if err != nil {
		return nil, errorsx.Wrap(err, "storeURL", storeURLStr)
	}

	return store, nil
}
