package boltqueuestore

import (
	"encoding/binary"
	"time"

	"github.com/goccy/go-json"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/goutil/errorsx"
	bolt "go.etcd.io/bbolt"
)

var queuedEditsBucketName = []byte("queued_edits")

// Store keeps each queued edit as a JSON value in a bolt bucket, keyed by its position in the queue
type Store struct {
	db *bolt.DB
}

var _ camsyncdal.QueueStore = &Store{}

func Open(filePath string) (*Store, errorsx.Error) {
	db, err := bolt.Open(filePath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errorsx.Wrap(err, "filePath", filePath)
	}

	return &Store{db}, nil
}

func (s *Store) Close() errorsx.Error {
	return errorsx.Wrap(s.db.Close())
}

func (s *Store) Save(items []*camsyncdal.QueuedEdit) errorsx.Error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(queuedEditsBucketName) != nil {
			err := tx.DeleteBucket(queuedEditsBucketName)
			if err != nil {
				return err
			}
		}

		bucket, err := tx.CreateBucket(queuedEditsBucketName)
		if err != nil {
			return err
		}

		for i, item := range items {
			data, err := json.Marshal(item)
			if err != nil {
				return err
			}

			err = bucket.Put(positionKey(i), data)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return errorsx.Wrap(err)
	}

	return nil
}

func (s *Store) Load() ([]*camsyncdal.QueuedEdit, errorsx.Error) {
	var items []*camsyncdal.QueuedEdit

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(queuedEditsBucketName)
		if bucket == nil {
			return nil
		}

		// keys are big endian, so the cursor walks them in queue order
		return bucket.ForEach(func(k, v []byte) error {
			item := new(camsyncdal.QueuedEdit)
			err := json.Unmarshal(v, item)
			if err != nil {
				return err
			}

			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return items, nil
}

func positionKey(position int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(position))
	return key
}
