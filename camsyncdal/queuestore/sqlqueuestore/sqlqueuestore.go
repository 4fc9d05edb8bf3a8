package sqlqueuestore

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS queued_edits (
	id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	lat DOUBLE PRECISION NOT NULL,
	lon DOUBLE PRECISION NOT NULL,
	direction DOUBLE PRECISION NOT NULL,
	profile_json TEXT NOT NULL,
	mode TEXT NOT NULL,
	state INTEGER NOT NULL, -- see camsyncdal.QueuedEditState
	attempts INTEGER NOT NULL,
	last_error TEXT NOT NULL,
	remote_node_id BIGINT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

type queuedEditRow struct {
	ID           string    `db:"id"`
	Position     int       `db:"position"`
	Lat          float64   `db:"lat"`
	Lon          float64   `db:"lon"`
	Direction    float64   `db:"direction"`
	ProfileJSON  string    `db:"profile_json"`
	Mode         string    `db:"mode"`
	State        int       `db:"state"`
	Attempts     int       `db:"attempts"`
	LastError    string    `db:"last_error"`
	RemoteNodeID int64     `db:"remote_node_id"`
	CreatedAt    time.Time `db:"created_at"`
}

// Store keeps the queue in a SQL table, one row per edit
type Store struct {
	db *sqlx.DB
}

var _ camsyncdal.QueueStore = &Store{}

// NewPostgresqlStore connects with a connection string without the "postgresql://" prefix, e.g. "user:pass@localhost/camsync"
func NewPostgresqlStore(connStr string) (*Store, errorsx.Error) {
	db, err := sqlx.Open("postgres", "postgresql://"+connStr)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return newStore(db)
}

func NewSQLiteStore(filePath string) (*Store, errorsx.Error) {
	db, err := sqlx.Open("sqlite3", filePath)
	if err != nil {
		return nil, errorsx.Wrap(err, "filePath", filePath)
	}

	// sqlite only allows one writer at a time
	db.SetMaxOpenConns(1)

	return newStore(db)
}

func newStore(db *sqlx.DB) (*Store, errorsx.Error) {
	_, err := db.Exec(schema)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return &Store{db}, nil
}

func (s *Store) Close() errorsx.Error {
	return errorsx.Wrap(s.db.Close())
}

func (s *Store) Save(items []*camsyncdal.QueuedEdit) errorsx.Error {
	tx, err := s.db.Beginx()
	if err != nil {
		return errorsx.Wrap(err)
	}

	err = saveInTx(tx, items)
	if err != nil {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			return errorsx.Wrap(err, "rollbackError", rollbackErr.Error())
		}
		return errorsx.Wrap(err)
	}

	err = tx.Commit()
	if err != nil {
		return errorsx.Wrap(err)
	}

	return nil
}

func saveInTx(tx *sqlx.Tx, items []*camsyncdal.QueuedEdit) error {
	_, err := tx.Exec(`DELETE FROM queued_edits`)
	if err != nil {
		return err
	}

	for i, item := range items {
		profileJSON, err := json.Marshal(item.Profile)
		if err != nil {
			return err
		}

		row := queuedEditRow{
			ID:           item.ID,
			Position:     i,
			Lat:          item.Lat,
			Lon:          item.Lon,
			Direction:    item.Direction,
			ProfileJSON:  string(profileJSON),
			Mode:         string(item.Mode),
			State:        int(item.State),
			Attempts:     item.Attempts,
			LastError:    item.LastError,
			RemoteNodeID: item.RemoteNodeID,
			CreatedAt:    item.CreatedAt.UTC(),
		}

		_, err = tx.NamedExec(`
			INSERT INTO queued_edits (id, position, lat, lon, direction, profile_json, mode, state, attempts, last_error, remote_node_id, created_at)
			VALUES (:id, :position, :lat, :lon, :direction, :profile_json, :mode, :state, :attempts, :last_error, :remote_node_id, :created_at)`,
			row,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) Load() ([]*camsyncdal.QueuedEdit, errorsx.Error) {
	var rows []queuedEditRow
	err := s.db.Select(&rows, `SELECT * FROM queued_edits ORDER BY position`)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	var items []*camsyncdal.QueuedEdit
	for _, row := range rows {
		var profile camsync.AttributeProfile
		err = json.Unmarshal([]byte(row.ProfileJSON), &profile)
		if err != nil {
			return nil, errorsx.Wrap(err, "id", row.ID)
		}

		items = append(items, &camsyncdal.QueuedEdit{
			ID:           row.ID,
			Lat:          row.Lat,
			Lon:          row.Lon,
			Direction:    row.Direction,
			Profile:      profile,
			Mode:         camsyncdal.UploadMode(row.Mode),
			State:        camsyncdal.QueuedEditState(row.State),
			Attempts:     row.Attempts,
			LastError:    row.LastError,
			RemoteNodeID: row.RemoteNodeID,
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}

	return items, nil
}
