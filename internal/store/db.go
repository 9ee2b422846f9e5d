package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	BucketTorrents = "torrents"
	BucketSettings = "settings"
	DbName         = "orcd.db"
)

var ErrNotFound = errors.New("store: record not found")

// DB persists the session: torrent sources for restore on restart and the
// policy and kill-switch settings.
type DB struct {
	db *bbolt.DB
}

// New opens (or creates) the session database inside dataDir.
func New(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return Open(filepath.Join(dataDir, DbName))
}

func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketTorrents)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketSettings)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
