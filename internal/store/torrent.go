package store

import (
	"encoding/json"
	"sort"
	"time"

	"orctorrent/internal/model"

	"go.etcd.io/bbolt"
)

// TorrentRecord is everything needed to re-add a torrent after a restart.
type TorrentRecord struct {
	ID        string `json:"id"`
	InfoHash  string `json:"infoHash"`
	Magnet    string `json:"magnet,omitempty"`
	Torrent   string `json:"torrent,omitempty"` // Base64 encoded
	NameHint  string `json:"nameHint,omitempty"`
	SavePath  string `json:"savePath"`
	Running   bool   `json:"running"`
	AddedAtMs int64  `json:"addedAtMs"`

	Profile model.TorrentProfile `json:"profile"`
	// Priorities maps a '/'-joined sanitized file path to its priority.
	// Files at the default priority are omitted.
	Priorities map[string]model.FilePriority `json:"priorities,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

func (d *DB) SaveTorrent(rec TorrentRecord) error {
	rec.UpdatedAt = time.Now()
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketTorrents))
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ID), data)
	})
}

func (d *DB) GetTorrent(id string) (*TorrentRecord, error) {
	var rec TorrentRecord
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketTorrents))
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateTorrent applies fn to a stored record in one transaction.
func (d *DB) UpdateTorrent(id string, fn func(*TorrentRecord)) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketTorrents))
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var rec TorrentRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		fn(&rec)
		rec.UpdatedAt = time.Now()

		newData, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), newData)
	})
}

func (d *DB) DeleteTorrent(id string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketTorrents)).Delete([]byte(id))
	})
}

// ListTorrents returns every stored record ordered by creation time.
// Malformed entries are skipped.
func (d *DB) ListTorrents() ([]TorrentRecord, error) {
	var out []TorrentRecord
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketTorrents))
		return b.ForEach(func(k, v []byte) error {
			var rec TorrentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // Skip malformed
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAtMs != out[j].AddedAtMs {
			return out[i].AddedAtMs < out[j].AddedAtMs
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
