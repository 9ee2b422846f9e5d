package store

import (
	"encoding/json"

	"orctorrent/internal/model"

	"go.etcd.io/bbolt"
)

const (
	KeyPolicy     = "policy"
	KeyKillSwitch = "kill_switch"
)

func (d *DB) put(key string, v any) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(BucketSettings)).Put([]byte(key), data)
	})
}

// get decodes key into dst and reports whether it was present.
func (d *DB) get(key string, dst any) (bool, error) {
	found := false
	err := d.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(BucketSettings)).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, dst)
	})
	return found, err
}

func (d *DB) SavePolicy(desired model.DesiredPolicy) error {
	return d.put(KeyPolicy, desired)
}

// LoadPolicy returns nil when no policy has been saved.
func (d *DB) LoadPolicy() (*model.DesiredPolicy, error) {
	var p model.DesiredPolicy
	found, err := d.get(KeyPolicy, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// SaveKillSwitch stores the user-controlled kill-switch settings. The
// enforcement state is runtime-only and is re-derived on startup.
func (d *DB) SaveKillSwitch(cfg model.KillSwitchConfig) error {
	return d.put(KeyKillSwitch, model.PatchKillSwitchRequest{
		Enabled:        &cfg.Enabled,
		Scope:          &cfg.Scope,
		GracePeriodSec: &cfg.GracePeriodSec,
		Triggers:       &cfg.Triggers,
		VPNSource: &model.VPNSourcePatch{
			AutoDetect:      &cfg.VPNSource.AutoDetect,
			AllowedAdapters: cfg.VPNSource.AllowedAdapters,
		},
	})
}

// LoadKillSwitch returns the saved settings as a patch, or nil when none
// were saved.
func (d *DB) LoadKillSwitch() (*model.PatchKillSwitchRequest, error) {
	var p model.PatchKillSwitchRequest
	found, err := d.get(KeyKillSwitch, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}
