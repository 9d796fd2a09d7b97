// Package persistence implements the local bbolt-backed cache used for
// crash recovery: a cache of each device's latest
// status so GET /status has something to serve immediately after a
// restart, and a cache of the last confirmed-applied duty per channel
// so the setting controller does not treat "never written this
// process" as "different from hardware" on the first tick after a
// restart: open-per-operation bolt.DB handles, JSON-encoded values,
// a corrupt entry is skipped rather than failing the whole load.
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/log"
)

const (
	bucketStatusCache = "status_cache"
	bucketDutyCache   = "duty_cache"
	dutyCacheKey      = "all"
)

// Store is a handle to the on-disk cache file. Every operation opens
// and closes its own *bolt.DB rather than holding one long-lived handle
// across the daemon's lifetime.
type Store struct {
	dbPath string
}

// New creates a cache handle over the given bbolt file path.
func New(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Init ensures the parent directory of the cache file exists.
func (s *Store) Init() error {
	parent := filepath.Dir(s.dbPath)
	if _, err := os.Stat(parent); os.IsNotExist(err) {
		log.Info("persistence: creating directory %s", parent)
		if err := os.MkdirAll(parent, 0755); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) open() (*bolt.DB, error) {
	return bolt.Open(s.dbPath, 0600, &bolt.Options{Timeout: 1 * time.Minute})
}

// SaveStatusSnapshot caches the latest DeviceStatus for every device in
// snapshot, overwriting any previously cached entry for the same UID.
func (s *Store) SaveStatusSnapshot(snapshot map[device.UID]device.DeviceStatus) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketStatusCache))
		if err != nil {
			return err
		}
		for uid, status := range snapshot {
			data, err := json.Marshal(status)
			if err != nil {
				continue
			}
			if err := b.Put([]byte(uid), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadStatusSnapshot returns every cached device status, keyed by
// device UID. Corrupt entries are dropped and logged rather than
// failing the whole load - the same self-heal policy the config
// document follows applies here to a cache too.
func (s *Store) LoadStatusSnapshot() (map[device.UID]device.DeviceStatus, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	out := make(map[device.UID]device.DeviceStatus)
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketStatusCache))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var status device.DeviceStatus
			if err := json.Unmarshal(v, &status); err != nil {
				log.Warn("persistence: dropping corrupt status cache entry %s: %v", k, err)
				return nil
			}
			out[device.UID(k)] = status
			return nil
		})
	})
	return out, err
}

type dutyCacheEntry struct {
	DeviceUID string `json:"device_uid"`
	Channel   string `json:"channel"`
	Duty      int    `json:"duty"`
}

// SaveDutyCache persists the last confirmed-applied duty for every
// channel in cache as a single JSON blob.
func (s *Store) SaveDutyCache(cache map[control.ChannelKey]int) error {
	entries := make([]dutyCacheEntry, 0, len(cache))
	for key, duty := range cache {
		entries = append(entries, dutyCacheEntry{DeviceUID: key.DeviceUID, Channel: key.Channel, Duty: duty})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketDutyCache))
		if err != nil {
			return err
		}
		return b.Put([]byte(dutyCacheKey), data)
	})
}

// LoadDutyCache returns the last confirmed-applied duty per channel, or
// an empty map if nothing has ever been cached.
func (s *Store) LoadDutyCache() (map[control.ChannelKey]int, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	out := make(map[control.ChannelKey]int)
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDutyCache))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(dutyCacheKey))
		if v == nil {
			return nil
		}
		var entries []dutyCacheEntry
		if err := json.Unmarshal(v, &entries); err != nil {
			log.Warn("persistence: dropping corrupt duty cache: %v", err)
			return nil
		}
		for _, e := range entries {
			out[control.ChannelKey{DeviceUID: e.DeviceUID, Channel: e.Channel}] = e.Duty
		}
		return nil
	})
	return out, err
}
