package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/natefinch/atomic"
	"github.com/pelletier/go-toml/v2"
)

// knownTopLevelKeys are the TOML table/key names this version of
// coolerctld understands - anything else in a loaded document is
// carried through untouched in Configuration.Unknown - fields in a
// legal config are preserved across save.
var knownTopLevelKeys = map[string]bool{
	"version":  true,
	"general":  true,
	"devices":  true,
	"profile":  true,
	"function": true,
	"mode":     true,
	"alert":    true,
	"setting":  true,
	"custom_sensors": true,
}

// Store owns the on-disk config.toml document: atomic load/save plus
// schema migration and validation on every load. Config parse errors
// are fatal at load.
type Store struct {
	path string
}

// NewStore creates a store bound to the given document path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document path this store reads and writes.
func (s *Store) Path() string { return s.path }

// Load reads and validates the document, returning a fresh default
// configuration if none exists yet (first run). The document is first
// decoded into a generic map so keys unknown to this binary's
// Configuration struct survive in Unknown rather than being silently
// dropped - go-toml's own struct-tagged Marshal/Unmarshal has no such
// preservation, so the round trip goes through
// github.com/go-viper/mapstructure/v2 instead, a decode-generic-map-
// into-typed-struct idiom used the same way viper does internally.
func (s *Store) Load() (*Configuration, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return NewDefault(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", s.path, err)
	}

	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", s.path, err)
	}

	var cfg Configuration
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "toml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", s.path, err)
	}
	cfg.Unknown = unknownTopLevelKeys(raw)

	if err := migrate(&cfg); err != nil {
		return nil, fmt.Errorf("migrating config %s: %w", s.path, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", s.path, err)
	}
	return &cfg, nil
}

func unknownTopLevelKeys(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range raw {
		if !knownTopLevelKeys[k] {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Save atomically replaces the document on disk (write-to-temp +
// rename via natefinch/atomic), merging back any Unknown
// top-level keys so a hand-edited document's future-version fields
// survive a save by this binary.
func (s *Store) Save(cfg *Configuration) error {
	known, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	var merged map[string]interface{}
	if err := toml.Unmarshal(known, &merged); err != nil {
		return fmt.Errorf("re-decoding config for merge: %w", err)
	}
	for k, v := range cfg.Unknown {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}

	data, err := toml.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

// migrate upgrades cfg in place to CurrentSchemaVersion. Only version 0
// (pre-versioning, or a brand-new document whose version key was
// omitted) exists today, so this is a defaulting pass rather than a
// real transform; additional cases accumulate here as the schema
// evolves - a monotonically-increasing integer version field gates
// in-memory migrations.
func migrate(cfg *Configuration) error {
	if cfg.Version > CurrentSchemaVersion {
		return fmt.Errorf("config version %d is newer than this daemon supports (%d)", cfg.Version, CurrentSchemaVersion)
	}
	if cfg.Version == 0 {
		if cfg.General.PollRate == 0 {
			cfg.General = DefaultGeneral()
		}
	}
	cfg.Version = CurrentSchemaVersion
	return nil
}
