// Package cache implements the two in-memory PDU stores an Endpoint can be
// bound to: a "latest" slot per key that always overwrites, and a bounded
// "queue" FIFO per key. Both variants serialize every access through a
// single coarse-grained mutex per instance.
package cache

import (
	"encoding/json"
	"os"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
)

// Mode selects which cache variant a Config builds.
type Mode string

const (
	ModeLatest Mode = "latest"
	ModeQueue  Mode = "queue"
)

// StoreConfig is the "store" object inside a cache config file.
type StoreConfig struct {
	Mode  Mode `json:"mode"`
	Depth int  `json:"depth,omitempty"`
}

// Config is the on-disk shape of a cache config file:
// { "type": "buffer", "store": { "mode": "latest"|"queue", "depth"?: int } }.
type Config struct {
	Type  string      `json:"type"`
	Store StoreConfig `json:"store"`
}

// Cache is the uniform contract shared by the latest and queue variants.
// Every operation reports a code from the closed pduerr set; Start/Stop/
// Close/IsRunning never fail.
type Cache interface {
	Open(configPath string) error
	Write(key pdukey.ResolvedKey, data []byte) error
	// Read copies the stored payload for key into out and returns the
	// number of bytes written. If out is too small, it returns a NoSpace
	// error whose Message reports the required size; the stored entry is
	// left untouched (for queue caches, not popped).
	Read(key pdukey.ResolvedKey, out []byte) (int, error)
	Start() error
	Stop() error
	Close() error
	IsRunning() bool
}

// LoadConfig reads and validates a cache config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, pduerr.Wrap(pduerr.FileNotFound, err, "cache: config not found: %s", path)
		}
		return cfg, pduerr.Wrap(pduerr.IoError, err, "cache: read config: %s", path)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, pduerr.Wrap(pduerr.InvalidJSON, err, "cache: parse config: %s", path)
	}
	switch cfg.Store.Mode {
	case ModeLatest, ModeQueue:
	default:
		return cfg, pduerr.New(pduerr.InvalidConfig, "cache: unknown store mode %q", cfg.Store.Mode)
	}
	if cfg.Store.Depth < 1 {
		cfg.Store.Depth = 1
	}
	return cfg, nil
}

// New constructs the cache variant named by cfg.Store.Mode. The cache is not
// yet open; call Open with the same path used to load cfg (or any path — the
// concrete implementations only need cfg.Store.Depth, already resolved).
func New(cfg Config) (Cache, error) {
	switch cfg.Store.Mode {
	case ModeLatest:
		return newLatestCache(), nil
	case ModeQueue:
		return newQueueCache(cfg.Store.Depth), nil
	default:
		return nil, pduerr.New(pduerr.InvalidConfig, "cache: unknown store mode %q", cfg.Store.Mode)
	}
}

// Open reads configPath and returns a ready-to-start Cache of the
// appropriate variant. It is the usual entry point used by factories.
func Open(configPath string) (Cache, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Open(configPath); err != nil {
		return nil, err
	}
	return c, nil
}
