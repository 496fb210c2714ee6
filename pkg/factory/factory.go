// Package factory is the thin construction layer (C10) that turns a JSON
// config path into an opened Cache or Comm. Endpoint and EndpointContainer
// go through here instead of calling cache.Open/comm.Open directly so every
// config-path resolution rule lives in one place.
package factory

import (
	"path/filepath"

	"github.com/strand-protocol/strand/pduendpoint/pkg/cache"
	"github.com/strand-protocol/strand/pduendpoint/pkg/comm"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdudef"
)

// ResolvePath joins a config-relative path against baseDir unless it is
// already absolute.
func ResolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// NewCache constructs and opens the cache named by configPath.
func NewCache(configPath string) (cache.Cache, error) {
	return cache.Open(configPath)
}

// NewComm constructs and opens the comm named by configPath, bound to def
// (which may be nil for transports that don't need it).
func NewComm(configPath string, def *pdudef.Definition) (comm.Comm, error) {
	return comm.Open(configPath, def)
}
