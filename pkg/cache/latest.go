package cache

import (
	"sync"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
)

type latestEntry struct {
	data    []byte
	hasData bool
}

// latestCache keeps exactly one payload per key; writes overwrite, reads
// copy without consuming.
type latestCache struct {
	mu      sync.Mutex
	running bool
	entries map[pdukey.ResolvedKey]*latestEntry
}

func newLatestCache() *latestCache {
	return &latestCache{entries: make(map[pdukey.ResolvedKey]*latestEntry)}
}

func (c *latestCache) Open(configPath string) error {
	return nil
}

func (c *latestCache) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	return nil
}

func (c *latestCache) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *latestCache) Close() error {
	return c.Stop()
}

func (c *latestCache) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *latestCache) Write(key pdukey.ResolvedKey, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return pduerr.New(pduerr.NotRunning, "cache: not running")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	e, ok := c.entries[key]
	if !ok {
		e = &latestEntry{}
		c.entries[key] = e
	}
	e.data = buf
	e.hasData = true
	return nil
}

func (c *latestCache) Read(key pdukey.ResolvedKey, out []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0, pduerr.New(pduerr.NotRunning, "cache: not running")
	}
	e, ok := c.entries[key]
	if !ok || !e.hasData {
		return 0, pduerr.New(pduerr.NoEntry, "cache: no entry for %s", key)
	}
	if len(out) < len(e.data) {
		return 0, pduerr.New(pduerr.NoSpace, "cache: buffer too small, need %d bytes", len(e.data))
	}
	n := copy(out, e.data)
	return n, nil
}
