package cache

import (
	"sync"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
)

// queueCache keeps a bounded FIFO of payloads per key. Writes append and
// drop the oldest entry once the queue grows past depth; reads pop the
// front, but only once the copy into the caller's buffer has succeeded.
type queueCache struct {
	mu      sync.Mutex
	running bool
	depth   int
	queues  map[pdukey.ResolvedKey][][]byte
}

func newQueueCache(depth int) *queueCache {
	if depth < 1 {
		depth = 1
	}
	return &queueCache{depth: depth, queues: make(map[pdukey.ResolvedKey][][]byte)}
}

func (c *queueCache) Open(configPath string) error {
	return nil
}

func (c *queueCache) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	return nil
}

func (c *queueCache) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *queueCache) Close() error {
	return c.Stop()
}

func (c *queueCache) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *queueCache) Write(key pdukey.ResolvedKey, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return pduerr.New(pduerr.NotRunning, "cache: not running")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	q := append(c.queues[key], buf)
	if len(q) > c.depth {
		q = q[len(q)-c.depth:]
	}
	c.queues[key] = q
	return nil
}

func (c *queueCache) Read(key pdukey.ResolvedKey, out []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0, pduerr.New(pduerr.NotRunning, "cache: not running")
	}
	q := c.queues[key]
	if len(q) == 0 {
		return 0, pduerr.New(pduerr.NoEntry, "cache: no entry for %s", key)
	}
	head := q[0]
	if len(out) < len(head) {
		return 0, pduerr.New(pduerr.NoSpace, "cache: buffer too small, need %d bytes", len(head))
	}
	n := copy(out, head)
	c.queues[key] = q[1:]
	return n, nil
}
