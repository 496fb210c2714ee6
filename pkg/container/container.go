// Package container implements the EndpointContainer (C9): a manifest-driven
// owner of every Endpoint for a single node id.
package container

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/strand-protocol/strand/pduendpoint/pkg/endpoint"
	"github.com/strand-protocol/strand/pduendpoint/pkg/factory"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdulog"
)

type manifestEndpoint struct {
	ID         string `json:"id"`
	ConfigPath string `json:"config_path"`
	Direction  string `json:"direction,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

type manifestNode struct {
	NodeID    string             `json:"nodeId"`
	Endpoints []manifestEndpoint `json:"endpoints"`
}

type entry struct {
	ep      *endpoint.Endpoint
	cfgPath string
	started bool
}

// Container owns one Endpoint per manifest entry for its node id.
type Container struct {
	nodeID     string
	configPath string

	mu          sync.Mutex
	initialized bool
	order       []string
	entries     map[string]*entry
}

// New constructs an uninitialized Container for nodeID, reading manifests
// from containerConfigPath.
func New(nodeID, containerConfigPath string) *Container {
	return &Container{nodeID: nodeID, configPath: containerConfigPath}
}

func (c *Container) loadManifest() ([]manifestEndpoint, error) {
	data, err := os.ReadFile(c.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pduerr.Wrap(pduerr.FileNotFound, err, "container: config not found: %s", c.configPath)
		}
		return nil, pduerr.Wrap(pduerr.IoError, err, "container: read config: %s", c.configPath)
	}
	var nodes []manifestNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, pduerr.Wrap(pduerr.InvalidJSON, err, "container: parse config: %s", c.configPath)
	}
	for _, n := range nodes {
		if n.NodeID == c.nodeID {
			return n.Endpoints, nil
		}
	}
	return nil, nil
}

// Initialize parses the manifest, keeping only the node matching this
// Container's node id, deduplicates by endpoint id, and opens each Endpoint.
// On any failure it rolls back every already-opened Endpoint and returns the
// error, leaving the Container uninitialized.
func (c *Container) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}

	descs, err := c.loadManifest()
	if err != nil {
		return err
	}
	baseDir := filepath.Dir(c.configPath)

	entries := make(map[string]*entry)
	var order []string
	rollback := func() {
		for _, id := range order {
			entries[id].ep.Close()
		}
	}

	for _, d := range descs {
		if _, dup := entries[d.ID]; dup {
			continue
		}
		dir := endpoint.DirectionInOut
		switch d.Direction {
		case "in":
			dir = endpoint.DirectionIn
		case "out":
			dir = endpoint.DirectionOut
		}
		ep := endpoint.New(d.ID, dir)
		cfgPath := factory.ResolvePath(baseDir, d.ConfigPath)
		if err := ep.Open(cfgPath); err != nil {
			pdulog.L().Errorw("container initialize failed, rolling back", "node", c.nodeID, "endpoint", d.ID, "err", err)
			rollback()
			return err
		}
		entries[d.ID] = &entry{ep: ep, cfgPath: cfgPath}
		order = append(order, d.ID)
	}

	c.entries = entries
	c.order = order
	c.initialized = true
	return nil
}

// CreatePduLChannels calls CreatePduLChannels on every Endpoint that
// Initialize opened, in manifest order, returning the first error while still
// visiting the rest. It returns NotRunning before Initialize, so SHM channels
// are allocated after each Endpoint is opened, not before.
func (c *Container) CreatePduLChannels() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return pduerr.New(pduerr.NotRunning, "container: not initialized")
	}
	var firstErr error
	for _, id := range c.order {
		if err := c.entries[id].ep.CreatePduLChannels(c.entries[id].cfgPath); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StartAll starts every endpoint not already started, returning the first
// error encountered but continuing to attempt the rest.
func (c *Container) StartAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, id := range c.order {
		e := c.entries[id]
		if e.started {
			continue
		}
		if err := e.ep.Start(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		e.ep.PostStart()
		e.started = true
	}
	return firstErr
}

// StopAll stops then closes every endpoint and clears the initialized flag.
func (c *Container) StopAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, id := range c.order {
		e := c.entries[id]
		if err := e.ep.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := e.ep.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		e.started = false
	}
	c.initialized = false
	return firstErr
}

// Start starts a single endpoint by id.
func (c *Container) Start(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return pduerr.New(pduerr.NoEntry, "container: unknown endpoint id %q", id)
	}
	if e.started {
		return nil
	}
	if err := e.ep.Start(); err != nil {
		return err
	}
	e.ep.PostStart()
	e.started = true
	return nil
}

// Stop stops a single endpoint by id.
func (c *Container) Stop(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return pduerr.New(pduerr.NoEntry, "container: unknown endpoint id %q", id)
	}
	if err := e.ep.Stop(); err != nil {
		return err
	}
	e.started = false
	return nil
}

// Ref returns the Endpoint registered under id.
func (c *Container) Ref(id string) (*endpoint.Endpoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.ep, true
}

// ListEndpointIds returns every endpoint id in manifest order.
func (c *Container) ListEndpointIds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// IsRunningAll reports whether every endpoint is running.
func (c *Container) IsRunningAll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.order {
		if !c.entries[id].ep.IsRunning() {
			return false
		}
	}
	return true
}
