// Package endpoint implements the Endpoint (C7): a per-PDU object that
// composes one cache, an optional comm, and a subscriber list behind a
// single send/recv/subscribe contract.
package endpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/strand-protocol/strand/pduendpoint/pkg/cache"
	"github.com/strand-protocol/strand/pduendpoint/pkg/comm"
	"github.com/strand-protocol/strand/pduendpoint/pkg/factory"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdudef"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdulog"
)

// Direction mirrors the endpoint-level direction tag carried in container
// manifests; the Endpoint itself only uses it for bookkeeping, since the
// bound comm enforces its own direction semantics.
type Direction string

const (
	DirectionIn    Direction = "in"
	DirectionOut   Direction = "out"
	DirectionInOut Direction = "inout"
)

type endpointConfig struct {
	PduDefPath string `json:"pdu_def_path,omitempty"`
	Cache      string `json:"cache"`
	Comm       string `json:"comm,omitempty"`
}

type subscriber struct {
	key pdukey.ResolvedKey
	fn  RecvFunc
}

// RecvFunc is a subscriber callback: invoked with the bytes delivered for
// its subscribed key.
type RecvFunc func(key pdukey.ResolvedKey, body []byte)

// Endpoint composes a cache and an optional comm behind one API. It is safe
// for concurrent Send/Recv/Subscribe calls once Open has returned.
type Endpoint struct {
	name      string
	direction Direction

	pduDef *pdudef.Definition
	cache  cache.Cache

	commMu       sync.Mutex
	injectedComm comm.Comm // set via SetComm before Open, used instead of the factory path
	comm         comm.Comm

	subMu sync.Mutex
	subs  []subscriber
}

// New constructs an unopened Endpoint.
func New(name string, direction Direction) *Endpoint {
	return &Endpoint{name: name, direction: direction}
}

// Name returns the endpoint's configured name.
func (e *Endpoint) Name() string { return e.name }

// SetComm injects an already-constructed comm (e.g. a mux session) to use
// instead of factory-constructing one from the endpoint config's "comm"
// field. Must be called before Open.
func (e *Endpoint) SetComm(c comm.Comm) {
	e.commMu.Lock()
	e.injectedComm = c
	e.commMu.Unlock()
}

// Open reads configPath, loads the optional PDU definition, factory-opens
// the mandatory cache, and factory-opens (or adopts the injected) comm.
// Relative paths inside the config resolve against configPath's directory.
func (e *Endpoint) Open(configPath string) error {
	baseDir := filepath.Dir(configPath)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return pduerr.Wrap(pduerr.FileNotFound, err, "endpoint: config not found: %s", configPath)
		}
		return pduerr.Wrap(pduerr.IoError, err, "endpoint: read config: %s", configPath)
	}
	var cfg endpointConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return pduerr.Wrap(pduerr.InvalidJSON, err, "endpoint: parse config: %s", configPath)
	}
	if cfg.Cache == "" {
		return pduerr.New(pduerr.InvalidConfig, "endpoint: config %s missing \"cache\"", configPath)
	}

	if cfg.PduDefPath != "" {
		def, err := pdudef.Load(factory.ResolvePath(baseDir, cfg.PduDefPath))
		if err != nil {
			return err
		}
		e.pduDef = def
	}

	c, err := factory.NewCache(factory.ResolvePath(baseDir, cfg.Cache))
	if err != nil {
		return err
	}
	e.cache = c

	e.commMu.Lock()
	injected := e.injectedComm
	e.commMu.Unlock()

	switch {
	case injected != nil:
		if cfg.Comm != "" {
			if err := injected.Open(factory.ResolvePath(baseDir, cfg.Comm), e.pduDef); err != nil {
				e.cache.Close()
				return err
			}
		}
		e.comm = injected
	case cfg.Comm != "":
		cm, err := factory.NewComm(factory.ResolvePath(baseDir, cfg.Comm), e.pduDef)
		if err != nil {
			e.cache.Close()
			return err
		}
		e.comm = cm
	}

	if e.comm != nil {
		e.comm.SetOnRecvCallback(e.onRecv)
	}
	pdulog.L().Debugw("endpoint opened", "name", e.name, "direction", e.direction, "has_comm", e.comm != nil)
	return nil
}

// onRecv is installed as the bound comm's recv callback: write to the cache,
// then fan out to subscribers of that key.
func (e *Endpoint) onRecv(key pdukey.ResolvedKey, body []byte) {
	if e.cache != nil {
		if err := e.cache.Write(key, body); err != nil {
			return
		}
	}
	e.fanOut(key, body)
}

func (e *Endpoint) fanOut(key pdukey.ResolvedKey, body []byte) {
	e.subMu.Lock()
	var matched []RecvFunc
	for _, s := range e.subs {
		if s.key == key {
			matched = append(matched, s.fn)
		}
	}
	e.subMu.Unlock()
	for _, fn := range matched {
		fn(key, body)
	}
}

// CreatePduLChannels allocates SHM channels on the endpoint's comm. It reads
// the endpoint config itself (Open has not necessarily run yet) and loads the
// PDU definition; if no comm is bound or injected yet, it constructs one from
// the config and injects it with SetComm so that Open adopts it.
func (e *Endpoint) CreatePduLChannels(configPath string) error {
	baseDir := filepath.Dir(configPath)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return pduerr.Wrap(pduerr.FileNotFound, err, "endpoint: config not found: %s", configPath)
		}
		return pduerr.Wrap(pduerr.IoError, err, "endpoint: read config: %s", configPath)
	}
	var cfg endpointConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return pduerr.Wrap(pduerr.InvalidJSON, err, "endpoint: parse config: %s", configPath)
	}
	if cfg.Comm == "" {
		return nil
	}
	var def *pdudef.Definition
	if cfg.PduDefPath != "" {
		def, err = pdudef.Load(factory.ResolvePath(baseDir, cfg.PduDefPath))
		if err != nil {
			return err
		}
	}
	commPath := factory.ResolvePath(baseDir, cfg.Comm)
	e.commMu.Lock()
	c := e.comm
	if c == nil {
		c = e.injectedComm
	}
	e.commMu.Unlock()
	if c == nil {
		c, err = comm.New(commPath)
		if err != nil {
			return err
		}
		e.SetComm(c)
	}
	return c.CreatePduLChannels(commPath, def)
}

// Send writes bytes addressed to key. With a bound comm, the write goes out
// over the network and subscribers fire only when the bytes loop back
// through recv. Without a comm, the cache write and subscriber fan-out both
// happen synchronously on the caller's thread.
func (e *Endpoint) Send(key pdukey.ResolvedKey, body []byte) error {
	if e.comm != nil {
		return e.comm.Send(key, body)
	}
	if err := e.cache.Write(key, body); err != nil {
		return err
	}
	e.fanOut(key, body)
	return nil
}

// Recv first tries the cache, then falls back to the comm's synchronous
// recv path (meaningful for SHM, Unsupported for raw comms).
func (e *Endpoint) Recv(key pdukey.ResolvedKey, buf []byte) (int, error) {
	n, err := e.cache.Read(key, buf)
	if err == nil {
		return n, nil
	}
	if e.comm != nil {
		if n2, err2 := e.comm.Recv(key, buf); pduerr.Of(err2) != pduerr.Unsupported {
			return n2, err2
		}
	}
	return n, err
}

// Subscribe appends (key, fn) to the subscriber list. Multiple subscribers
// per key fire in insertion order.
func (e *Endpoint) Subscribe(key pdukey.ResolvedKey, fn RecvFunc) {
	e.subMu.Lock()
	e.subs = append(e.subs, subscriber{key: key, fn: fn})
	e.subMu.Unlock()
}

// SendByName resolves key via the loaded PDU definition and calls Send.
// Returns Unsupported if no PDU definition was loaded.
func (e *Endpoint) SendByName(key pdukey.Key, body []byte) error {
	resolved, ok := e.resolve(key)
	if !ok {
		return pduerr.New(pduerr.Unsupported, "endpoint: no pdu definition loaded, cannot resolve %s", key)
	}
	return e.Send(resolved, body)
}

// RecvByName resolves key via the loaded PDU definition and calls Recv.
func (e *Endpoint) RecvByName(key pdukey.Key, buf []byte) (int, error) {
	resolved, ok := e.resolve(key)
	if !ok {
		return 0, pduerr.New(pduerr.Unsupported, "endpoint: no pdu definition loaded, cannot resolve %s", key)
	}
	return e.Recv(resolved, buf)
}

// SubscribeByName resolves key via the loaded PDU definition and Subscribes.
func (e *Endpoint) SubscribeByName(key pdukey.Key, fn RecvFunc) error {
	resolved, ok := e.resolve(key)
	if !ok {
		return pduerr.New(pduerr.Unsupported, "endpoint: no pdu definition loaded, cannot resolve %s", key)
	}
	e.Subscribe(resolved, fn)
	return nil
}

func (e *Endpoint) resolve(key pdukey.Key) (pdukey.ResolvedKey, bool) {
	if e.pduDef == nil {
		return pdukey.ResolvedKey{}, false
	}
	def, ok := e.pduDef.ResolveByName(key.Robot, key.Pdu)
	if !ok {
		return pdukey.ResolvedKey{}, false
	}
	return pdukey.ResolvedKey{Robot: key.Robot, ChannelID: def.ChannelID}, true
}

// GetPduSize returns the declared size for (robot, pdu), or 0 if unknown or
// no PDU definition was loaded.
func (e *Endpoint) GetPduSize(robot, pdu string) int {
	if e.pduDef == nil {
		return 0
	}
	return e.pduDef.PduSize(robot, pdu)
}

// GetPduChannelID returns the declared channel id for (robot, pdu), or -1 if
// unknown or no PDU definition was loaded.
func (e *Endpoint) GetPduChannelID(robot, pdu string) int64 {
	if e.pduDef == nil {
		return -1
	}
	return e.pduDef.ChannelID(robot, pdu)
}

// Start starts the cache, then the comm if bound.
func (e *Endpoint) Start() error {
	if err := e.cache.Start(); err != nil {
		return err
	}
	if e.comm != nil {
		if err := e.comm.Start(); err != nil {
			return err
		}
	}
	return nil
}

// PostStart runs the comm's post-start hook, if bound.
func (e *Endpoint) PostStart() error {
	if e.comm != nil {
		return e.comm.PostStart()
	}
	return nil
}

// Stop stops the comm before the cache, reporting the first error but still
// attempting both.
func (e *Endpoint) Stop() error {
	var firstErr error
	if e.comm != nil {
		if err := e.comm.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.cache.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Close closes the comm and the cache, reporting the first error but
// attempting both. Idempotent.
func (e *Endpoint) Close() error {
	var firstErr error
	if e.comm != nil {
		if err := e.comm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsRunning reports whether the cache and (if bound) the comm are running.
func (e *Endpoint) IsRunning() bool {
	if e.cache == nil || !e.cache.IsRunning() {
		return false
	}
	return e.comm == nil || e.comm.IsRunning()
}

// ProcessRecvEvents pumps the bound comm's poll-driven receive path, if any.
func (e *Endpoint) ProcessRecvEvents() error {
	if e.comm == nil {
		return nil
	}
	return e.comm.ProcessRecvEvents()
}
