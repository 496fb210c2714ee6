package comm

import (
	"sync"
	"sync/atomic"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdudef"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
)

// shmCallbackRegistry routes a runtime-native event id back to the
// ShmCallbackComm instance that created it. It is process-wide because the
// runtime's native callback has no notion of "which comm instance" beyond
// the event id it was registered against.
var shmCallbackRegistry = struct {
	mu   sync.Mutex
	byID map[uint64]*ShmCallbackComm
}{byID: make(map[uint64]*ShmCallbackComm)}

// ShmCallbackComm is the SHM comm variant driven by the runtime's own
// notification thread: the runtime calls back into the core as soon as new
// data lands in a channel.
type ShmCallbackComm struct {
	runtime ShmRuntime

	mu       sync.Mutex
	channels []shmChannel

	running atomic.Bool

	cbMu sync.Mutex
	cb   RecvCallback
}

func (c *ShmCallbackComm) Open(configPath string, _ *pdudef.Definition) error {
	cfg, err := loadShmConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.ImplType != "callback" {
		return pduerr.New(pduerr.InvalidConfig, "shm: comm opened as callback but impl_type=%q", cfg.ImplType)
	}
	return nil
}

func (c *ShmCallbackComm) CreatePduLChannels(configPath string, pduDef *pdudef.Definition) error {
	cfg, err := loadShmConfig(configPath)
	if err != nil {
		return err
	}
	channels, err := resolveChannels(cfg, pduDef, c.runtime)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.channels = channels
	c.mu.Unlock()

	shmCallbackRegistry.mu.Lock()
	for _, ch := range channels {
		if ch.notify {
			shmCallbackRegistry.byID[ch.eventID] = c
		}
	}
	shmCallbackRegistry.mu.Unlock()

	for _, ch := range channels {
		if !ch.notify {
			continue
		}
		eventID := ch.eventID
		if err := c.runtime.RegisterCallback(eventID, func(data []byte) {
			dispatchShmCallback(eventID, data)
		}); err != nil {
			return pduerr.Wrap(pduerr.IoError, err, "shm: register callback for event %d", eventID)
		}
	}
	return nil
}

// dispatchShmCallback is the single entry point the runtime's native thread
// calls through. It looks the owning comm up by event id and hands the
// payload to that comm's recv callback, all outside any comm-instance lock.
func dispatchShmCallback(eventID uint64, data []byte) {
	shmCallbackRegistry.mu.Lock()
	c := shmCallbackRegistry.byID[eventID]
	shmCallbackRegistry.mu.Unlock()
	if c == nil {
		return
	}
	c.mu.Lock()
	var key pdukey.ResolvedKey
	found := false
	for _, ch := range c.channels {
		if ch.eventID == eventID {
			key, found = ch.key, true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.cbMu.Lock()
	cb := c.cb
	c.cbMu.Unlock()
	if cb != nil {
		cb(key, data)
	}
}

func (c *ShmCallbackComm) Start() error {
	c.running.Store(true)
	return nil
}

func (c *ShmCallbackComm) PostStart() error { return nil }

func (c *ShmCallbackComm) Stop() error {
	c.running.Store(false)
	return nil
}

// Close clears this comm's entries from the process-wide registry. A
// runtime that does not support unregistration gets a best-effort attempt
// here and may still leak the registration on its own side; this process's
// registry is always cleaned up regardless.
func (c *ShmCallbackComm) Close() error {
	c.mu.Lock()
	channels := c.channels
	c.mu.Unlock()

	shmCallbackRegistry.mu.Lock()
	for _, ch := range channels {
		delete(shmCallbackRegistry.byID, ch.eventID)
	}
	shmCallbackRegistry.mu.Unlock()

	var firstErr error
	for _, ch := range channels {
		if !ch.notify {
			continue
		}
		if err := c.runtime.UnregisterCallback(ch.eventID); err != nil && firstErr == nil {
			firstErr = pduerr.Wrap(pduerr.IoError, err, "shm: unregister callback for event %d", ch.eventID)
		}
	}
	return firstErr
}

func (c *ShmCallbackComm) IsRunning() bool { return c.running.Load() }

func (c *ShmCallbackComm) Send(key pdukey.ResolvedKey, data []byte) error {
	c.mu.Lock()
	ch, ok := findChannel(c.channels, key)
	c.mu.Unlock()
	if !ok {
		return pduerr.New(pduerr.InvalidPduKey, "shm: unknown key %s", key)
	}
	if err := c.runtime.Write(ch.eventID, data); err != nil {
		return pduerr.Wrap(pduerr.IoError, err, "shm: write channel for %s", key)
	}
	return nil
}

func (c *ShmCallbackComm) Recv(key pdukey.ResolvedKey, buf []byte) (int, error) {
	c.mu.Lock()
	ch, ok := findChannel(c.channels, key)
	c.mu.Unlock()
	if !ok {
		return 0, pduerr.New(pduerr.InvalidPduKey, "shm: unknown key %s", key)
	}
	data, has, err := c.runtime.Read(ch.eventID)
	if err != nil {
		return 0, pduerr.Wrap(pduerr.IoError, err, "shm: read channel for %s", key)
	}
	if !has {
		return 0, pduerr.New(pduerr.NoEntry, "shm: no data for %s", key)
	}
	if len(buf) < len(data) {
		return 0, pduerr.New(pduerr.NoSpace, "shm: need %d bytes, have %d", len(data), len(buf))
	}
	n := copy(buf, data)
	return n, nil
}

func (c *ShmCallbackComm) SetOnRecvCallback(cb RecvCallback) {
	c.cbMu.Lock()
	c.cb = cb
	c.cbMu.Unlock()
}

func (c *ShmCallbackComm) ProcessRecvEvents() error { return nil }
