package comm

import (
	"sync"
	"sync/atomic"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdudef"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
)

// ShmPollComm is the SHM comm variant driven by the caller: nothing pushes
// data into it, ProcessRecvEvents pulls it by walking the channel list and
// querying the runtime for each entry.
type ShmPollComm struct {
	runtime ShmRuntime

	mu       sync.Mutex
	channels []shmChannel

	running atomic.Bool

	cbMu sync.Mutex
	cb   RecvCallback
}

func (c *ShmPollComm) Open(configPath string, _ *pdudef.Definition) error {
	cfg, err := loadShmConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.ImplType != "poll" {
		return pduerr.New(pduerr.InvalidConfig, "shm: comm opened as poll but impl_type=%q", cfg.ImplType)
	}
	return nil
}

func (c *ShmPollComm) CreatePduLChannels(configPath string, pduDef *pdudef.Definition) error {
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
	return nil
}

func (c *ShmPollComm) Start() error {
	c.running.Store(true)
	return nil
}

func (c *ShmPollComm) PostStart() error { return nil }

func (c *ShmPollComm) Stop() error {
	c.running.Store(false)
	return nil
}

func (c *ShmPollComm) Close() error { return nil }

func (c *ShmPollComm) IsRunning() bool { return c.running.Load() }

func (c *ShmPollComm) Send(key pdukey.ResolvedKey, data []byte) error {
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

func (c *ShmPollComm) Recv(key pdukey.ResolvedKey, buf []byte) (int, error) {
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

func (c *ShmPollComm) SetOnRecvCallback(cb RecvCallback) {
	c.cbMu.Lock()
	c.cb = cb
	c.cbMu.Unlock()
}

// ProcessRecvEvents walks every channel marked notify_on_recv and, whenever
// the runtime's Read reports data for it, hands that data to the recv
// callback; it keeps no record of what an earlier call already delivered. It
// is pumped by the caller's own loop (a simulation step, typically).
func (c *ShmPollComm) ProcessRecvEvents() error {
	c.mu.Lock()
	channels := c.channels
	c.mu.Unlock()

	c.cbMu.Lock()
	cb := c.cb
	c.cbMu.Unlock()
	if cb == nil {
		return nil
	}

	for _, ch := range channels {
		if !ch.notify {
			continue
		}
		data, has, err := c.runtime.Read(ch.eventID)
		if err != nil {
			continue
		}
		if !has {
			continue
		}
		cb(ch.key, data)
	}
	return nil
}
