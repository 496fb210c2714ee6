// Package mux implements the TCP comm multiplexer (C5): an accept loop that
// turns inbound connections into session comms, handed to the caller through
// a non-blocking claim operation rather than a callback.
package mux

import (
	"encoding/json"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strand-protocol/strand/pduendpoint/pkg/comm"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdulog"
	"github.com/strand-protocol/strand/pduendpoint/pkg/socketutil"
)

type muxConfig struct {
	Local          muxAddr `json:"local"`
	ExpectedClients int    `json:"expected_clients"`
	CommRawVersion string  `json:"comm_raw_version"` // "v1" | "v2", applied to every accepted session
}

type muxAddr struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// Mux is the TCP session multiplexer. Its accept loop runs on one background
// goroutine and feeds a mutex-guarded pending list; TakeSessions drains it
// without ever blocking the caller.
type Mux struct {
	cfg muxConfig

	listener *net.TCPListener

	running atomic.Bool
	wg      sync.WaitGroup

	mu       sync.Mutex
	pending  []comm.Comm
	connected atomic.Int64
}

// New constructs an unopened Mux.
func New() *Mux { return &Mux{} }

// Open reads configPath — a JSON object with local{address,port},
// expected_clients, and comm_raw_version — and binds+listens immediately.
func (m *Mux) Open(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return pduerr.Wrap(pduerr.FileNotFound, err, "mux: config not found: %s", configPath)
		}
		return pduerr.Wrap(pduerr.IoError, err, "mux: read config: %s", configPath)
	}
	var cfg muxConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return pduerr.Wrap(pduerr.InvalidJSON, err, "mux: parse config: %s", configPath)
	}
	if cfg.CommRawVersion != "v1" && cfg.CommRawVersion != "v2" {
		cfg.CommRawVersion = "v2"
	}
	m.cfg = cfg

	addr, err := socketutil.ResolveTCPAddr(cfg.Local.Address, cfg.Local.Port)
	if err != nil {
		return err
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return pduerr.Wrap(pduerr.IoError, err, "mux: listen %s:%d", cfg.Local.Address, cfg.Local.Port)
	}
	m.listener = ln
	return nil
}

// Start runs the accept loop on its own goroutine.
func (m *Mux) Start() error {
	m.running.Store(true)
	m.wg.Add(1)
	go m.acceptLoop()
	return nil
}

func (m *Mux) acceptLoop() {
	defer m.wg.Done()
	for m.running.Load() {
		m.listener.SetDeadline(time.Now().Add(200 * time.Millisecond))
		conn, err := m.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !m.running.Load() {
				return
			}
			continue
		}
		session := comm.NewSessionComm(conn, m.cfg.CommRawVersion)
		count := m.connected.Add(1)
		m.mu.Lock()
		m.pending = append(m.pending, session)
		m.mu.Unlock()
		pdulog.L().Debugw("mux accepted session", "remote", conn.RemoteAddr(), "connected", count, "expected", m.cfg.ExpectedClients)
	}
}

// TakeSessions atomically drains and returns every session comm accepted
// since the last call. It never blocks.
func (m *Mux) TakeSessions() []comm.Comm {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return nil
	}
	out := m.pending
	m.pending = nil
	return out
}

// ConnectedCount is the running total of accepted sessions.
func (m *Mux) ConnectedCount() int64 { return m.connected.Load() }

// ExpectedCount is configured via expected_clients.
func (m *Mux) ExpectedCount() int { return m.cfg.ExpectedClients }

// IsReady reports whether ConnectedCount has reached ExpectedCount.
func (m *Mux) IsReady() bool { return m.connected.Load() >= int64(m.cfg.ExpectedClients) }

func (m *Mux) Stop() error {
	m.running.Store(false)
	if m.listener != nil {
		m.listener.Close()
	}
	m.wg.Wait()
	return nil
}

func (m *Mux) Close() error { return m.Stop() }

func (m *Mux) IsRunning() bool { return m.running.Load() }
