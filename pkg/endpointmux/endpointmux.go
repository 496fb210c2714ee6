// Package endpointmux implements the EndpointCommMultiplexer (C8): it wraps
// a TCP Mux and turns each accepted session comm into a freshly-opened,
// started Endpoint.
package endpointmux

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/strand-protocol/strand/pduendpoint/pkg/endpoint"
	"github.com/strand-protocol/strand/pduendpoint/pkg/factory"
	"github.com/strand-protocol/strand/pduendpoint/pkg/mux"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
)

type endpointMuxConfig struct {
	Mux string `json:"mux"`
}

// EndpointMux wraps a mux.Mux and mints a named Endpoint per accepted
// session. It reuses its own config path as the Endpoint config for every
// minted Endpoint, so cache and PDU-definition wiring is identical across
// sessions.
type EndpointMux struct {
	name      string
	direction endpoint.Direction

	configPath string
	m          *mux.Mux
	seq        atomic.Int64
}

// New constructs an unopened EndpointMux.
func New(name string, direction endpoint.Direction) *EndpointMux {
	return &EndpointMux{name: name, direction: direction}
}

// Open reads configPath (an endpoint-shaped config with an extra "mux"
// field naming the TCP mux's own config) and opens the underlying Mux.
func (em *EndpointMux) Open(configPath string) error {
	baseDir := filepath.Dir(configPath)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return pduerr.Wrap(pduerr.FileNotFound, err, "endpointmux: config not found: %s", configPath)
		}
		return pduerr.Wrap(pduerr.IoError, err, "endpointmux: read config: %s", configPath)
	}
	var cfg endpointMuxConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return pduerr.Wrap(pduerr.InvalidJSON, err, "endpointmux: parse config: %s", configPath)
	}
	if cfg.Mux == "" {
		return pduerr.New(pduerr.InvalidConfig, "endpointmux: config %s missing \"mux\"", configPath)
	}
	m := mux.New()
	if err := m.Open(factory.ResolvePath(baseDir, cfg.Mux)); err != nil {
		return err
	}
	em.configPath = configPath
	em.m = m
	return nil
}

func (em *EndpointMux) Start() error { return em.m.Start() }

func (em *EndpointMux) Stop() error { return em.m.Stop() }

func (em *EndpointMux) Close() error { return em.m.Close() }

func (em *EndpointMux) IsRunning() bool { return em.m.IsRunning() }

// TakeEndpoints drains every session comm accepted since the last call and
// turns each into a freshly-opened, started Endpoint named "<name>_<seq>".
// Sessions that fail to open or start are discarded without affecting
// siblings.
func (em *EndpointMux) TakeEndpoints() []*endpoint.Endpoint {
	sessions := em.m.TakeSessions()
	if len(sessions) == 0 {
		return nil
	}
	out := make([]*endpoint.Endpoint, 0, len(sessions))
	for _, session := range sessions {
		seq := em.seq.Add(1)
		ep := endpoint.New(muxEndpointName(em.name, seq), em.direction)
		ep.SetComm(session)
		if err := ep.Open(em.configPath); err != nil {
			continue
		}
		if err := ep.Start(); err != nil {
			ep.Close()
			continue
		}
		if err := ep.PostStart(); err != nil {
			ep.Stop()
			ep.Close()
			continue
		}
		out = append(out, ep)
	}
	return out
}

func muxEndpointName(name string, seq int64) string {
	return name + "_" + itoa64(seq)
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
