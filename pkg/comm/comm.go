// Package comm implements the uniform transport contract ("Comm") that an
// Endpoint binds to: UDP and TCP sockets and WebSocket connections framed
// with the pducodec V1/V2 packet codec (the "raw" family), plus a
// shared-memory family that bypasses the codec entirely and talks to a host
// simulator runtime through an injected ShmRuntime contract.
package comm

import (
	"encoding/json"
	"os"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdudef"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
	"github.com/strand-protocol/strand/pduendpoint/pkg/timesource"
)

// timeSourceSlot holds the process-wide timesource.Source every raw comm
// stamps outgoing V2 frames with. Defaults to timesource.Zero so a process
// that never calls SetTimeSource still produces valid, untimestamped frames.
var timeSourceSlot struct {
	source timesource.Source
}

func init() { timeSourceSlot.source = timesource.Zero{} }

// SetTimeSource installs the host process's clock. Every raw (UDP/TCP/WS)
// comm's Send reads the current source at call time.
func SetTimeSource(ts timesource.Source) {
	if ts == nil {
		ts = timesource.Zero{}
	}
	timeSourceSlot.source = ts
}

func currentTimeSource() timesource.Source { return timeSourceSlot.source }

// RecvCallback is invoked once per fully reassembled frame a comm receives.
// It runs on whichever thread produced the event — the comm's own I/O
// goroutine for network comms. Implementations must not block indefinitely.
type RecvCallback func(key pdukey.ResolvedKey, body []byte)

// Comm is the transport contract every UDP/TCP/WebSocket/SHM implementation
// satisfies. It is the "C4" component: an Endpoint composes exactly zero or
// one Comm alongside its cache.
type Comm interface {
	// Open reads configPath, resolves addressing, and prepares the comm to
	// Start. pduDef may be nil; SHM comms require it to size channels.
	Open(configPath string, pduDef *pdudef.Definition) error
	Close() error
	Start() error
	// PostStart runs once after Start succeeds, for comms that need a
	// second-phase hook (e.g. session comms handed off by a mux).
	PostStart() error
	Stop() error
	IsRunning() bool
	// CreatePduLChannels allocates SHM channels ahead of Open, sized from
	// pduDef; it is a no-op for raw (network) comms. SHM comms require this
	// to run, with a non-nil pduDef, before Open.
	CreatePduLChannels(configPath string, pduDef *pdudef.Definition) error
	Send(key pdukey.ResolvedKey, data []byte) error
	// Recv is a synchronous receive path. Raw comms always return
	// Unsupported: their receive data flows only through the callback.
	Recv(key pdukey.ResolvedKey, buf []byte) (int, error)
	SetOnRecvCallback(cb RecvCallback)
	// ProcessRecvEvents drives comms (the SHM poll variant) whose receive
	// path must be pumped by the caller instead of a background thread. It
	// is a no-op for comms that run their own I/O thread.
	ProcessRecvEvents() error
}

// Protocol names the transport family a comm config selects.
type Protocol string

const (
	ProtocolUDP Protocol = "udp"
	ProtocolTCP Protocol = "tcp"
	ProtocolWS  Protocol = "websocket"
	ProtocolSHM Protocol = "shm"
)

// baseConfig is the set of fields every comm config shares.
type baseConfig struct {
	Protocol  Protocol `json:"protocol"`
	Direction string   `json:"direction"`
}

// probeProtocol reads just enough of a comm config file to pick the
// implementation Open should construct.
func probeProtocol(configPath string) (Protocol, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", pduerr.Wrap(pduerr.FileNotFound, err, "comm: config not found: %s", configPath)
		}
		return "", pduerr.Wrap(pduerr.IoError, err, "comm: read config: %s", configPath)
	}
	var b baseConfig
	if err := json.Unmarshal(data, &b); err != nil {
		return "", pduerr.Wrap(pduerr.InvalidJSON, err, "comm: parse config: %s", configPath)
	}
	if b.Protocol == "" {
		return "", pduerr.New(pduerr.InvalidConfig, "comm: config %s missing protocol", configPath)
	}
	return b.Protocol, nil
}

// New constructs the Comm implementation named by configPath's "protocol"
// field. The returned Comm is not yet open.
func New(configPath string) (Comm, error) {
	proto, err := probeProtocol(configPath)
	if err != nil {
		return nil, err
	}
	switch proto {
	case ProtocolUDP:
		return &UDPComm{}, nil
	case ProtocolTCP:
		return &TCPComm{}, nil
	case ProtocolWS:
		return &WebSocketComm{}, nil
	case ProtocolSHM:
		return newSHMComm(configPath)
	default:
		return nil, pduerr.New(pduerr.InvalidConfig, "comm: unknown protocol %q", proto)
	}
}

// Open constructs the right Comm for configPath and opens it in one step.
func Open(configPath string, def *pdudef.Definition) (Comm, error) {
	c, err := New(configPath)
	if err != nil {
		return nil, err
	}
	if err := c.Open(configPath, def); err != nil {
		return nil, err
	}
	return c, nil
}
