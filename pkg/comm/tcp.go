package comm

import (
	"encoding/json"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pducodec"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdudef"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdulog"
	"github.com/strand-protocol/strand/pduendpoint/pkg/socketutil"
)

type tcpLingerConfig struct {
	Enabled    bool `json:"enabled"`
	TimeoutSec int  `json:"timeout_sec"`
}

type tcpOptions struct {
	Backlog          int             `json:"backlog"`
	ConnectTimeoutMs int             `json:"connect_timeout_ms"`
	ReadTimeoutMs    int             `json:"read_timeout_ms"`
	WriteTimeoutMs   int             `json:"write_timeout_ms"`
	Blocking         bool            `json:"blocking"`
	ReuseAddress     bool            `json:"reuse_address"`
	KeepAlive        bool            `json:"keepalive"`
	NoDelay          bool            `json:"no_delay"`
	RecvBufferSize   int             `json:"recv_buffer_size"`
	SendBufferSize   int             `json:"send_buffer_size"`
	Linger           tcpLingerConfig `json:"linger"`
}

type tcpConfig struct {
	Protocol Protocol        `json:"protocol"`
	Role     string          `json:"role"` // "server" | "client"
	Local    *udpEndpointAddr `json:"local,omitempty"`
	Remote   *udpEndpointAddr `json:"remote,omitempty"`
	Options  tcpOptions      `json:"options"`
}

// TCPComm is the raw comm for a single TCP connection: a server accepting
// one active connection at a time, or a client that reconnects on failure.
// A session comm handed off by a mux (pkg/mux) is a TCPComm constructed
// directly around an already-connected net.Conn via NewSessionComm,
// skipping Open's listen/dial phase.
type TCPComm struct {
	cfg          tcpConfig
	role         string
	frameVersion string // "v1" | "v2", session comms only; raw Open always speaks v2

	mu       sync.Mutex
	listener *net.TCPListener
	conn     net.Conn

	running  atomic.Bool
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	cbMu sync.Mutex
	cb   RecvCallback
}

// NewSessionComm wraps an already-established connection — typically one
// handed off by a mux's accept loop — as a standalone Comm. frameVersion
// selects the wire framing for reads ("v1" or "v2"); writes always use V2,
// matching the Endpoint pipeline's send path.
func NewSessionComm(conn net.Conn, frameVersion string) *TCPComm {
	if frameVersion == "" {
		frameVersion = "v2"
	}
	return &TCPComm{role: "session", conn: conn, frameVersion: frameVersion, stopCh: make(chan struct{})}
}

func (c *TCPComm) Open(configPath string, _ *pdudef.Definition) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return pduerr.Wrap(pduerr.FileNotFound, err, "tcp: config not found: %s", configPath)
		}
		return pduerr.Wrap(pduerr.IoError, err, "tcp: read config: %s", configPath)
	}
	var cfg tcpConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return pduerr.Wrap(pduerr.InvalidJSON, err, "tcp: parse config: %s", configPath)
	}
	if cfg.Role != "server" && cfg.Role != "client" {
		return pduerr.New(pduerr.InvalidConfig, "tcp: role must be \"server\" or \"client\", got %q", cfg.Role)
	}
	if cfg.Options.Backlog <= 0 {
		cfg.Options.Backlog = 1
	}
	c.cfg = cfg
	c.role = cfg.Role
	c.stopCh = make(chan struct{})

	switch c.role {
	case "server":
		if cfg.Local == nil {
			return pduerr.New(pduerr.InvalidConfig, "tcp: server role requires local address")
		}
		addr, err := socketutil.ResolveTCPAddr(cfg.Local.Address, cfg.Local.Port)
		if err != nil {
			return err
		}
		ln, err := net.ListenTCP("tcp", addr)
		if err != nil {
			return pduerr.Wrap(pduerr.IoError, err, "tcp: listen %s:%d", cfg.Local.Address, cfg.Local.Port)
		}
		c.listener = ln
	case "client":
		if cfg.Remote == nil {
			return pduerr.New(pduerr.InvalidConfig, "tcp: client role requires remote address")
		}
	}
	return nil
}

func intToStr(n int) string {
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

func (c *TCPComm) Start() error {
	c.running.Store(true)
	switch c.role {
	case "server":
		c.wg.Add(1)
		go c.serverAcceptLoop()
	case "client":
		c.wg.Add(1)
		go c.clientConnectLoop()
	case "session":
		c.wg.Add(1)
		go c.readLoop(c.conn)
	}
	return nil
}

func (c *TCPComm) PostStart() error { return nil }

func (c *TCPComm) serverAcceptLoop() {
	defer c.wg.Done()
	for c.running.Load() {
		c.listener.SetDeadline(time.Now().Add(200 * time.Millisecond))
		conn, err := c.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !c.running.Load() {
				return
			}
			continue
		}
		c.applyConnOptions(conn)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close() // only one active connection at a time
		}
		c.conn = conn
		c.mu.Unlock()
		c.wg.Add(1)
		go c.readLoop(conn)
	}
}

func (c *TCPComm) clientConnectLoop() {
	defer c.wg.Done()
	timeout := time.Duration(c.cfg.Options.ConnectTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	for c.running.Load() {
		addr := net.JoinHostPort(c.cfg.Remote.Address, intToStr(c.cfg.Remote.Port))
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			pdulog.L().Debugw("tcp client dial failed, retrying", "addr", addr, "err", err)
			select {
			case <-time.After(time.Second):
				continue
			case <-c.stopCh:
				return
			}
		}
		c.applyConnOptions(conn)
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.readLoopBlocking(conn) // blocks until disconnect, then loop retries the dial
	}
}

func (c *TCPComm) applyConnOptions(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(c.cfg.Options.NoDelay)
		if c.cfg.Options.KeepAlive {
			tc.SetKeepAlive(true)
		}
		if c.cfg.Options.Linger.Enabled {
			tc.SetLinger(c.cfg.Options.Linger.TimeoutSec)
		}
		if c.cfg.Options.RecvBufferSize > 0 {
			tc.SetReadBuffer(c.cfg.Options.RecvBufferSize)
		}
		if c.cfg.Options.SendBufferSize > 0 {
			tc.SetWriteBuffer(c.cfg.Options.SendBufferSize)
		}
	}
}

// readLoop reads frames from conn until it errs, then the server side simply
// clears the active connection and waits for the next accept.
func (c *TCPComm) readLoop(conn net.Conn) {
	defer c.wg.Done()
	c.runReadLoop(conn)
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	pdulog.L().Debugw("tcp session disconnected", "remote", conn.RemoteAddr(), "role", c.role)
	conn.Close()
}

// readLoopBlocking is the client variant, called synchronously from
// clientConnectLoop: it runs the loop in that same goroutine and returns
// once the connection drops, so the caller can redial.
func (c *TCPComm) readLoopBlocking(conn net.Conn) {
	c.runReadLoop(conn)
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	conn.Close()
}

func (c *TCPComm) runReadLoop(conn net.Conn) {
	if c.frameVersion == "v1" {
		c.runReadLoopV1(conn)
		return
	}
	c.runReadLoopV2(conn)
}

func (c *TCPComm) deadline(conn net.Conn) {
	if rt := c.cfg.Options.ReadTimeoutMs; rt > 0 {
		conn.SetReadDeadline(time.Now().Add(time.Duration(rt) * time.Millisecond))
	} else {
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	}
}

func (c *TCPComm) deliver(robot string, channelID uint32, body []byte) {
	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)
	key := pdukey.ResolvedKey{Robot: robot, ChannelID: channelID}
	c.cbMu.Lock()
	cb := c.cb
	c.cbMu.Unlock()
	if cb != nil {
		cb(key, bodyCopy)
	}
}

func (c *TCPComm) runReadLoopV2(conn net.Conn) {
	header := make([]byte, pducodec.HeaderSizeV2)
	for c.running.Load() {
		c.deadline(conn)
		if n, err := io.ReadFull(conn, header); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() && n == 0 {
				continue
			}
			return // any other error, including a partial header, is a hard disconnect
		}
		bodyLen, err := peekBodyLen(header)
		if err != nil {
			return
		}
		body := make([]byte, bodyLen)
		if bodyLen > 0 {
			if _, err := io.ReadFull(conn, body); err != nil {
				return
			}
		}
		frame := append(append([]byte{}, header...), body...)
		parsed, parsedBody, err := pducodec.DecodeV2(frame)
		if err != nil {
			return // bad magic or version: tear the session down
		}
		c.deliver(parsed.RobotName, parsed.ChannelID, parsedBody)
	}
}

// runReadLoopV1 reads one header_len prefix, the header block it names, then
// the fixed request_type trailer — but V1 carries no body_len field, so
// whatever the Reads that complete that minimum return beyond it is taken as
// the body of one message, matching the legacy
// implementation's datagram-like framing when carried over a TCP stream.
func (c *TCPComm) runReadLoopV1(conn net.Conn) {
	const maxMessage = 1 << 20
	prefix := make([]byte, 4)
	buf := make([]byte, maxMessage)
	for c.running.Load() {
		c.deadline(conn)
		if n, err := io.ReadFull(conn, prefix); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() && n == 0 {
				continue
			}
			return
		}
		headerLen := leUint32(prefix)
		if headerLen > pducodec.MaxV1HeaderLen {
			return
		}
		copy(buf, prefix)
		rest := buf[4:]
		n := 0
		for n < int(headerLen)+4 { // header block + request_type trailer, minimum
			c.deadline(conn)
			m, err := conn.Read(rest[n:])
			if err != nil {
				return
			}
			n += m
		}
		frame := buf[:4+n]
		parsed, body, err := pducodec.DecodeV1(frame)
		if err != nil {
			return
		}
		c.deliver(parsed.RobotName, parsed.ChannelID, body)
	}
}

// peekBodyLen reads just the body_len field out of a still-unvalidated V2
// header so the read loop knows how many more bytes to pull off the wire
// before handing the full frame to DecodeV2.
func peekBodyLen(header []byte) (int, error) {
	if len(header) != pducodec.HeaderSizeV2 {
		return 0, pduerr.New(pduerr.InvalidArgument, "tcp: short header")
	}
	const bodyLenOffset = 128 + 4 + 2 + 2 + 4 + 4 + 4 // robot_name+magic+version+reserved+flags+request_type+total_len
	n := int(leUint32(header[bodyLenOffset:]))
	return n, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (c *TCPComm) Stop() error {
	c.stopOnce.Do(func() {
		c.running.Store(false)
		if c.stopCh != nil {
			close(c.stopCh)
		}
		c.mu.Lock()
		if c.listener != nil {
			c.listener.Close()
		}
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
	return nil
}

func (c *TCPComm) Close() error { return c.Stop() }

func (c *TCPComm) IsRunning() bool { return c.running.Load() }

func (c *TCPComm) CreatePduLChannels(configPath string, pduDef *pdudef.Definition) error { return nil }

func (c *TCPComm) Send(key pdukey.ResolvedKey, data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return pduerr.New(pduerr.NotRunning, "tcp: no active connection")
	}
	ts := currentTimeSource()
	frame := pducodec.EncodeV2At(key.Robot, key.ChannelID, data, pducodec.PduDataType, ts.HakoTimeUs(), ts.AssetTimeUs(), ts.RealTimeUs())
	if wt := c.cfg.Options.WriteTimeoutMs; wt > 0 {
		conn.SetWriteDeadline(time.Now().Add(time.Duration(wt) * time.Millisecond))
	}
	if _, err := conn.Write(frame); err != nil {
		return socketutil.MapError(err)
	}
	return nil
}

func (c *TCPComm) Recv(key pdukey.ResolvedKey, buf []byte) (int, error) {
	return 0, pduerr.New(pduerr.Unsupported, "tcp: synchronous recv unsupported, use the recv callback")
}

func (c *TCPComm) SetOnRecvCallback(cb RecvCallback) {
	c.cbMu.Lock()
	c.cb = cb
	c.cbMu.Unlock()
}

func (c *TCPComm) ProcessRecvEvents() error { return nil }
