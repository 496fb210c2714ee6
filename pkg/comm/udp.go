package comm

import (
	"encoding/json"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pducodec"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdudef"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
	"github.com/strand-protocol/strand/pduendpoint/pkg/socketutil"
)

type udpEndpointAddr struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

type udpMulticastConfig struct {
	Enabled   bool   `json:"enabled"`
	Group     string `json:"group"`
	Interface string `json:"interface"`
	TTL       int    `json:"ttl"`
}

type udpOptions struct {
	BufferSize   int                `json:"buffer_size"`
	TimeoutMs    int                `json:"timeout_ms"`
	Blocking     bool               `json:"blocking"`
	ReuseAddress bool               `json:"reuse_address"`
	Broadcast    bool               `json:"broadcast"`
	Multicast    udpMulticastConfig `json:"multicast"`
}

type udpConfig struct {
	Protocol  Protocol        `json:"protocol"`
	Direction string          `json:"direction"`
	PduKey    *udpPduKeyJSON  `json:"pdu_key,omitempty"`
	Local     *udpEndpointAddr `json:"local,omitempty"`
	Remote    *udpEndpointAddr `json:"remote,omitempty"`
	Options   udpOptions      `json:"options"`
}

type udpPduKeyJSON struct {
	Robot     string `json:"robot"`
	ChannelID uint32 `json:"channel_id"`
}

// UDPComm is the raw comm for UDP sockets. It owns one background recv loop
// and frames every body through the V2 codec.
type UDPComm struct {
	cfg       udpConfig
	direction socketutil.Direction

	mu         sync.Mutex
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr // fixed remote from config, or captured in inout mode
	fixedRemote bool

	running  atomic.Bool
	wg       sync.WaitGroup
	stopOnce sync.Once

	cbMu sync.Mutex
	cb   RecvCallback
}

func (c *UDPComm) Open(configPath string, _ *pdudef.Definition) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return pduerr.Wrap(pduerr.FileNotFound, err, "udp: config not found: %s", configPath)
		}
		return pduerr.Wrap(pduerr.IoError, err, "udp: read config: %s", configPath)
	}
	var cfg udpConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return pduerr.Wrap(pduerr.InvalidJSON, err, "udp: parse config: %s", configPath)
	}
	if cfg.Options.BufferSize <= 0 {
		cfg.Options.BufferSize = 65536
	}
	c.cfg = cfg
	c.direction = socketutil.ParseDirection(cfg.Direction)

	if c.direction == socketutil.DirectionIn || c.direction == socketutil.DirectionInOut {
		if cfg.Local == nil {
			return pduerr.New(pduerr.InvalidConfig, "udp: direction %s requires local address", cfg.Direction)
		}
		addr, err := socketutil.ResolveUDPAddr(cfg.Local.Address, cfg.Local.Port)
		if err != nil {
			return err
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return pduerr.Wrap(pduerr.IoError, err, "udp: listen %s:%d", cfg.Local.Address, cfg.Local.Port)
		}
		c.conn = conn
	} else {
		conn, err := net.ListenUDP("udp", nil)
		if err != nil {
			return pduerr.Wrap(pduerr.IoError, err, "udp: allocate socket")
		}
		c.conn = conn
	}

	if cfg.Remote != nil && (c.direction == socketutil.DirectionOut || c.direction == socketutil.DirectionInOut) {
		addr, err := socketutil.ResolveUDPAddr(cfg.Remote.Address, cfg.Remote.Port)
		if err != nil {
			return err
		}
		c.remoteAddr = addr
		c.fixedRemote = true
	}

	if cfg.Options.Multicast.Enabled {
		if err := c.joinMulticast(cfg.Options.Multicast); err != nil {
			return err
		}
	}

	return nil
}

// joinMulticast wires the multicast.* config onto the already-bound socket:
// group membership for in/inout, outbound TTL for out/inout. net.UDPConn's
// portable surface has no method for either, so both go through
// golang.org/x/net/ipv4's PacketConn, resolved against a named interface
// when one is configured (nil means "let the kernel pick").
func (c *UDPComm) joinMulticast(mc udpMulticastConfig) error {
	group := net.ParseIP(mc.Group)
	if group == nil {
		return pduerr.New(pduerr.InvalidConfig, "udp: invalid multicast group %q", mc.Group)
	}

	var iface *net.Interface
	if mc.Interface != "" {
		i, err := net.InterfaceByName(mc.Interface)
		if err != nil {
			return pduerr.Wrap(pduerr.InvalidConfig, err, "udp: multicast interface %q", mc.Interface)
		}
		iface = i
	}

	pc := ipv4.NewPacketConn(c.conn)

	if c.direction == socketutil.DirectionIn || c.direction == socketutil.DirectionInOut {
		if err := pc.JoinGroup(iface, &net.UDPAddr{IP: group}); err != nil {
			return pduerr.Wrap(pduerr.IoError, err, "udp: join multicast group %s", mc.Group)
		}
	}

	if c.direction == socketutil.DirectionOut || c.direction == socketutil.DirectionInOut {
		ttl := mc.TTL
		if ttl <= 0 {
			ttl = 1
		}
		if err := pc.SetMulticastTTL(ttl); err != nil {
			return pduerr.Wrap(pduerr.IoError, err, "udp: set multicast TTL")
		}
		if iface != nil {
			if err := pc.SetMulticastInterface(iface); err != nil {
				return pduerr.Wrap(pduerr.IoError, err, "udp: set multicast interface %q", mc.Interface)
			}
		}
	}

	return nil
}

func (c *UDPComm) Start() error {
	c.running.Store(true)
	c.wg.Add(1)
	go c.recvLoop()
	return nil
}

func (c *UDPComm) PostStart() error { return nil }

func (c *UDPComm) recvLoop() {
	defer c.wg.Done()
	buf := make([]byte, c.cfg.Options.BufferSize)
	for c.running.Load() {
		c.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			if !c.running.Load() {
				return
			}
			continue
		}
		if n == 0 {
			continue
		}
		if (c.direction == socketutil.DirectionInOut) && !c.fixedRemote {
			c.mu.Lock()
			c.remoteAddr = from
			c.mu.Unlock()
		}
		meta, body, err := pducodec.DecodeV2(buf[:n])
		if err != nil {
			continue // malformed datagram, drop silently
		}
		key := pdukey.ResolvedKey{Robot: meta.RobotName, ChannelID: meta.ChannelID}
		bodyCopy := make([]byte, len(body))
		copy(bodyCopy, body)
		c.cbMu.Lock()
		cb := c.cb
		c.cbMu.Unlock()
		if cb != nil {
			cb(key, bodyCopy)
		}
	}
}

func (c *UDPComm) Stop() error {
	c.stopOnce.Do(func() {
		c.running.Store(false)
		if c.conn != nil {
			c.conn.Close()
		}
	})
	c.wg.Wait()
	return nil
}

func (c *UDPComm) Close() error {
	return c.Stop()
}

func (c *UDPComm) IsRunning() bool { return c.running.Load() }

func (c *UDPComm) CreatePduLChannels(configPath string, pduDef *pdudef.Definition) error { return nil }

func (c *UDPComm) Send(key pdukey.ResolvedKey, data []byte) error {
	c.mu.Lock()
	remote := c.remoteAddr
	c.mu.Unlock()
	if remote == nil {
		return pduerr.New(pduerr.InvalidArgument, "udp: no remote address to send to")
	}
	ts := currentTimeSource()
	frame := pducodec.EncodeV2At(key.Robot, key.ChannelID, data, pducodec.PduDataType, ts.HakoTimeUs(), ts.AssetTimeUs(), ts.RealTimeUs())
	if _, err := c.conn.WriteToUDP(frame, remote); err != nil {
		return socketutil.MapError(err)
	}
	return nil
}

func (c *UDPComm) Recv(key pdukey.ResolvedKey, buf []byte) (int, error) {
	return 0, pduerr.New(pduerr.Unsupported, "udp: synchronous recv unsupported, use the recv callback")
}

func (c *UDPComm) SetOnRecvCallback(cb RecvCallback) {
	c.cbMu.Lock()
	c.cb = cb
	c.cbMu.Unlock()
}

func (c *UDPComm) ProcessRecvEvents() error { return nil }
