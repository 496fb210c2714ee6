package comm

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pducodec"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdudef"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdulog"
	"github.com/strand-protocol/strand/pduendpoint/pkg/socketutil"
)

type wsOptions struct {
	HandshakeTimeoutMs int  `json:"handshake_timeout_ms"`
	PingIntervalMs     int  `json:"ping_interval_ms"`
	AllowAnyOrigin     bool `json:"allow_any_origin"`
}

type wsConfig struct {
	Protocol Protocol        `json:"protocol"`
	Role     string          `json:"role"` // "server" | "client"
	Host     string          `json:"host"`
	Port     int             `json:"port"`
	Path     string          `json:"path"`
	Options  wsOptions       `json:"options"`
}

// WebSocketComm carries V2-framed PDUs as binary WebSocket messages. A server
// accepts many sessions, fans every Send out to all of them, and serializes
// writes per session to respect gorilla/websocket's one-writer-at-a-time
// contract; frames received on any session go to the recv callback. A client
// holds a single connection to one server.
type WebSocketComm struct {
	cfg wsConfig

	mu       sync.Mutex
	sessions map[*wsSession]struct{}
	server   *http.Server
	upgrader websocket.Upgrader

	running atomic.Bool
	wg      sync.WaitGroup

	cbMu sync.Mutex
	cb   RecvCallback
}

type wsSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *WebSocketComm) Open(configPath string, _ *pdudef.Definition) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return pduerr.Wrap(pduerr.FileNotFound, err, "ws: config not found: %s", configPath)
		}
		return pduerr.Wrap(pduerr.IoError, err, "ws: read config: %s", configPath)
	}
	var cfg wsConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return pduerr.Wrap(pduerr.InvalidJSON, err, "ws: parse config: %s", configPath)
	}
	if cfg.Role != "server" && cfg.Role != "client" {
		return pduerr.New(pduerr.InvalidConfig, "ws: role must be \"server\" or \"client\", got %q", cfg.Role)
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	c.cfg = cfg
	c.sessions = make(map[*wsSession]struct{})
	c.upgrader = websocket.Upgrader{
		HandshakeTimeout: time.Duration(cfg.Options.HandshakeTimeoutMs) * time.Millisecond,
	}
	if cfg.Options.AllowAnyOrigin {
		c.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return nil
}

func (c *WebSocketComm) Start() error {
	c.running.Store(true)
	switch c.cfg.Role {
	case "server":
		mux := http.NewServeMux()
		mux.HandleFunc(c.cfg.Path, c.handleUpgrade)
		c.server = &http.Server{Addr: joinHostPort(c.cfg.Host, c.cfg.Port), Handler: mux}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.server.ListenAndServe()
		}()
	case "client":
		c.wg.Add(1)
		go c.clientConnectLoop()
	}
	return nil
}

func (c *WebSocketComm) PostStart() error { return nil }

func (c *WebSocketComm) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := &wsSession{conn: conn}
	c.mu.Lock()
	c.sessions[sess] = struct{}{}
	c.mu.Unlock()
	pdulog.L().Debugw("ws session accepted", "remote", conn.RemoteAddr())
	c.wg.Add(1)
	go c.sessionReadLoop(sess)
}

func (c *WebSocketComm) clientConnectLoop() {
	defer c.wg.Done()
	url := "ws://" + joinHostPort(c.cfg.Host, c.cfg.Port) + c.cfg.Path
	for c.running.Load() {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			time.Sleep(time.Second)
			continue
		}
		sess := &wsSession{conn: conn}
		c.mu.Lock()
		c.sessions[sess] = struct{}{}
		c.mu.Unlock()
		c.sessionReadLoopBlocking(sess)
	}
}

func (c *WebSocketComm) sessionReadLoop(sess *wsSession) {
	defer c.wg.Done()
	c.sessionReadLoopBlocking(sess)
}

func (c *WebSocketComm) sessionReadLoopBlocking(sess *wsSession) {
	for c.running.Load() {
		msgType, data, err := sess.conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		meta, body, err := pducodec.DecodeV2(data)
		if err != nil {
			continue
		}
		bodyCopy := make([]byte, len(body))
		copy(bodyCopy, body)
		key := pdukey.ResolvedKey{Robot: meta.RobotName, ChannelID: meta.ChannelID}
		c.cbMu.Lock()
		cb := c.cb
		c.cbMu.Unlock()
		if cb != nil {
			cb(key, bodyCopy)
		}
	}
	c.mu.Lock()
	delete(c.sessions, sess)
	c.mu.Unlock()
	sess.conn.Close()
}

func (c *WebSocketComm) Stop() error {
	c.running.Store(false)
	c.mu.Lock()
	if c.server != nil {
		c.server.Close()
	}
	for sess := range c.sessions {
		sess.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

func (c *WebSocketComm) Close() error { return c.Stop() }

func (c *WebSocketComm) IsRunning() bool { return c.running.Load() }

func (c *WebSocketComm) CreatePduLChannels(configPath string, pduDef *pdudef.Definition) error { return nil }

// Send writes frame to every currently connected session (the server fan-out
// case) or to the single client session.
func (c *WebSocketComm) Send(key pdukey.ResolvedKey, data []byte) error {
	ts := currentTimeSource()
	frame := pducodec.EncodeV2At(key.Robot, key.ChannelID, data, pducodec.PduDataType, ts.HakoTimeUs(), ts.AssetTimeUs(), ts.RealTimeUs())
	c.mu.Lock()
	sessions := make([]*wsSession, 0, len(c.sessions))
	for sess := range c.sessions {
		sessions = append(sessions, sess)
	}
	c.mu.Unlock()
	if len(sessions) == 0 {
		return pduerr.New(pduerr.NotRunning, "ws: no connected session")
	}
	var firstErr error
	for _, sess := range sessions {
		sess.writeMu.Lock()
		err := sess.conn.WriteMessage(websocket.BinaryMessage, frame)
		sess.writeMu.Unlock()
		if err != nil && firstErr == nil {
			firstErr = socketutil.MapError(err)
		}
	}
	return firstErr
}

func (c *WebSocketComm) Recv(key pdukey.ResolvedKey, buf []byte) (int, error) {
	return 0, pduerr.New(pduerr.Unsupported, "ws: synchronous recv unsupported, use the recv callback")
}

func (c *WebSocketComm) SetOnRecvCallback(cb RecvCallback) {
	c.cbMu.Lock()
	c.cb = cb
	c.cbMu.Unlock()
}

func (c *WebSocketComm) ProcessRecvEvents() error { return nil }

func joinHostPort(host string, port int) string {
	return host + ":" + intToStr(port)
}
