package endpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newCacheOnlyEndpoint(t *testing.T, mode string) *Endpoint {
	t.Helper()
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.json")
	writeFile(t, cachePath, `{"type":"buffer","store":{"mode":"`+mode+`","depth":3}}`)
	epPath := filepath.Join(dir, "endpoint.json")
	writeFile(t, epPath, `{"cache":"cache.json"}`)

	ep := New("robot1_ep", DirectionInOut)
	if err := ep.Open(epPath); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ep.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return ep
}

func TestCacheOnlySendFansOutBeforeReturning(t *testing.T) {
	ep := newCacheOnlyEndpoint(t, "latest")
	key := pdukey.ResolvedKey{Robot: "robot1", ChannelID: 1}

	var delivered []byte
	received := false
	ep.Subscribe(key, func(k pdukey.ResolvedKey, body []byte) {
		received = true
		delivered = append([]byte{}, body...)
	})

	if err := ep.Send(key, []byte{0xAA}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !received {
		t.Fatal("subscriber was not invoked synchronously by Send")
	}
	if len(delivered) != 1 || delivered[0] != 0xAA {
		t.Errorf("delivered = %v, want [0xAA]", delivered)
	}
}

func TestCacheOnlyBufferRoundtrip(t *testing.T) {
	ep := newCacheOnlyEndpoint(t, "latest")
	key := pdukey.ResolvedKey{Robot: "robot1", ChannelID: 1}

	if err := ep.Send(key, []byte{0xAA}); err != nil {
		t.Fatalf("send 1: %v", err)
	}
	if err := ep.Send(key, []byte{0xBB, 0xCC}); err != nil {
		t.Fatalf("send 2: %v", err)
	}

	for i := 0; i < 2; i++ {
		buf := make([]byte, 8)
		n, err := ep.Recv(key, buf)
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if n != 2 || buf[0] != 0xBB || buf[1] != 0xCC {
			t.Errorf("recv %d = %v, want {0xBB,0xCC}", i, buf[:n])
		}
	}
}

func TestQueueOrdering(t *testing.T) {
	ep := newCacheOnlyEndpoint(t, "queue")
	key := pdukey.ResolvedKey{Robot: "robot2", ChannelID: 2}

	for _, b := range []byte{0x11, 0x22, 0x33, 0x44} {
		if err := ep.Send(key, []byte{b}); err != nil {
			t.Fatalf("send 0x%02x: %v", b, err)
		}
	}
	for _, want := range []byte{0x22, 0x33, 0x44} {
		buf := make([]byte, 1)
		n, err := ep.Recv(key, buf)
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if n != 1 || buf[0] != want {
			t.Errorf("recv = 0x%02x, want 0x%02x", buf[0], want)
		}
	}
}

func TestNameResolution(t *testing.T) {
	dir := t.TempDir()
	pdudefPath := filepath.Join(dir, "pdudef.json")
	writeFile(t, pdudefPath, `{
		"robots": [
			{"name": "TestRobot", "shm_pdu_writers": [
				{"type": "Twist", "org_name": "TestPDU", "channel_id": 123, "pdu_size": 8}
			]}
		]
	}`)
	cachePath := filepath.Join(dir, "cache.json")
	writeFile(t, cachePath, `{"type":"buffer","store":{"mode":"latest"}}`)
	epPath := filepath.Join(dir, "endpoint.json")
	writeFile(t, epPath, `{"pdu_def_path":"pdudef.json","cache":"cache.json"}`)

	ep := New("name_res_ep", DirectionInOut)
	if err := ep.Open(epPath); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ep.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	body := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := ep.SendByName(pdukey.Key{Robot: "TestRobot", Pdu: "TestPDU"}, body); err != nil {
		t.Fatalf("SendByName: %v", err)
	}
	resolved := pdukey.ResolvedKey{Robot: "TestRobot", ChannelID: 123}
	buf := make([]byte, 16)
	n, err := ep.Recv(resolved, buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if n != len(body) {
		t.Errorf("n = %d, want %d", n, len(body))
	}

	if got := ep.GetPduSize("TestRobot", "TestPDU"); got != 8 {
		t.Errorf("GetPduSize = %d, want 8", got)
	}
	if got := ep.GetPduChannelID("TestRobot", "TestPDU"); got != 123 {
		t.Errorf("GetPduChannelID = %d, want 123", got)
	}
	if got := ep.GetPduSize("TestRobot", "nope"); got != 0 {
		t.Errorf("unknown pdu size = %d, want 0", got)
	}
	if got := ep.GetPduChannelID("TestRobot", "nope"); got != -1 {
		t.Errorf("unknown pdu channel = %d, want -1", got)
	}
}

func TestTCPLoopback(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.json")
	writeFile(t, cachePath, `{"type":"buffer","store":{"mode":"latest"}}`)

	serverCommPath := filepath.Join(dir, "server_comm.json")
	writeFile(t, serverCommPath, `{"protocol":"tcp","role":"server","local":{"address":"127.0.0.1","port":0}}`)
	// Port 0 isn't resolvable ahead of time for the client, so this test
	// binds an explicit high port instead of relying on OS assignment.
	const port = 18743
	writeFile(t, serverCommPath, `{"protocol":"tcp","role":"server","local":{"address":"127.0.0.1","port":18743}}`)
	serverEpPath := filepath.Join(dir, "server_ep.json")
	writeFile(t, serverEpPath, `{"cache":"cache.json","comm":"server_comm.json"}`)

	clientCommPath := filepath.Join(dir, "client_comm.json")
	writeFile(t, clientCommPath, `{"protocol":"tcp","role":"client","remote":{"address":"127.0.0.1","port":18743},"options":{"connect_timeout_ms":500}}`)
	clientEpPath := filepath.Join(dir, "client_ep.json")
	writeFile(t, clientEpPath, `{"cache":"cache.json","comm":"client_comm.json"}`)

	server := New("server", DirectionInOut)
	if err := server.Open(serverEpPath); err != nil {
		t.Fatalf("server Open: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("server Start: %v", err)
	}
	defer server.Close()

	client := New("client", DirectionInOut)
	if err := client.Open(clientEpPath); err != nil {
		t.Fatalf("client Open: %v", err)
	}
	if err := client.Start(); err != nil {
		t.Fatalf("client Start: %v", err)
	}
	defer client.Close()

	time.Sleep(300 * time.Millisecond) // allow the client's connect loop to establish

	key := pdukey.ResolvedKey{Robot: "robot_tcp", ChannelID: port % 100}
	if err := client.Send(key, []byte("ping")); err != nil {
		t.Fatalf("client Send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	buf := make([]byte, 16)
	for {
		n, err := server.Recv(key, buf)
		if err == nil {
			if string(buf[:n]) != "ping" {
				t.Fatalf("server recv = %q, want %q", buf[:n], "ping")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never received ping: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
