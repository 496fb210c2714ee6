package mux

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeMuxConfig(t *testing.T, dir string, port, expected int) string {
	t.Helper()
	path := filepath.Join(dir, "mux.json")
	content := `{"local":{"address":"127.0.0.1","port":` + itoa(port) + `},"expected_clients":` + itoa(expected) + `,"comm_raw_version":"v2"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestIsReadyAndTakeSessions(t *testing.T) {
	const port = 18901
	dir := t.TempDir()
	cfgPath := writeMuxConfig(t, dir, port, 2)

	m := New()
	if err := m.Open(cfgPath); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Close()

	if m.IsReady() {
		t.Fatal("expected IsReady() == false before any clients connect")
	}

	dial := func() net.Conn {
		conn, err := net.DialTimeout("tcp", "127.0.0.1:18901", time.Second)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		return conn
	}
	c1 := dial()
	defer c1.Close()
	c2 := dial()
	defer c2.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !m.IsReady() {
		if time.Now().After(deadline) {
			t.Fatalf("mux never became ready, connected=%d expected=%d", m.ConnectedCount(), m.ExpectedCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	sessions := m.TakeSessions()
	if len(sessions) != 2 {
		t.Fatalf("TakeSessions returned %d sessions, want 2", len(sessions))
	}
	for _, s := range sessions {
		s.Close()
	}

	if more := m.TakeSessions(); more != nil {
		t.Fatalf("second TakeSessions call should drain to nil, got %v", more)
	}
}
