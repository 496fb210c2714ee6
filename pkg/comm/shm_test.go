package comm

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pdudef"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
)

// fakeShmRuntime is an in-memory stand-in for a host simulator's shared
// memory implementation, keyed by the opaque event id CreatePduLChannels
// obtains through ShmRuntime.CreateChannel.
type fakeShmRuntime struct {
	mu        sync.Mutex
	nextID    uint64
	data      map[uint64][]byte
	callbacks map[uint64]func([]byte)
}

func newFakeShmRuntime() *fakeShmRuntime {
	return &fakeShmRuntime{data: make(map[uint64][]byte), callbacks: make(map[uint64]func([]byte))}
}

func (f *fakeShmRuntime) CreateChannel(robot, pduName string, size int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *fakeShmRuntime) Write(eventID uint64, data []byte) error {
	f.mu.Lock()
	f.data[eventID] = append([]byte{}, data...)
	cb := f.callbacks[eventID]
	f.mu.Unlock()
	if cb != nil {
		cb(data)
	}
	return nil
}

func (f *fakeShmRuntime) Read(eventID uint64) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[eventID]
	return data, ok, nil
}

func (f *fakeShmRuntime) RegisterCallback(eventID uint64, cb func(data []byte)) error {
	f.mu.Lock()
	f.callbacks[eventID] = cb
	f.mu.Unlock()
	return nil
}

func (f *fakeShmRuntime) UnregisterCallback(eventID uint64) error {
	f.mu.Lock()
	delete(f.callbacks, eventID)
	f.mu.Unlock()
	return nil
}

func writePduDef(t *testing.T, dir string) *pdudef.Definition {
	t.Helper()
	path := filepath.Join(dir, "pdudef.json")
	writeCommFile(t, path, `{
		"robots": [
			{"name": "shm_robot", "shm_pdu_writers": [
				{"type": "Twist", "org_name": "cmd", "channel_id": 5, "pdu_size": 4}
			]}
		]
	}`)
	def, err := pdudef.Load(path)
	if err != nil {
		t.Fatalf("pdudef.Load: %v", err)
	}
	return def
}

func TestShmCallbackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	def := writePduDef(t, dir)

	configPath := filepath.Join(dir, "shm.json")
	writeCommFile(t, configPath, `{
		"protocol":"shm",
		"impl_type":"callback",
		"io":{"robots":[{"name":"shm_robot","pdu":[{"name":"cmd","notify_on_recv":true}]}]}
	}`)

	runtime := newFakeShmRuntime()
	SetShmRuntime(runtime)
	defer SetShmRuntime(nil)

	c, err := newSHMComm(configPath)
	if err != nil {
		t.Fatalf("newSHMComm: %v", err)
	}
	if err := c.Open(configPath, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.CreatePduLChannels(configPath, def); err != nil {
		t.Fatalf("CreatePduLChannels: %v", err)
	}

	received := make(chan []byte, 1)
	c.SetOnRecvCallback(func(key pdukey.ResolvedKey, body []byte) {
		received <- body
	})
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	key := pdukey.ResolvedKey{Robot: "shm_robot", ChannelID: 5}
	if err := c.Send(key, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case body := <-received:
		if len(body) != 4 || body[0] != 1 {
			t.Fatalf("received %v, want [1 2 3 4]", body)
		}
	case <-time.After(time.Second):
		t.Fatal("callback was never invoked")
	}

	buf := make([]byte, 8)
	n, err := c.Recv(key, buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if n != 4 {
		t.Fatalf("Recv n = %d, want 4", n)
	}
}

func TestShmPollRoundTrip(t *testing.T) {
	dir := t.TempDir()
	def := writePduDef(t, dir)

	configPath := filepath.Join(dir, "shm.json")
	writeCommFile(t, configPath, `{
		"protocol":"shm",
		"impl_type":"poll",
		"io":{"robots":[{"name":"shm_robot","pdu":[{"name":"cmd","notify_on_recv":true}]}]}
	}`)

	runtime := newFakeShmRuntime()
	SetShmRuntime(runtime)
	defer SetShmRuntime(nil)

	c, err := newSHMComm(configPath)
	if err != nil {
		t.Fatalf("newSHMComm: %v", err)
	}
	if err := c.Open(configPath, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.CreatePduLChannels(configPath, def); err != nil {
		t.Fatalf("CreatePduLChannels: %v", err)
	}

	received := make(chan []byte, 1)
	c.SetOnRecvCallback(func(key pdukey.ResolvedKey, body []byte) {
		received <- body
	})
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	key := pdukey.ResolvedKey{Robot: "shm_robot", ChannelID: 5}
	if err := c.Send(key, []byte{9, 9, 9, 9}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// The poll variant never fires the callback on its own; it requires the
	// caller to pump ProcessRecvEvents.
	select {
	case <-received:
		t.Fatal("poll comm should not deliver without ProcessRecvEvents")
	case <-time.After(50 * time.Millisecond):
	}

	if err := c.ProcessRecvEvents(); err != nil {
		t.Fatalf("ProcessRecvEvents: %v", err)
	}
	select {
	case body := <-received:
		if len(body) != 4 || body[0] != 9 {
			t.Fatalf("received %v, want [9 9 9 9]", body)
		}
	case <-time.After(time.Second):
		t.Fatal("ProcessRecvEvents did not deliver")
	}
}
