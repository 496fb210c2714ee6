package comm

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
)

func TestWebSocketRoundTrip(t *testing.T) {
	dir := t.TempDir()

	serverPath := filepath.Join(dir, "server.json")
	writeCommFile(t, serverPath, `{"protocol":"websocket","role":"server","host":"127.0.0.1","port":18930,"path":"/pdu","options":{"allow_any_origin":true}}`)
	clientPath := filepath.Join(dir, "client.json")
	writeCommFile(t, clientPath, `{"protocol":"websocket","role":"client","host":"127.0.0.1","port":18930,"path":"/pdu"}`)

	server := &WebSocketComm{}
	if err := server.Open(serverPath, nil); err != nil {
		t.Fatalf("server Open: %v", err)
	}
	received := make(chan []byte, 1)
	server.SetOnRecvCallback(func(key pdukey.ResolvedKey, body []byte) {
		received <- body
	})
	if err := server.Start(); err != nil {
		t.Fatalf("server Start: %v", err)
	}
	defer server.Close()

	client := &WebSocketComm{}
	if err := client.Open(clientPath, nil); err != nil {
		t.Fatalf("client Open: %v", err)
	}
	if err := client.Start(); err != nil {
		t.Fatalf("client Start: %v", err)
	}
	defer client.Close()

	key := pdukey.ResolvedKey{Robot: "ws_robot", ChannelID: 9}
	deadline := time.Now().Add(2 * time.Second)
	var sendErr error
	for time.Now().Before(deadline) {
		if sendErr = client.Send(key, []byte("hello-ws")); sendErr == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if sendErr != nil {
		t.Fatalf("client Send never succeeded: %v", sendErr)
	}

	select {
	case body := <-received:
		if string(body) != "hello-ws" {
			t.Fatalf("received %q, want %q", body, "hello-ws")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for websocket frame")
	}
}
