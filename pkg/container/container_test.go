package container

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
)

func writeContainerFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestInitializeStartAllIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	cachePath := filepath.Join(dir, "cache.json")
	writeContainerFile(t, cachePath, `{"type":"buffer","store":{"mode":"latest"}}`)

	ep1Path := filepath.Join(dir, "ep1.json")
	writeContainerFile(t, ep1Path, `{"cache":"cache.json"}`)
	ep2Path := filepath.Join(dir, "ep2.json")
	writeContainerFile(t, ep2Path, `{"cache":"cache.json"}`)

	manifestPath := filepath.Join(dir, "manifest.json")
	writeContainerFile(t, manifestPath, `[
		{"nodeId": "node1", "endpoints": [
			{"id": "ep1", "config_path": "ep1.json", "direction": "inout"},
			{"id": "ep2", "config_path": "ep2.json", "direction": "inout"}
		]},
		{"nodeId": "node2", "endpoints": [
			{"id": "epOther", "config_path": "ep1.json", "direction": "inout"}
		]}
	]`)

	c := New("node1", manifestPath)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ids := c.ListEndpointIds()
	if len(ids) != 2 || ids[0] != "ep1" || ids[1] != "ep2" {
		t.Fatalf("ListEndpointIds = %v, want [ep1 ep2]", ids)
	}

	if err := c.StartAll(); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !c.IsRunningAll() {
		t.Fatal("expected all endpoints running after StartAll")
	}

	// idempotent: a second StartAll should not error or double-start.
	if err := c.StartAll(); err != nil {
		t.Fatalf("second StartAll: %v", err)
	}
	if !c.IsRunningAll() {
		t.Fatal("expected all endpoints still running after second StartAll")
	}

	ep1, ok := c.Ref("ep1")
	if !ok {
		t.Fatal("Ref(ep1) missing")
	}
	key := pdukey.ResolvedKey{Robot: "r", ChannelID: 1}
	if err := ep1.Send(key, []byte{0x01}); err != nil {
		t.Fatalf("ep1 Send: %v", err)
	}

	if err := c.StopAll(); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if c.IsRunningAll() {
		t.Fatal("expected no endpoints running after StopAll")
	}
}

func TestInitializeRollsBackOnFailure(t *testing.T) {
	dir := t.TempDir()

	cachePath := filepath.Join(dir, "cache.json")
	writeContainerFile(t, cachePath, `{"type":"buffer","store":{"mode":"latest"}}`)

	ep1Path := filepath.Join(dir, "ep1.json")
	writeContainerFile(t, ep1Path, `{"cache":"cache.json"}`)

	manifestPath := filepath.Join(dir, "manifest.json")
	// ep2's config (missing.json) deliberately does not exist, forcing Open to fail partway
	// through the manifest so the already-opened ep1 must be rolled back.
	writeContainerFile(t, manifestPath, `[
		{"nodeId": "node1", "endpoints": [
			{"id": "ep1", "config_path": "ep1.json", "direction": "inout"},
			{"id": "ep2", "config_path": "missing.json", "direction": "inout"}
		]}
	]`)

	c := New("node1", manifestPath)
	if err := c.Initialize(); err == nil {
		t.Fatal("expected Initialize to fail when one endpoint's config is missing")
	}

	if err := c.StartAll(); err != nil {
		t.Fatalf("StartAll on a rolled-back container should be a no-op, got: %v", err)
	}
	if len(c.ListEndpointIds()) != 0 {
		t.Fatalf("expected no endpoints registered after a rolled-back Initialize, got %v", c.ListEndpointIds())
	}
}
