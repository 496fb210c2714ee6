package pdudef

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadLegacy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pdudef.json")
	writeFile(t, path, `{
		"robots": [
			{
				"name": "TestRobot",
				"shm_pdu_readers": [
					{"type": "Twist", "org_name": "TestPDU", "channel_id": 123, "pdu_size": 8}
				],
				"shm_pdu_writers": [
					{"type": "Twist", "org_name": "TestPDU", "channel_id": 123, "pdu_size": 8},
					{"type": "Imu", "org_name": "imu", "channel_id": 5, "pdu_size": 64}
				]
			}
		]
	}`)

	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, ok := def.ResolveByName("TestRobot", "TestPDU")
	if !ok {
		t.Fatal("expected TestPDU to resolve")
	}
	if got.ChannelID != 123 || got.PduSize != 8 {
		t.Errorf("got %+v, want channel_id=123 pdu_size=8", got)
	}
	if def.PduSize("TestRobot", "TestPDU") != 8 {
		t.Errorf("PduSize = %d, want 8", def.PduSize("TestRobot", "TestPDU"))
	}
	if def.ChannelID("TestRobot", "TestPDU") != 123 {
		t.Errorf("ChannelID = %d, want 123", def.ChannelID("TestRobot", "TestPDU"))
	}
	if def.PduSize("TestRobot", "nope") != 0 {
		t.Error("unknown pdu should report size 0")
	}
	if def.ChannelID("TestRobot", "nope") != -1 {
		t.Error("unknown pdu should report channel -1")
	}

	byChannel, ok := def.ResolveByChannel("TestRobot", 5)
	if !ok || byChannel.OriginalName != "imu" {
		t.Errorf("ResolveByChannel(5) = %+v, ok=%v", byChannel, ok)
	}
}

func TestLoadCompact(t *testing.T) {
	dir := t.TempDir()
	typesPath := filepath.Join(dir, "types_a.json")
	writeFile(t, typesPath, `[
		{"channel_id": 1, "pdu_size": 16, "name": "pos", "type": "Pose"},
		{"channel_id": 2, "pdu_size": 32, "name": "vel", "type": "Twist"}
	]`)

	manifestPath := filepath.Join(dir, "pdudef.json")
	writeFile(t, manifestPath, `{
		"paths": [{"id": "typesA", "path": "types_a.json"}],
		"robots": [{"name": "robotA", "pdutypes_id": "typesA"}]
	}`)

	def, err := Load(manifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok := def.ResolveByName("robotA", "vel")
	if !ok || got.ChannelID != 2 || got.PduSize != 32 {
		t.Errorf("ResolveByName(vel) = %+v, ok=%v", got, ok)
	}
}

func TestLoadCompactUnknownPduTypesID(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "pdudef.json")
	writeFile(t, manifestPath, `{
		"paths": [],
		"robots": [{"name": "robotA", "pdutypes_id": "missing"}]
	}`)

	if _, err := Load(manifestPath); err == nil {
		t.Fatal("expected error for unresolved pdutypes_id")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/pdudef.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
