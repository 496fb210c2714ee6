package cache

import (
	"os"
	"testing"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdukey"
)

func TestLatestCacheRoundtrip(t *testing.T) {
	c := newLatestCache()
	c.Start()
	key := pdukey.ResolvedKey{Robot: "robot1", ChannelID: 1}

	if err := c.Write(key, []byte{0xAA}); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if err := c.Write(key, []byte{0xBB, 0xCC}); err != nil {
		t.Fatalf("write 2: %v", err)
	}

	for i := 0; i < 2; i++ {
		buf := make([]byte, 8)
		n, err := c.Read(key, buf)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if n != 2 || buf[0] != 0xBB || buf[1] != 0xCC {
			t.Errorf("read %d = %v (n=%d), want {0xBB,0xCC}", i, buf[:n], n)
		}
	}
}

func TestLatestCacheNoSpace(t *testing.T) {
	c := newLatestCache()
	c.Start()
	key := pdukey.ResolvedKey{Robot: "r", ChannelID: 1}
	c.Write(key, []byte{1, 2, 3})

	_, err := c.Read(key, make([]byte, 1))
	if pduerr.Of(err) != pduerr.NoSpace {
		t.Fatalf("code = %v, want NoSpace", pduerr.Of(err))
	}
}

func TestLatestCacheNotRunning(t *testing.T) {
	c := newLatestCache()
	key := pdukey.ResolvedKey{Robot: "r", ChannelID: 1}
	if err := c.Write(key, []byte{1}); pduerr.Of(err) != pduerr.NotRunning {
		t.Fatalf("code = %v, want NotRunning", pduerr.Of(err))
	}
}

func TestQueueCacheOrdering(t *testing.T) {
	c := newQueueCache(3)
	c.Start()
	key := pdukey.ResolvedKey{Robot: "robot2", ChannelID: 2}

	for _, b := range []byte{0x11, 0x22, 0x33, 0x44} {
		if err := c.Write(key, []byte{b}); err != nil {
			t.Fatalf("write 0x%02x: %v", b, err)
		}
	}

	want := []byte{0x22, 0x33, 0x44}
	for _, w := range want {
		buf := make([]byte, 1)
		n, err := c.Read(key, buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if n != 1 || buf[0] != w {
			t.Errorf("read = 0x%02x, want 0x%02x", buf[0], w)
		}
	}

	buf := make([]byte, 1)
	if _, err := c.Read(key, buf); pduerr.Of(err) != pduerr.NoEntry {
		t.Fatalf("code = %v, want NoEntry after draining queue", pduerr.Of(err))
	}
}

func TestQueueCacheNoSpaceLeavesHeadInPlace(t *testing.T) {
	c := newQueueCache(2)
	c.Start()
	key := pdukey.ResolvedKey{Robot: "r", ChannelID: 1}
	c.Write(key, []byte{1, 2, 3})

	if _, err := c.Read(key, make([]byte, 1)); pduerr.Of(err) != pduerr.NoSpace {
		t.Fatalf("code = %v, want NoSpace", pduerr.Of(err))
	}

	buf := make([]byte, 8)
	n, err := c.Read(key, buf)
	if err != nil {
		t.Fatalf("read after NoSpace: %v", err)
	}
	if n != 3 {
		t.Errorf("n = %d, want 3 (head untouched by the failed read)", n)
	}
}

func TestQueueCacheDepthNormalizedToAtLeastOne(t *testing.T) {
	c := newQueueCache(0)
	if c.depth != 1 {
		t.Errorf("depth = %d, want 1", c.depth)
	}
}

func TestLoadConfigUnknownMode(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/cache.json"
	writeFile(t, path, `{"type":"buffer","store":{"mode":"bogus"}}`)
	if _, err := LoadConfig(path); pduerr.Of(err) != pduerr.InvalidConfig {
		t.Fatalf("code = %v, want InvalidConfig", pduerr.Of(err))
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/cache.json"); pduerr.Of(err) != pduerr.FileNotFound {
		t.Fatalf("code = %v, want FileNotFound", pduerr.Of(err))
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
