package wire

import (
	"bytes"
	"testing"
)

func TestBufferReaderRoundTrip(t *testing.T) {
	b := NewBuffer(8)
	b.WriteUint32(42)
	b.WriteLenPrefixedBytes([]byte("robot_a"))
	b.WriteBytes([]byte("trailer"))

	r := NewReader(b.Bytes())
	n, err := r.ReadUint32()
	if err != nil || n != 42 {
		t.Fatalf("ReadUint32 = %d, %v; want 42, nil", n, err)
	}
	name, err := r.ReadLenPrefixedBytes()
	if err != nil || !bytes.Equal(name, []byte("robot_a")) {
		t.Fatalf("ReadLenPrefixedBytes = %q, %v; want %q, nil", name, err, "robot_a")
	}
	trailer, err := r.ReadBytes(r.Remaining())
	if err != nil || !bytes.Equal(trailer, []byte("trailer")) {
		t.Fatalf("ReadBytes(remaining) = %q, %v; want %q, nil", trailer, err, "trailer")
	}
}

func TestReaderShortReadErrors(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	if _, err := r.ReadUint32(); err == nil {
		t.Fatal("expected short-read error reading uint32 from 2 bytes")
	}
	if _, err := NewReader([]byte{0, 0, 0, 5}).ReadLenPrefixedBytes(); err == nil {
		t.Fatal("expected short-read error when declared length exceeds remaining bytes")
	}
}

func TestBufferGrows(t *testing.T) {
	b := NewBuffer(1)
	for i := 0; i < 100; i++ {
		b.WriteUint32(uint32(i))
	}
	if b.Len() != 400 {
		t.Fatalf("Len() = %d, want 400", b.Len())
	}
	r := NewReader(b.Bytes())
	for i := 0; i < 100; i++ {
		v, err := r.ReadUint32()
		if err != nil || v != uint32(i) {
			t.Fatalf("element %d: got %d, %v", i, v, err)
		}
	}
}
