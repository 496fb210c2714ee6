// Package wire provides the growable little-endian byte buffer and cursor
// reader used by the V1 packet codec (V2 writes its fixed header by direct
// offset arithmetic instead). Every multi-byte integer on
// the pduendpoint wire is little-endian, never the usual network order.
package wire

import "encoding/binary"

// Buffer is a growable byte buffer for little-endian binary encoding.
type Buffer struct {
	data []byte
}

// NewBuffer returns a Buffer pre-allocated with the given capacity.
func NewBuffer(cap int) *Buffer {
	return &Buffer{data: make([]byte, 0, cap)}
}

// Bytes returns the accumulated encoded bytes.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int { return len(b.data) }

func (b *Buffer) grow(n int) int {
	off := len(b.data)
	need := off + n
	if need <= cap(b.data) {
		b.data = b.data[:need]
		return off
	}
	newCap := cap(b.data) * 2
	if newCap < need {
		newCap = need
	}
	tmp := make([]byte, need, newCap)
	copy(tmp, b.data)
	b.data = tmp
	return off
}

// WriteUint32 appends a 32-bit unsigned integer in little-endian order.
func (b *Buffer) WriteUint32(v uint32) {
	off := b.grow(4)
	binary.LittleEndian.PutUint32(b.data[off:], v)
}

// WriteBytes appends raw bytes with no length prefix.
func (b *Buffer) WriteBytes(p []byte) {
	off := b.grow(len(p))
	copy(b.data[off:], p)
}

// WriteLenPrefixedBytes appends a uint32 length header followed by p.
func (b *Buffer) WriteLenPrefixedBytes(p []byte) {
	b.WriteUint32(uint32(len(p)))
	b.WriteBytes(p)
}

// Reader is a forward-only cursor over a little-endian encoded byte slice.
type Reader struct {
	data []byte
	off  int
}

// NewReader wraps data for sequential little-endian decoding.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining reports how many unread bytes are left in the reader.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

// ReadUint32 reads a little-endian uint32, or returns an error on truncation.
func (r *Reader) ReadUint32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, errShortRead
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

// ReadBytes reads exactly n raw bytes, or returns an error on truncation.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, errShortRead
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out, nil
}

// ReadLenPrefixedBytes reads a uint32 length header followed by that many bytes.
func (r *Reader) ReadLenPrefixedBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(int(n))
}
