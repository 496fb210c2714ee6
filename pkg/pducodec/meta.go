// Package pducodec implements the two wire framings shared by every raw
// (non-SHM) transport comm: the fixed 304-byte V2 header used on the wire
// today, and the length-prefixed V1 framing kept for legacy interop. The
// codec is pure: no I/O, no allocation beyond the slice it returns.
package pducodec

const (
	// MagicHAKO identifies a V2 frame header ("HAKO" read big-endian; the
	// little-endian wire bytes spell "OKAH").
	MagicHAKO uint32 = 0x48414B4F
	// VersionV2 is the only V2 header version this codec accepts.
	VersionV2 uint16 = 0x0002

	// PduDataType is the default meta_request_type for an ordinary PDU body.
	PduDataType uint32 = 0x42555043

	robotNameSize = 128
	paddingSize   = 124

	// HeaderSizeV2 is the fixed byte size of a V2 frame header.
	HeaderSizeV2 = robotNameSize + 4 + 2 + 2 + 4 + 4 + 4 + 4 + 8 + 8 + 8 + 4 + paddingSize

	// totalLenBase is the constant added to body_len to produce total_len.
	// Invariant: total_len = (176-4) + body_len = 172 + body_len.
	totalLenBase = 172
)

// MetaPdu is the decoded form of a V2 frame header. All integer fields are
// little-endian on the wire.
type MetaPdu struct {
	RobotName       string
	Magic           uint32
	Version         uint16
	Reserved        uint16
	Flags           uint32
	MetaRequestType uint32
	TotalLen        uint32
	BodyLen         uint32
	HakoTimeUs      int64
	AssetTimeUs     int64
	RealTimeUs      int64
	ChannelID       uint32
}
