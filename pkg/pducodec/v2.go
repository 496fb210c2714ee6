package pducodec

import (
	"encoding/binary"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
)

// EncodeV2 serialises robot/channel_id/body into a single V2 frame: a fixed
// 304-byte header followed by the body. requestType is normally PduDataType;
// callers that need a different meta_request_type (e.g. control frames) may
// pass one explicitly via EncodeV2WithType.
func EncodeV2(robot string, channelID uint32, body []byte) []byte {
	return EncodeV2WithType(robot, channelID, body, PduDataType)
}

// EncodeV2WithType is EncodeV2 with an explicit meta_request_type.
func EncodeV2WithType(robot string, channelID uint32, body []byte, requestType uint32) []byte {
	return EncodeV2At(robot, channelID, body, requestType, 0, 0, 0)
}

// EncodeV2At is EncodeV2WithType with explicit timestamps; callers that have
// a time source stamp frames through this entry point.
func EncodeV2At(robot string, channelID uint32, body []byte, requestType uint32, hakoTimeUs, assetTimeUs, realTimeUs int64) []byte {
	out := make([]byte, HeaderSizeV2+len(body))
	header := out[:HeaderSizeV2]

	nameBytes := []byte(robot)
	if len(nameBytes) >= robotNameSize {
		nameBytes = nameBytes[:robotNameSize-1]
	}
	copy(header[0:robotNameSize], nameBytes)
	// Remainder of robot_name is already zero (NUL-padded) from make().

	off := robotNameSize
	binary.LittleEndian.PutUint32(header[off:], MagicHAKO)
	off += 4
	binary.LittleEndian.PutUint16(header[off:], VersionV2)
	off += 2
	binary.LittleEndian.PutUint16(header[off:], 0) // reserved
	off += 2
	binary.LittleEndian.PutUint32(header[off:], 0) // flags
	off += 4
	binary.LittleEndian.PutUint32(header[off:], requestType)
	off += 4
	binary.LittleEndian.PutUint32(header[off:], totalLenBase+uint32(len(body)))
	off += 4
	binary.LittleEndian.PutUint32(header[off:], uint32(len(body)))
	off += 4
	binary.LittleEndian.PutUint64(header[off:], uint64(hakoTimeUs))
	off += 8
	binary.LittleEndian.PutUint64(header[off:], uint64(assetTimeUs))
	off += 8
	binary.LittleEndian.PutUint64(header[off:], uint64(realTimeUs))
	off += 8
	binary.LittleEndian.PutUint32(header[off:], channelID)
	off += 4
	// Remaining 124 bytes of padding are already zero.

	copy(out[HeaderSizeV2:], body)
	return out
}

// DecodeV2 parses a single V2 frame. It returns the decoded header and a body
// slice backed by the caller's data — copy it before reusing the underlying
// buffer for another read.
func DecodeV2(data []byte) (MetaPdu, []byte, error) {
	var meta MetaPdu
	if len(data) < HeaderSizeV2 {
		return meta, nil, pduerr.New(pduerr.InvalidArgument, "pducodec: frame shorter than header (%d bytes)", len(data))
	}
	header := data[:HeaderSizeV2]

	end := 0
	for end < robotNameSize && header[end] != 0 {
		end++
	}
	meta.RobotName = string(header[:end])

	off := robotNameSize
	meta.Magic = binary.LittleEndian.Uint32(header[off:])
	off += 4
	if meta.Magic != MagicHAKO {
		return meta, nil, pduerr.New(pduerr.InvalidArgument, "pducodec: bad magic 0x%08x", meta.Magic)
	}
	meta.Version = binary.LittleEndian.Uint16(header[off:])
	off += 2
	if meta.Version != VersionV2 {
		return meta, nil, pduerr.New(pduerr.InvalidArgument, "pducodec: unsupported version 0x%04x", meta.Version)
	}
	meta.Reserved = binary.LittleEndian.Uint16(header[off:])
	off += 2
	meta.Flags = binary.LittleEndian.Uint32(header[off:])
	off += 4
	meta.MetaRequestType = binary.LittleEndian.Uint32(header[off:])
	off += 4
	meta.TotalLen = binary.LittleEndian.Uint32(header[off:])
	off += 4
	meta.BodyLen = binary.LittleEndian.Uint32(header[off:])
	off += 4
	meta.HakoTimeUs = int64(binary.LittleEndian.Uint64(header[off:]))
	off += 8
	meta.AssetTimeUs = int64(binary.LittleEndian.Uint64(header[off:]))
	off += 8
	meta.RealTimeUs = int64(binary.LittleEndian.Uint64(header[off:]))
	off += 8
	meta.ChannelID = binary.LittleEndian.Uint32(header[off:])

	if uint64(len(data)-HeaderSizeV2) < uint64(meta.BodyLen) {
		return meta, nil, pduerr.New(pduerr.InvalidArgument, "pducodec: truncated body, want %d have %d", meta.BodyLen, len(data)-HeaderSizeV2)
	}
	body := data[HeaderSizeV2 : HeaderSizeV2+int(meta.BodyLen)]
	return meta, body, nil
}
