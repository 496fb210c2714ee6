package pducodec

import (
	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
	"github.com/strand-protocol/strand/pduendpoint/pkg/wire"
)

// MaxV1HeaderLen is the interop hard limit on a V1 header_len field, applied
// everywhere a V1 frame is decoded as a cross-cutting safety limit.
const MaxV1HeaderLen = 4 << 20 // 4 MiB

// MetaV1 is the decoded form of a V1 frame header.
type MetaV1 struct {
	RobotName   string
	ChannelID   uint32
	RequestType uint32
}

// EncodeV1 serialises robot/channel_id/body into the legacy length-prefixed
// V1 framing: header_len | name_len | robot_name | channel_id | request_type | body.
// header_len counts the bytes of (name_len, robot_name, channel_id) only.
func EncodeV1(robot string, channelID uint32, body []byte, requestType uint32) []byte {
	name := []byte(robot)

	block := wire.NewBuffer(4 + len(name) + 4)
	block.WriteLenPrefixedBytes(name)
	block.WriteUint32(channelID)

	out := wire.NewBuffer(4 + block.Len() + 4 + len(body))
	out.WriteLenPrefixedBytes(block.Bytes())
	out.WriteUint32(requestType)
	out.WriteBytes(body)
	return out.Bytes()
}

// DecodeV1 parses a single V1 frame and returns its header and body. The
// body slice is backed by data.
func DecodeV1(data []byte) (MetaV1, []byte, error) {
	var meta MetaV1
	r := wire.NewReader(data)

	headerLen, err := r.ReadUint32()
	if err != nil {
		return meta, nil, pduerr.New(pduerr.InvalidArgument, "pducodec: v1 frame too short for header_len")
	}
	if headerLen > MaxV1HeaderLen {
		return meta, nil, pduerr.New(pduerr.InvalidArgument, "pducodec: v1 header_len %d exceeds %d byte limit", headerLen, MaxV1HeaderLen)
	}
	block, err := r.ReadBytes(int(headerLen))
	if err != nil {
		return meta, nil, pduerr.New(pduerr.InvalidArgument, "pducodec: v1 frame truncated in header block")
	}

	br := wire.NewReader(block)
	name, err := br.ReadLenPrefixedBytes()
	if err != nil {
		return meta, nil, pduerr.New(pduerr.InvalidArgument, "pducodec: v1 header block too short for name_len")
	}
	channelID, err := br.ReadUint32()
	if err != nil {
		return meta, nil, pduerr.New(pduerr.InvalidArgument, "pducodec: v1 header_len %d too small for channel_id", headerLen)
	}
	meta.RobotName = string(name)
	meta.ChannelID = channelID

	requestType, err := r.ReadUint32()
	if err != nil {
		return meta, nil, pduerr.New(pduerr.InvalidArgument, "pducodec: v1 frame truncated before request_type")
	}
	meta.RequestType = requestType

	body, err := r.ReadBytes(r.Remaining())
	if err != nil {
		return meta, nil, pduerr.New(pduerr.InvalidArgument, "pducodec: v1 frame truncated in body")
	}
	return meta, body, nil
}
