// Package pdukey defines the two addressing units used throughout
// pduendpoint: the name-based PduKey and the resolved PduResolvedKey that
// everything else — caches, subscriber lists, comms — actually keys on.
package pdukey

import "fmt"

// ResolvedKey is the unique addressing unit: a robot name plus a numeric
// channel id. It is comparable and safe to use as a map key.
type ResolvedKey struct {
	Robot     string
	ChannelID uint32
}

// String renders the key for logging.
func (k ResolvedKey) String() string {
	return fmt.Sprintf("%s#%d", k.Robot, k.ChannelID)
}

// Key is the name-based addressing unit: a robot plus a PDU name. It
// resolves to a ResolvedKey via a PDU definition before it can be used to
// touch a cache or subscriber list.
type Key struct {
	Robot string
	Pdu   string
}

// String renders the key for logging.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Robot, k.Pdu)
}
