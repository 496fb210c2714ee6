package wire

import "github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"

// errShortRead is returned by Reader methods when the underlying slice does
// not contain enough bytes to satisfy the read.
var errShortRead error = pduerr.New(pduerr.InvalidArgument, "wire: short read")
