// Package socketutil collects the small, transport-agnostic helpers shared
// by every raw comm: endpoint direction parsing, address resolution, and
// mapping OS errno values onto the closed pduerr.Code set.
package socketutil

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/strand-protocol/strand/pduendpoint/pkg/pduerr"
)

// Direction is the configured flow direction of a comm or endpoint.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
	DirectionInOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return "inout"
	}
}

// ParseDirection maps a config string onto a Direction. Anything other than
// "in" or "out" resolves to DirectionInOut, matching the original
// implementation's permissive fallback.
func ParseDirection(s string) Direction {
	switch s {
	case "in":
		return DirectionIn
	case "out":
		return DirectionOut
	default:
		return DirectionInOut
	}
}

// ResolveUDPAddr resolves host:port into a *net.UDPAddr, wrapping failures
// in the closed error set.
func ResolveUDPAddr(address string, port int) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, pduerr.Wrap(pduerr.InvalidArgument, err, "socketutil: resolve udp address %s:%d", address, port)
	}
	return addr, nil
}

// ResolveTCPAddr resolves host:port into a *net.TCPAddr, wrapping failures
// in the closed error set.
func ResolveTCPAddr(address string, port int) (*net.TCPAddr, error) {
	addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, pduerr.Wrap(pduerr.InvalidArgument, err, "socketutil: resolve tcp address %s:%d", address, port)
	}
	return addr, nil
}

// MapError maps a transport-level error onto the closed pduerr.Code set:
// EAGAIN/EWOULDBLOCK (including net.Error.Timeout()) become Timeout,
// everything else becomes IoError.
func MapError(err error) *pduerr.Error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return pduerr.Wrap(pduerr.Timeout, err, "socketutil: operation timed out")
	}
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
		return pduerr.Wrap(pduerr.Timeout, err, "socketutil: would block")
	}
	var perr *os.SyscallError
	if errors.As(err, &perr) {
		if perr.Err == syscall.EAGAIN || perr.Err == syscall.EWOULDBLOCK {
			return pduerr.Wrap(pduerr.Timeout, err, "socketutil: would block")
		}
	}
	return pduerr.Wrap(pduerr.IoError, err, "socketutil: io error")
}
