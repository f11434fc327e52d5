// Package capture opens packet capture handles used to sniff probe replies.
package capture

import (
	"errors"
	"syscall"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// Type selects the capture implementation.
type Type string

const (
	TypeAFPacket Type = "afpacket"
	TypePCAP     Type = "pcap"
)

// Handle is an open capture source.
type Handle interface {
	// Open starts capturing packets that match filter, a libpcap expression.
	Open(filter string) error

	// ReadPacket returns the next packet. It returns an error satisfying
	// IsTimeout when no packet arrived within the poll timeout.
	ReadPacket() ([]byte, gopacket.CaptureInfo, error)

	// LinkType is the link layer of returned packets.
	LinkType() layers.LinkType

	Close() error

	Type() Type
}

// IsTimeout reports whether err is a poll timeout rather than a read failure.
func IsTimeout(err error) bool {
	return errors.Is(err, afpacket.ErrTimeout) ||
		errors.Is(err, pcap.NextErrorTimeoutExpired) ||
		errors.Is(err, syscall.EAGAIN)
}
