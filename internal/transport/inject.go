package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// RawInjector sends datagrams through an IPPROTO_RAW socket, so the kernel
// transmits the supplied IP header unchanged. Needs CAP_NET_RAW.
type RawInjector struct{}

func (RawInjector) Inject(ctx context.Context, pkt []byte, dst netip.Addr) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	domain := unix.AF_INET
	var sa unix.Sockaddr
	if dst.Is4() || dst.Is4In6() {
		sa = &unix.SockaddrInet4{Addr: dst.Unmap().As4()}
	} else {
		domain = unix.AF_INET6
		zone, err := zoneIndex(dst.Zone())
		if err != nil {
			return err
		}
		sa = &unix.SockaddrInet6{Addr: dst.As16(), ZoneId: zone}
	}

	fd, err := unix.Socket(domain, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.IPPROTO_RAW)
	if err != nil {
		return fmt.Errorf("open raw socket: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Sendto(fd, pkt, 0, sa); err != nil {
		return fmt.Errorf("sendto %s: %w", dst, err)
	}
	return nil
}

func zoneIndex(zone string) (uint32, error) {
	if zone == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(n), nil
	}
	iface, err := net.InterfaceByName(zone)
	if err != nil {
		return 0, fmt.Errorf("resolve zone %q: %w", zone, err)
	}
	return uint32(iface.Index), nil
}
