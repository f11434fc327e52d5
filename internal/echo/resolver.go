package echo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"unsafe"

	"golang.org/x/sys/unix"

	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/uoa"
)

// AddressResolver asks the network stack for the real address behind a peer.
// A nil address with a nil error means no real address is known.
type AddressResolver interface {
	Resolve(fd uintptr, family uoa.Family, peer netip.AddrPort, localPort uint16) (*uoa.RealAddress, error)
}

// ResolverFunc adapts a function to AddressResolver.
type ResolverFunc func(fd uintptr, family uoa.Family, peer netip.AddrPort, localPort uint16) (*uoa.RealAddress, error)

func (f ResolverFunc) Resolve(fd uintptr, family uoa.Family, peer netip.AddrPort, localPort uint16) (*uoa.RealAddress, error) {
	return f(fd, family, peer, localPort)
}

// uoaSoGetLookup is the UOA kernel module's getsockopt on IPPROTO_IP.
const uoaSoGetLookup = 2048

// Layout of the packed struct uoa_param_map: af, saddr, daddr, sport, dport
// as input and real_af, real_saddr, real_sport as output. Address fields are
// 16 bytes wide for both families; af fields are host order, ports network order.
const (
	offAF        = 0
	offSaddr     = 2
	offDaddr     = 18
	offSport     = 34
	offDport     = 36
	offRealAF    = 38
	offRealSaddr = 40
	offRealSport = 56
	paramMapLen  = 58
)

// SockoptResolver queries the UOA kernel module through getsockopt on the
// receiving socket.
type SockoptResolver struct{}

func (SockoptResolver) Resolve(fd uintptr, family uoa.Family, peer netip.AddrPort, localPort uint16) (*uoa.RealAddress, error) {
	param, err := encodeParamMap(family, peer, localPort)
	if err != nil {
		return nil, err
	}

	size := uint32(len(param))
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT, fd, unix.IPPROTO_IP, uoaSoGetLookup,
		uintptr(unsafe.Pointer(&param[0])), uintptr(unsafe.Pointer(&size)), 0)
	switch {
	case errno == 0:
	case errors.Is(errno, unix.ENOPROTOOPT), errors.Is(errno, unix.EOPNOTSUPP):
		return nil, fmt.Errorf("%w: uoa lookup: %v", core.ErrResolverUnavailable, errno)
	default:
		return nil, nil
	}
	return decodeParamMap(param)
}

func encodeParamMap(family uoa.Family, peer netip.AddrPort, localPort uint16) ([]byte, error) {
	ip := peer.Addr().WithZone("")
	param := make([]byte, paramMapLen)
	switch {
	case family == uoa.V4 && ip.Unmap().Is4():
		binary.NativeEndian.PutUint16(param[offAF:], unix.AF_INET)
		a := ip.Unmap().As4()
		copy(param[offSaddr:], a[:])
	case family == uoa.V6 && ip.Is6():
		binary.NativeEndian.PutUint16(param[offAF:], unix.AF_INET6)
		a := ip.As16()
		copy(param[offSaddr:], a[:])
	default:
		return nil, fmt.Errorf("%w: peer %s is not %s", core.ErrResolverUnavailable, peer, family)
	}
	binary.BigEndian.PutUint16(param[offSport:], peer.Port())
	binary.BigEndian.PutUint16(param[offDport:], localPort)
	return param, nil
}

func decodeParamMap(param []byte) (*uoa.RealAddress, error) {
	if len(param) < paramMapLen {
		return nil, fmt.Errorf("%w: short uoa_param_map of %d bytes", core.ErrResolverUnavailable, len(param))
	}
	var family uoa.Family
	switch binary.NativeEndian.Uint16(param[offRealAF:]) {
	case unix.AF_INET:
		family = uoa.V4
	case unix.AF_INET6:
		family = uoa.V6
	default:
		return nil, fmt.Errorf("%w: unknown real address family %d",
			core.ErrResolverUnavailable, binary.NativeEndian.Uint16(param[offRealAF:]))
	}
	ip := param[offRealSaddr : offRealSaddr+family.Width()]
	addr, err := uoa.NewRealAddress(family, ip, binary.BigEndian.Uint16(param[offRealSport:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrResolverUnavailable, err)
	}
	return &addr, nil
}
