package transport

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/vishvananda/netlink"

	"firestige.xyz/uoaprobe/internal/log"
)

// RouteSource returns the preferred source address of the route to dst. When
// the route carries none, it falls back to the address a connected UDP socket
// would bind.
func RouteSource(dst netip.Addr) (netip.Addr, error) {
	routes, err := netlink.RouteGet(net.IP(dst.WithZone("").AsSlice()))
	if err != nil {
		log.GetLogger().WithError(err).WithField("dst", dst).Debug("route lookup failed")
	}
	for _, r := range routes {
		if a, ok := netip.AddrFromSlice(r.Src); ok && a.IsValid() && !a.IsUnspecified() {
			return a.Unmap(), nil
		}
	}
	return dialSource(dst)
}

const (
	defaultSourceTTL     = 30 * time.Second
	defaultSourceCleanup = time.Minute
)

// CachedSource memoizes fn per destination for ttl. Failed lookups are not cached.
func CachedSource(fn SourceFunc, ttl time.Duration) SourceFunc {
	if ttl <= 0 {
		ttl = defaultSourceTTL
	}
	c := cache.New(ttl, defaultSourceCleanup)
	return func(dst netip.Addr) (netip.Addr, error) {
		key := dst.String()
		if v, ok := c.Get(key); ok {
			return v.(netip.Addr), nil
		}
		src, err := fn(dst)
		if err != nil {
			return netip.Addr{}, err
		}
		c.SetDefault(key, src)
		return src, nil
	}
}

func dialSource(dst netip.Addr) (netip.Addr, error) {
	network := "udp4"
	if dst.Is6() && !dst.Is4In6() {
		network = "udp6"
	}
	conn, err := net.Dial(network, netip.AddrPortFrom(dst, 9).String())
	if err != nil {
		return netip.Addr{}, fmt.Errorf("no route to %s: %w", dst, err)
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("unexpected local address %v", conn.LocalAddr())
	}
	return local.AddrPort().Addr().WithZone("").Unmap(), nil
}
