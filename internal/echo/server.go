// Package echo is the UDP echo service that reports each sender's real address.
package echo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/log"
	"firestige.xyz/uoaprobe/internal/metrics"
	"firestige.xyz/uoaprobe/internal/uoa"
	"firestige.xyz/uoaprobe/internal/verify"
)

// Read failures other than a closed socket are retried with backoff; this
// many in a row stop the loop.
var (
	readRetryMin    = 10 * time.Millisecond
	readRetryMax    = time.Second
	maxReadFailures = 50
)

const (
	DefaultPort  = 6000
	maxDatagram  = 65535
	replyPrefix  = "Msg="
	replyDivider = ", "
)

type Config struct {
	Port uint16 `mapstructure:"port"`
	// IPv4 and IPv6 listen addresses; empty disables the family.
	ListenIPv4 string `mapstructure:"listen_ipv4"`
	ListenIPv6 string `mapstructure:"listen_ipv6"`
}

func DefaultConfig() Config {
	return Config{Port: DefaultPort, ListenIPv4: "0.0.0.0", ListenIPv6: "::"}
}

// Reply renders the echo text for payload, with the real address suffix when known.
func Reply(payload []byte, addr *uoa.RealAddress) []byte {
	out := make([]byte, 0, len(replyPrefix)+len(payload)+64)
	out = append(out, replyPrefix...)
	out = append(out, payload...)
	if addr != nil && !addr.IsZero() {
		out = append(out, replyDivider...)
		out = append(out, verify.Marker...)
		out = append(out, addr.String()...)
	}
	return out
}

type Server struct {
	cfg      Config
	resolver AddressResolver
}

func NewServer(cfg Config, resolver AddressResolver) *Server {
	if resolver == nil {
		resolver = SockoptResolver{}
	}
	return &Server{cfg: cfg, resolver: resolver}
}

// ListenAndServe serves every configured family until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	type listener struct {
		conn   *net.UDPConn
		family uoa.Family
	}
	var listeners []listener
	for _, l := range []struct {
		network string
		host    string
		family  uoa.Family
	}{
		{"udp4", s.cfg.ListenIPv4, uoa.V4},
		{"udp6", s.cfg.ListenIPv6, uoa.V6},
	} {
		if l.host == "" {
			continue
		}
		conn, err := Listen(ctx, l.network, net.JoinHostPort(l.host, strconv.Itoa(int(s.cfg.Port))))
		if err != nil {
			for _, opened := range listeners {
				opened.conn.Close()
			}
			return err
		}
		listeners = append(listeners, listener{conn: conn, family: l.family})
	}
	if len(listeners) == 0 {
		return fmt.Errorf("%w: echo server has no listen address", core.ErrConfigInvalid)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		g.Go(func() error { return s.Serve(ctx, l.conn, l.family) })
	}
	return g.Wait()
}

// Listen opens a UDP socket with SO_REUSEADDR set.
func Listen(ctx context.Context, network, address string) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var serr error
			if err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return serr
		},
	}
	pc, err := lc.ListenPacket(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, address, err)
	}
	return pc.(*net.UDPConn), nil
}

// Serve answers datagrams on conn until ctx is done or conn is closed. The
// connection is closed on return.
func (s *Server) Serve(ctx context.Context, conn *net.UDPConn, family uoa.Family) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	local := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	logger := log.GetLogger().WithField("family", family.String())
	logger.Infof("UDP server listening on %s", local)

	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	retry := backoff.ExponentialBackOff{
		InitialInterval:     readRetryMin,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         readRetryMax,
	}
	retry.Reset()
	failures := 0

	buf := make([]byte, maxDatagram)
	for {
		n, peer, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			failures++
			if failures >= maxReadFailures {
				return fmt.Errorf("read on %s failed %d times in a row: %w", local, failures, err)
			}
			wait := retry.NextBackOff()
			logger.WithError(err).WithField("retry_in", wait.String()).Warn("read datagram failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		if failures > 0 {
			failures = 0
			retry.Reset()
		}
		msg := buf[:n]

		addr := s.resolve(raw, family, peer, local.Port(), logger)
		if _, err := conn.WriteToUDPAddrPort(Reply(msg, addr), peer); err != nil {
			logger.WithError(err).WithField("peer", peer.String()).Warn("send reply failed")
			continue
		}
		metrics.EchoDatagramsTotal.WithLabelValues(family.String()).Inc()

		entry := logger.WithFields(logrus.Fields{"peer": peer.String(), "bytes": n})
		if addr != nil {
			entry = entry.WithField("real_addr", addr.String())
		}
		entry.Infof("recv %s", msg)
	}
}

func (s *Server) resolve(raw syscall.RawConn, family uoa.Family, peer netip.AddrPort, localPort uint16, logger log.Logger) *uoa.RealAddress {
	var (
		addr *uoa.RealAddress
		rerr error
	)
	if err := raw.Control(func(fd uintptr) {
		addr, rerr = s.resolver.Resolve(fd, family, peer, localPort)
	}); err != nil {
		rerr = err
	}

	switch {
	case rerr != nil:
		metrics.ResolverLookupsTotal.WithLabelValues(metrics.LookupFailed).Inc()
		logger.WithError(rerr).WithField("peer", peer.String()).Warn("real address lookup failed")
		return nil
	case addr == nil:
		metrics.ResolverLookupsTotal.WithLabelValues(metrics.LookupMissing).Inc()
		return nil
	default:
		metrics.ResolverLookupsTotal.WithLabelValues(metrics.LookupResolved).Inc()
		return addr
	}
}
