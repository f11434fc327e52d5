package echo

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/uoa"
	"firestige.xyz/uoaprobe/internal/verify"
)

func TestReply(t *testing.T) {
	assert.Equal(t, "Msg=Hello, UOA!", string(Reply([]byte("Hello, UOA!"), nil)))

	v4 := uoa.MustParse("10.2.3.3:23333")
	assert.Equal(t, "Msg=Hello, UOA!, RealAddr=10.2.3.3:23333", string(Reply([]byte("Hello, UOA!"), &v4)))

	v6 := uoa.MustParse("[fe80::2333]:23333")
	reply := Reply([]byte("Hello, UOA!"), &v6)
	assert.NoError(t, verify.Check(reply, v6))
}

func TestParamMapRoundTrip(t *testing.T) {
	peer := netip.MustParseAddrPort("192.0.2.7:40000")
	param, err := encodeParamMap(uoa.V4, peer, 6000)
	require.NoError(t, err)
	require.Len(t, param, paramMapLen)

	assert.Equal(t, uint16(unix.AF_INET), binary.NativeEndian.Uint16(param[offAF:]))
	assert.Equal(t, []byte{192, 0, 2, 7}, param[offSaddr:offSaddr+4])
	assert.Equal(t, make([]byte, 16), param[offDaddr:offDaddr+16])
	assert.Equal(t, []byte{0x9c, 0x40}, param[offSport:offSport+2])
	assert.Equal(t, []byte{0x17, 0x70}, param[offDport:offDport+2])

	// what the kernel module writes back
	binary.NativeEndian.PutUint16(param[offRealAF:], unix.AF_INET6)
	real6 := netip.MustParseAddr("fe80::2333").As16()
	copy(param[offRealSaddr:], real6[:])
	binary.BigEndian.PutUint16(param[offRealSport:], 23333)

	got, err := decodeParamMap(param)
	require.NoError(t, err)
	assert.Equal(t, "fe80::2333:23333", got.String())
}

func TestParamMapErrors(t *testing.T) {
	_, err := encodeParamMap(uoa.V6, netip.MustParseAddrPort("192.0.2.7:1"), 1)
	assert.ErrorIs(t, err, core.ErrResolverUnavailable)

	param := make([]byte, paramMapLen)
	_, err = decodeParamMap(param)
	assert.ErrorIs(t, err, core.ErrResolverUnavailable)

	_, err = decodeParamMap(param[:10])
	assert.ErrorIs(t, err, core.ErrResolverUnavailable)
}

func TestSockoptResolverOnPlainSocket(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()
	raw, err := conn.SyscallConn()
	require.NoError(t, err)

	// without the kernel module the lookup is either unknown or unavailable
	var (
		addr *uoa.RealAddress
		rerr error
	)
	require.NoError(t, raw.Control(func(fd uintptr) {
		addr, rerr = SockoptResolver{}.Resolve(fd, uoa.V4, netip.MustParseAddrPort("127.0.0.1:40000"), 6000)
	}))
	assert.Nil(t, addr)
	if rerr != nil {
		assert.ErrorIs(t, rerr, core.ErrResolverUnavailable)
	}
}

func serve(t *testing.T, resolver AddressResolver) (netip.AddrPort, context.CancelFunc, <-chan error) {
	t.Helper()
	conn, err := Listen(context.Background(), "udp4", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(DefaultConfig(), resolver).Serve(ctx, conn, uoa.V4) }()
	return conn.LocalAddr().(*net.UDPAddr).AddrPort(), cancel, done
}

func exchange(t *testing.T, server netip.AddrPort, msg string) string {
	t.Helper()
	c, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(server))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte(msg))
	require.NoError(t, err)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, err := c.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestServeWithResolvedAddress(t *testing.T) {
	resolved := uoa.MustParse("10.2.3.3:23333")
	var gotPeer netip.AddrPort
	var gotLocal uint16
	resolver := ResolverFunc(func(_ uintptr, family uoa.Family, peer netip.AddrPort, localPort uint16) (*uoa.RealAddress, error) {
		assert.Equal(t, uoa.V4, family)
		gotPeer, gotLocal = peer, localPort
		return &resolved, nil
	})

	server, cancel, done := serve(t, resolver)
	assert.Equal(t, "Msg=Hello, UOA!, RealAddr=10.2.3.3:23333", exchange(t, server, "Hello, UOA!"))

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, "127.0.0.1", gotPeer.Addr().String())
	assert.Equal(t, server.Port(), gotLocal)
}

func TestServeSurvivesResolverFailure(t *testing.T) {
	calls := 0
	resolver := ResolverFunc(func(uintptr, uoa.Family, netip.AddrPort, uint16) (*uoa.RealAddress, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("lookup exploded")
		}
		return nil, nil
	})

	server, cancel, done := serve(t, resolver)
	defer func() {
		cancel()
		<-done
	}()

	assert.Equal(t, "Msg=first", exchange(t, server, "first"))
	assert.Equal(t, "Msg=second", exchange(t, server, "second"))
}

func TestListenAndServeNeedsAddress(t *testing.T) {
	err := NewServer(Config{Port: 0}, nil).ListenAndServe(context.Background())
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(Config{Port: 0, ListenIPv4: "127.0.0.1"}, nil).ListenAndServe(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func shortReadRetry(t *testing.T, limit int) {
	t.Helper()
	oldMin, oldMax, oldLimit := readRetryMin, readRetryMax, maxReadFailures
	readRetryMin, readRetryMax, maxReadFailures = time.Millisecond, 5*time.Millisecond, limit
	t.Cleanup(func() { readRetryMin, readRetryMax, maxReadFailures = oldMin, oldMax, oldLimit })
}

func TestServeStopsAfterRepeatedReadFailures(t *testing.T) {
	shortReadRetry(t, 5)
	conn, err := Listen(context.Background(), "udp4", "127.0.0.1:0")
	require.NoError(t, err)
	// An expired deadline makes every read fail without closing the socket.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(-time.Second)))

	done := make(chan error, 1)
	go func() { done <- NewServer(DefaultConfig(), nil).Serve(context.Background(), conn, uoa.V4) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed 5 times in a row")
		assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))
	case <-time.After(2 * time.Second):
		t.Fatal("server kept retrying a failing socket")
	}
}

func TestServeRecoversFromTransientReadFailures(t *testing.T) {
	shortReadRetry(t, 1000)
	conn, err := Listen(context.Background(), "udp4", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(-time.Second)))
	server := conn.LocalAddr().(*net.UDPAddr).AddrPort()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(DefaultConfig(), nil).Serve(ctx, conn, uoa.V4) }()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, conn.SetReadDeadline(time.Time{}))
	assert.Equal(t, "Msg=back", exchange(t, server, "back"))
}

func TestServeReadBackoffStopsOnCancel(t *testing.T) {
	oldMin, oldMax, oldLimit := readRetryMin, readRetryMax, maxReadFailures
	readRetryMin, readRetryMax, maxReadFailures = time.Hour, time.Hour, 1000
	t.Cleanup(func() { readRetryMin, readRetryMax, maxReadFailures = oldMin, oldMax, oldLimit })

	conn, err := Listen(context.Background(), "udp4", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(-time.Second)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(DefaultConfig(), nil).Serve(ctx, conn, uoa.V4) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not interrupt the read backoff")
	}
}
