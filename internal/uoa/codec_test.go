package uoa

import (
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/uoaprobe/internal/core"
)

func TestEncodeIPv4(t *testing.T) {
	addr := MustParse("10.2.3.3:23333")

	got := Encode(addr)
	want := []byte{0x5b, 0x25, 10, 2, 3, 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected body (-want +got):\n%s", diff)
	}
}

func TestEncodeIPv6(t *testing.T) {
	addr := MustParse("[fe80::2333]:23333")

	got := Encode(addr)
	require.Len(t, got, 18)
	assert.Equal(t, []byte{0x5b, 0x25}, got[:2])
	assert.Equal(t, netip.MustParseAddr("fe80::2333").AsSlice(), got[2:])
}

func TestRoundTrip(t *testing.T) {
	tests := []string{
		"10.2.3.3:23333",
		"0.0.0.0:0",
		"255.255.255.255:65535",
		"[fe80::2333]:23333",
		"[::]:1",
		"[2001:db8::ffff:ffff]:65535",
		"[::ffff:10.0.0.1]:8080",
	}

	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			addr := MustParse(s)
			decoded, err := Decode(addr.Family(), Encode(addr))
			require.NoError(t, err)
			assert.Equal(t, addr, decoded)
			assert.Equal(t, addr.String(), decoded.String())

			inferred, err := DecodeBody(Encode(addr))
			require.NoError(t, err)
			assert.Equal(t, addr, inferred)
		})
	}
}

func TestNewRealAddressMalformed(t *testing.T) {
	tests := []struct {
		name   string
		family Family
		ip     []byte
	}{
		{"v4 with 16 bytes", V4, make([]byte, 16)},
		{"v6 with 4 bytes", V6, []byte{10, 0, 0, 1}},
		{"v4 truncated", V4, []byte{10, 0, 0}},
		{"v6 oversized", V6, make([]byte, 17)},
		{"unknown family", Family(9), []byte{10, 0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRealAddress(tt.family, tt.ip, 80)
			assert.ErrorIs(t, err, core.ErrMalformedAddress)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode(V4, []byte{0, 80, 10, 0, 0})
	assert.ErrorIs(t, err, core.ErrMalformedAddress)

	_, err = DecodeBody(make([]byte, 7))
	assert.ErrorIs(t, err, core.ErrMalformedAddress)
}

func TestOptionLength(t *testing.T) {
	assert.Equal(t, uint8(8), OptionLength(V4, PlacementIPv4))
	assert.Equal(t, uint8(20), OptionLength(V6, PlacementIPv4))
	assert.Equal(t, uint8(6), OptionLength(V4, PlacementIPv6))
	assert.Equal(t, uint8(18), OptionLength(V6, PlacementIPv6))
}

func TestStringFormat(t *testing.T) {
	assert.Equal(t, "10.2.3.3:23333", MustParse("10.2.3.3:23333").String())
	assert.Equal(t, "fe80::2333:23333", MustParse("[fe80::2333]:23333").String())
	assert.Equal(t, "fe80::1:4000", MustParse("[fe80::1%eth0]:4000").String())
	assert.Equal(t, "", RealAddress{}.String())
}

func TestIPIsCopied(t *testing.T) {
	ip := []byte{10, 0, 0, 1}
	addr, err := NewRealAddress(V4, ip, 1)
	require.NoError(t, err)

	ip[0] = 99
	assert.Equal(t, []byte{10, 0, 0, 1}, addr.IP())

	out := addr.IP()
	out[0] = 77
	assert.Equal(t, "10.0.0.1:1", addr.String())
}
