package packet

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/uoa"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		addr   string
		port   uint16
		family uoa.Family
	}{
		{"192.168.1.10:6000", "192.168.1.10", 6000, uoa.V4},
		{" 10.0.0.1:53 ", "10.0.0.1", 53, uoa.V4},
		{"[2001:db8::1]:8082", "2001:db8::1", 8082, uoa.V6},
		{"[fe80::1%eth0]:8082", "fe80::1%eth0", 8082, uoa.V6},
		{"[::ffff:10.0.0.1]:80", "10.0.0.1", 80, uoa.V4},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ep, err := ParseEndpoint(tt.in)
			require.NoError(t, err)
			assert.Equal(t, netip.MustParseAddr(tt.addr), ep.Addr)
			assert.Equal(t, tt.port, ep.Port)
			assert.Equal(t, tt.family, ep.Family())
			assert.True(t, ep.IsValid())
		})
	}
}

func TestParseEndpointErrors(t *testing.T) {
	for _, in := range []string{"", "10.0.0.1", "2001:db8::1:80", "host:80", "10.0.0.1:70000"} {
		_, err := ParseEndpoint(in)
		assert.ErrorIs(t, err, core.ErrMalformedAddress, in)
	}

	_, err := ParseEndpointFamily("10.0.0.1:80", uoa.V6)
	assert.ErrorIs(t, err, core.ErrMalformedAddress)
	_, err = ParseEndpointFamily("[2001:db8::1]:80", uoa.V4)
	assert.ErrorIs(t, err, core.ErrMalformedAddress)
}

func TestEndpointString(t *testing.T) {
	ep, err := ParseEndpoint("[2001:db8::1]:6000")
	require.NoError(t, err)
	assert.Equal(t, "[2001:db8::1]:6000", ep.String())
	assert.False(t, Endpoint{}.IsValid())
}
