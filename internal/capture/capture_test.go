package capture

import (
	"os"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/pcap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/uoaprobe/internal/core"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"afpacket", TypeAFPacket, false},
		{" AF_PACKET ", TypeAFPacket, false},
		{"af-packet", TypeAFPacket, false},
		{"PCAP", TypePCAP, false},
		{"xdp", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypeUnmarshalText(t *testing.T) {
	var ct Type
	require.NoError(t, ct.UnmarshalText([]byte("pcap")))
	assert.Equal(t, TypePCAP, ct)
	assert.Error(t, ct.UnmarshalText([]byte("bogus")))
}

func TestNewFactory(t *testing.T) {
	f, err := NewFactory(Options{})
	require.NoError(t, err)
	h, err := f.New()
	require.NoError(t, err)
	assert.Equal(t, TypeAFPacket, h.Type())

	f, err = NewFactory(Options{Type: TypePCAP})
	require.NoError(t, err)
	h, err = f.New()
	require.NoError(t, err)
	assert.Equal(t, TypePCAP, h.Type())

	_, err = NewFactory(Options{Type: "xdp"})
	assert.ErrorIs(t, err, core.ErrCaptureUnsupported)
}

func TestComputeFrameSizeAndBlocks(t *testing.T) {
	page := os.Getpagesize()
	opts := DefaultOptions()

	frame, block, num, err := computeFrameSizeAndBlocks(opts)
	require.NoError(t, err)
	assert.Equal(t, 0, page%frame)
	assert.Equal(t, frame*128, block)
	assert.Equal(t, int(opts.BufferSize.Bytes())/block, num)

	opts.BufferSize = 1 * datasize.KB
	_, _, _, err = computeFrameSizeAndBlocks(opts)
	assert.Error(t, err)
}

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{PollTimeout: -time.Second}.withDefaults()
	assert.Equal(t, DefaultOptions(), o)

	o = Options{Type: TypePCAP, SnapLen: 4 * datasize.KB}.withDefaults()
	assert.Equal(t, TypePCAP, o.Type)
	assert.Equal(t, 4*datasize.KB, o.SnapLen)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(afpacket.ErrTimeout))
	assert.True(t, IsTimeout(pcap.NextErrorTimeoutExpired))
	assert.False(t, IsTimeout(os.ErrClosed))
}

func TestReplyFilter(t *testing.T) {
	assert.Equal(t, "udp and dst port 40000", ReplyFilter(40000))
}
