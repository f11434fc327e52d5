package verify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/uoa"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr error
	}{
		{"v4", "Msg=Hello, UOA!, RealAddr=10.2.3.3:23333", "10.2.3.3:23333", nil},
		{"v6", "Msg=Hello, UOA!, RealAddr=fe80::2333:23333", "fe80::2333:23333", nil},
		{"last marker wins", "Msg=RealAddr=1.1.1.1:1, RealAddr=2.2.2.2:2", "2.2.2.2:2", nil},
		{"empty value", "Msg=x, RealAddr=", "", nil},
		{"absent", "Msg=Hello, UOA!", "", core.ErrRealAddressNotFound},
		{"empty payload", "", "", core.ErrRealAddressNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract([]byte(tt.payload))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheck(t *testing.T) {
	expected := uoa.MustParse("10.2.3.3:23333")

	assert.NoError(t, Check([]byte("Msg=Hello, UOA!, RealAddr=10.2.3.3:23333"), expected))

	err := Check([]byte("Msg=Hello, UOA!, RealAddr=10.2.3.4:23333"), expected)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRealAddressMismatch)
	var mm *MismatchError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, "10.2.3.3:23333", mm.Expected)
	assert.Equal(t, "10.2.3.4:23333", mm.Actual)

	// trailing bytes are not tolerated
	assert.ErrorIs(t, Check([]byte("RealAddr=10.2.3.3:23333\n"), expected), core.ErrRealAddressMismatch)

	assert.ErrorIs(t, Check([]byte("Msg=Hello"), expected), core.ErrRealAddressNotFound)
}

func TestCheckIPv6(t *testing.T) {
	expected := uoa.MustParse("[fe80::2333]:23333")
	assert.NoError(t, Check([]byte("Msg=Hello, UOA!, RealAddr=fe80::2333:23333"), expected))
}
