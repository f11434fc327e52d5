// Package verify checks echo replies for the reported real address.
package verify

import (
	"fmt"
	"strings"

	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/uoa"
)

// Marker precedes the real address in an echo reply.
const Marker = "RealAddr="

// MismatchError reports a real address other than the expected one.
type MismatchError struct {
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("real address mismatch: expected %q, got %q", e.Expected, e.Actual)
}

func (e *MismatchError) Unwrap() error { return core.ErrRealAddressMismatch }

// Extract returns the text after the last Marker in payload.
func Extract(payload []byte) (string, error) {
	s := string(payload)
	i := strings.LastIndex(s, Marker)
	if i < 0 {
		return "", fmt.Errorf("%w in reply %q", core.ErrRealAddressNotFound, truncate(s))
	}
	return s[i+len(Marker):], nil
}

// Check requires payload to report exactly expected.
func Check(payload []byte, expected uoa.RealAddress) error {
	actual, err := Extract(payload)
	if err != nil {
		return err
	}
	if want := expected.String(); actual != want {
		return &MismatchError{Expected: want, Actual: actual}
	}
	return nil
}

func truncate(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
