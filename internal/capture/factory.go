package capture

import (
	"fmt"

	"firestige.xyz/uoaprobe/internal/core"
)

// Factory creates capture handles.
type Factory interface {
	New() (Handle, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func() (Handle, error)

func (f FactoryFunc) New() (Handle, error) { return f() }

// NewFactory returns a Factory producing handles of the configured type.
func NewFactory(options Options) (Factory, error) {
	options = options.withDefaults()
	switch options.Type {
	case TypeAFPacket:
		return FactoryFunc(func() (Handle, error) { return newAFPacketHandle(options), nil }), nil
	case TypePCAP:
		return FactoryFunc(func() (Handle, error) { return newPCAPHandle(options), nil }), nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrCaptureUnsupported, options.Type)
	}
}

// SupportedTypes lists the capture types NewFactory accepts.
func SupportedTypes() []Type {
	return []Type{TypeAFPacket, TypePCAP}
}
