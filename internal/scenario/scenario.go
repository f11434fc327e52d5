// Package scenario defines the probe catalog and runs it.
package scenario

import (
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/packet"
	"firestige.xyz/uoaprobe/internal/uoa"
)

// Mode is how an attempt's outcome is observed.
type Mode int

const (
	// RequestReply waits for the reply on the bound source port.
	RequestReply Mode = iota
	// CaptureSniff observes the reply with a packet capture.
	CaptureSniff
)

func (m Mode) String() string {
	switch m {
	case RequestReply:
		return "request-reply"
	case CaptureSniff:
		return "capture-sniff"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Phase is the role of an attempt within a scenario.
type Phase string

const (
	PhasePriming   Phase = "priming"
	PhaseVerifying Phase = "verifying"
)

type Attempt struct {
	Phase Phase
	Spec  packet.Spec
}

// Scenario is one named probe: what to send, where, and what real address
// must come back for every attempt.
type Scenario struct {
	Name   string
	Target packet.Endpoint
	// Self is set for load balancer scenarios, where the expected real
	// address is the prober's own address and source port.
	Self       netip.Addr
	Expected   uoa.RealAddress
	Attempts   []Attempt
	Mode       Mode
	SkipReason string
}

// Group is the part of the name before the slash.
func (s Scenario) Group() string {
	group, _, _ := strings.Cut(s.Name, "/")
	return group
}

// Skipped reports whether the scenario cannot run with the given targets.
func (s Scenario) Skipped() bool { return s.SkipReason != "" }

// Validate checks the scenario is internally consistent.
func (s Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: scenario without name", core.ErrConfigInvalid)
	}
	if s.Skipped() {
		return nil
	}
	if !s.Target.IsValid() {
		return fmt.Errorf("%w: scenario %s has no target", core.ErrConfigInvalid, s.Name)
	}
	if s.Expected.IsZero() {
		return fmt.Errorf("%w: scenario %s has no expected real address", core.ErrConfigInvalid, s.Name)
	}
	if len(s.Attempts) == 0 {
		return fmt.Errorf("%w: scenario %s has no attempts", core.ErrConfigInvalid, s.Name)
	}
	if s.Attempts[len(s.Attempts)-1].Phase != PhaseVerifying {
		return fmt.Errorf("%w: scenario %s does not end with a verifying attempt", core.ErrConfigInvalid, s.Name)
	}
	for i, a := range s.Attempts {
		if a.Spec.Destination != s.Target {
			return fmt.Errorf("%w: scenario %s attempt %d targets %s, not %s",
				core.ErrConfigInvalid, s.Name, i, a.Spec.Destination, s.Target)
		}
		if a.Spec.SourcePort == 0 {
			return fmt.Errorf("%w: scenario %s attempt %d has no source port", core.ErrConfigInvalid, s.Name, i)
		}
		if s.Self.IsValid() && a.Spec.SourcePort != s.Expected.Port() {
			return fmt.Errorf("%w: scenario %s attempt %d sends from port %d but expects %s",
				core.ErrConfigInvalid, s.Name, i, a.Spec.SourcePort, s.Expected)
		}
	}
	return nil
}
