package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/uoaprobe/internal/log"
	"firestige.xyz/uoaprobe/internal/metrics"
	"firestige.xyz/uoaprobe/internal/packet"
	"firestige.xyz/uoaprobe/internal/transport"
	"firestige.xyz/uoaprobe/internal/verify"
)

// State is where a scenario is in its run.
type State int

const (
	Idle State = iota
	Priming
	Verifying
	Passed
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Priming:
		return "priming"
	case Verifying:
		return "verifying"
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Prober sends one attempt and returns the payload that came back.
type Prober interface {
	RequestReply(ctx context.Context, spec packet.Spec) ([]byte, error)
	CaptureSniff(ctx context.Context, spec packet.Spec) (*transport.CapturedPacket, error)
}

// AttemptError pins a failure to one attempt of a scenario.
type AttemptError struct {
	Scenario string
	Index    int
	Phase    Phase
	Variant  string
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: attempt %d (%s, %s): %v", e.Scenario, e.Index+1, e.Phase, e.Variant, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Result is the outcome of one scenario.
type Result struct {
	Name      string
	Mode      Mode
	State     State
	Attempts  int // attempts that passed
	Total     int
	StartedAt time.Time
	Duration  time.Duration
	Reason    string // skip reason
	Err       error
}

type Runner struct {
	prober   Prober
	parallel int
}

// NewRunner returns a Runner running at most parallel scenarios at once.
func NewRunner(prober Prober, parallel int) *Runner {
	if parallel < 1 {
		parallel = 1
	}
	return &Runner{prober: prober, parallel: parallel}
}

// Run drives one scenario to a terminal state. Attempts run in order and the
// first failure aborts the rest.
func (r *Runner) Run(ctx context.Context, s Scenario) Result {
	res := Result{Name: s.Name, Mode: s.Mode, State: Idle, Total: len(s.Attempts), StartedAt: time.Now()}
	logger := log.GetLogger().WithFields(logrus.Fields{"scenario": s.Name, "mode": s.Mode.String()})

	defer func() {
		res.Duration = time.Since(res.StartedAt)
		metrics.ScenariosTotal.WithLabelValues(s.Group(), res.State.String()).Inc()
	}()

	if s.Skipped() {
		res.State, res.Reason = Skipped, s.SkipReason
		logger.WithField("reason", s.SkipReason).Info("scenario skipped")
		return res
	}
	if err := s.Validate(); err != nil {
		res.State, res.Err = Failed, err
		logger.WithError(err).Error("invalid scenario")
		return res
	}

	for i, a := range s.Attempts {
		res.State = Verifying
		if a.Phase == PhasePriming {
			res.State = Priming
		}
		if err := r.attempt(ctx, s, a); err != nil {
			res.State = Failed
			res.Err = &AttemptError{Scenario: s.Name, Index: i, Phase: a.Phase, Variant: a.Spec.Variant(), Err: err}
			logger.WithError(res.Err).Warn("scenario failed")
			return res
		}
		res.Attempts++
	}

	res.State = Passed
	logger.WithField("attempts", res.Attempts).Info("scenario passed")
	return res
}

func (r *Runner) attempt(ctx context.Context, s Scenario, a Attempt) (err error) {
	start := time.Now()
	defer func() {
		result := "passed"
		if err != nil {
			result = "failed"
		}
		metrics.AttemptsTotal.WithLabelValues(string(a.Phase), a.Spec.Variant(), result).Inc()
		metrics.AttemptLatencySeconds.WithLabelValues(s.Mode.String()).Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	var payload []byte
	switch s.Mode {
	case CaptureSniff:
		cp, err := r.prober.CaptureSniff(ctx, a.Spec)
		if err != nil {
			return err
		}
		payload = cp.Payload
	default:
		payload, err = r.prober.RequestReply(ctx, a.Spec)
		if err != nil {
			return err
		}
	}

	log.GetLogger().WithFields(logrus.Fields{
		"scenario": s.Name,
		"phase":    string(a.Phase),
		"variant":  a.Spec.Variant(),
		"payload":  string(payload),
	}).Debug("attempt answered")
	return verify.Check(payload, s.Expected)
}

// RunAll runs scenarios concurrently, bounded by the runner's parallelism.
// Results keep the order of scenarios.
func (r *Runner) RunAll(ctx context.Context, scenarios []Scenario) []Result {
	results := make([]Result, len(scenarios))
	var g errgroup.Group
	g.SetLimit(r.parallel)
	for i := range scenarios {
		g.Go(func() error {
			results[i] = r.Run(ctx, scenarios[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}
