// Package runner drives a strategy agent over a market event stream.
// The same loop serves three modes: BackTest replays a capture as fast
// as it can, Dry consumes the live feed but only simulates fills, Real
// additionally forwards orders to the venue gateway and books the fills
// the venue reports back. Strategy code is identical in all three.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/tick-session-engine/internal/feed"
	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/internal/session"
	"github.com/your-org/tick-session-engine/pkg/logger"
)

// Mode selects how the runner treats time and order execution.
type Mode string

const (
	BackTest Mode = "backtest"
	Dry      Mode = "dry"
	Real     Mode = "real"
)

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case BackTest, Dry, Real:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown runner mode %q", s)
}

// Status is the lifecycle state of one run.
type Status string

const (
	StatusIdle      Status = "Idle"
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusStopped   Status = "Stopped"
)

// warmupLimit bounds how many ticks may pass before the session
// establishes both board edges. A market that has not printed both sides
// within this many trades is broken input, not a slow start.
const warmupLimit = 500

// ErrWarmupExhausted is returned when the warm-up limit is hit before
// the session initializes.
var ErrWarmupExhausted = errors.New("session not initialized within warm-up limit")

// Config tunes one run.
type Config struct {
	Mode Mode

	// ExecuteTime bounds the run in virtual time measured from the
	// first tick. Zero means run until the stream ends.
	ExecuteTime time.Duration

	// ProgressInterval is the wall-clock period between progress log
	// lines. Zero disables them.
	ProgressInterval time.Duration
}

// Summary is the end-of-run aggregate.
type Summary struct {
	RunID     string
	Status    Status
	StartTime market.MicroSec
	EndTime   market.MicroSec

	TickCount    int64
	LoopCount    int64
	OnInitCount  int64
	OnClockCount int64
	OnTickCount  int64
	UpdateCount  int64

	Orders      session.OrderCounts
	Profit      float64
	Fee         float64
	TotalProfit float64
}

// Runner executes one agent against one session. Not reusable; create a
// new Runner per run.
type Runner struct {
	cfg     Config
	session *session.Session

	runID   string
	status  Status
	summary Summary
}

// New creates a runner for the given session.
func New(cfg Config, s *session.Session) *Runner {
	return &Runner{cfg: cfg, session: s, status: StatusIdle}
}

// Status returns the current lifecycle state.
func (r *Runner) Status() Status {
	return r.status
}

// Summary returns the run aggregate. Valid once Run has returned.
func (r *Runner) Summary() Summary {
	sum := r.summary
	sum.RunID = r.runID
	sum.Status = r.status
	sum.Orders = r.session.Counts()
	sum.Profit, _ = r.session.Profit().Float64()
	acct := r.session.Account()
	sum.Fee, _ = acct.Fee.Float64()
	sum.TotalProfit, _ = acct.TotalProfit.Float64()
	return sum
}

// Run drives the agent over a tick-only source. Backtest and dry runs
// have no venue leg, so the tick stream is the whole event stream.
func (r *Runner) Run(ctx context.Context, agent Agent, source feed.Source) error {
	return r.RunEvents(ctx, agent, &feed.TickEvents{Source: source})
}

// RunEvents drives the agent over a merged event stream until the
// stream ends, the execute-time bound is reached, the context is
// cancelled, or a callback fails. Ticks advance the virtual clock and
// simulate fills; venue order and account notifications are applied to
// the session and reported through the same callbacks as simulated
// fills. The returned error is nil for a completed or stopped run.
func (r *Runner) RunEvents(ctx context.Context, agent Agent, source feed.EventSource) error {
	caps, err := capabilitiesOf(agent)
	if err != nil {
		r.status = StatusFailed
		return err
	}

	var clockInterval int64
	if caps.hasOnClock {
		clockInterval = agent.(ClockHandler).ClockIntervalSec()
		if clockInterval <= 0 {
			r.status = StatusFailed
			return fmt.Errorf("agent %q: clock interval must be positive, got %d", agent.Name(), clockInterval)
		}
	}

	r.runID = fmt.Sprintf("%s-%s", agent.Name(), uuid.NewString()[:8])
	r.status = StatusRunning
	logger.Infof("Starting %s run %s", r.cfg.Mode, r.runID)

	eventCh, errCh := source.Events(ctx)

	var (
		initialized   = r.session.Initialized()
		started       bool
		deadline      market.MicroSec
		lastClock     = market.MicroSec(-1)
		warmupTicks   int64
		progressAt    = time.Now()
		progressEvery = r.cfg.ProgressInterval
	)

	fail := func(err error) error {
		r.status = StatusFailed
		logger.Errorf("Run failed: %v", err)
		return err
	}

	for {
		if ctx.Err() != nil {
			r.status = StatusStopped
			logger.Infof("Run stopped: %v", context.Cause(ctx))
			return nil
		}

		select {
		case <-ctx.Done():
			r.status = StatusStopped
			logger.Infof("Run stopped: %v", ctx.Err())
			return nil

		case e, ok := <-eventCh:
			if !ok {
				if err := <-errCh; err != nil {
					return fail(err)
				}
				r.status = StatusCompleted
				r.logCompletion()
				return nil
			}

			r.summary.LoopCount++

			switch event := e.(type) {
			case market.Tick:
				if !started {
					started = true
					r.summary.StartTime = event.Time
					if r.cfg.ExecuteTime > 0 {
						deadline = event.Time + market.MicroSec(r.cfg.ExecuteTime.Microseconds())
					}
				}
				if deadline > 0 && event.Time >= deadline {
					r.status = StatusCompleted
					logger.Infof("Execute time reached at %s", event.Time)
					r.logCompletion()
					return nil
				}

				// Warm-up: the session consumes ticks until both edges are
				// known; the agent sees nothing until then.
				if !initialized {
					r.consumeTick(event)
					warmupTicks++
					if r.session.Initialized() {
						initialized = true
						if caps.hasOnInit {
							if err := r.callOnInit(agent); err != nil {
								return fail(err)
							}
						}
					} else if warmupTicks >= warmupLimit {
						return fail(fmt.Errorf("%d warm-up ticks consumed: %w", warmupTicks, ErrWarmupExhausted))
					}
					continue
				}

				if err := r.step(agent, caps, clockInterval, &lastClock, event); err != nil {
					return fail(err)
				}

				if progressEvery > 0 && time.Since(progressAt) >= progressEvery {
					progressAt = time.Now()
					logger.Infof("Progress: time=%s ticks=%d position=%s profit=%s",
						r.session.CurrentTime(), r.summary.TickCount,
						r.session.Position(), r.session.TotalProfit())
				}

			case *market.Order:
				rows := r.session.OnVenueOrder(event)
				if !initialized || len(rows) == 0 {
					continue
				}
				if err := r.dispatchRows(agent, caps, rows); err != nil {
					return fail(err)
				}

			case market.AccountSnapshot:
				r.session.OnVenueAccount(event)
				if !initialized || !caps.hasOnAccountUpdate {
					continue
				}
				if err := r.call(agent, "OnAccountUpdate", func() error {
					return agent.(AccountHandler).OnAccountUpdate(r.session, event)
				}); err != nil {
					return fail(err)
				}

			default:
				logger.Warnf("Ignoring event of unexpected kind %T", e)
			}
		}
	}
}

// step runs one tick through the clock, session and agent callbacks.
func (r *Runner) step(agent Agent, caps capabilities, clockInterval int64, lastClock *market.MicroSec, tick market.Tick) error {
	// The clock fires before the boundary tick mutates the session, so
	// OnClock observes the state as of the end of the previous interval.
	if caps.hasOnClock {
		bucket := market.FloorSec(tick.Time, clockInterval)
		if *lastClock < 0 {
			*lastClock = bucket
		} else if bucket > *lastClock {
			*lastClock = bucket
			r.summary.OnClockCount++
			if err := r.call(agent, "OnClock", func() error {
				return agent.(ClockHandler).OnClock(r.session, bucket)
			}); err != nil {
				return err
			}
		}
	}

	rows := r.consumeTick(tick)

	if caps.hasOnTick {
		r.summary.OnTickCount++
		if err := r.call(agent, "OnTick", func() error {
			return agent.(TickHandler).OnTick(r.session, tick)
		}); err != nil {
			return err
		}
	}

	if len(rows) == 0 {
		return nil
	}
	return r.dispatchRows(agent, caps, rows)
}

// dispatchRows reports completed fills and other terminal transitions,
// then the post-fill account state. Simulated and venue-reported rows
// take the same path.
func (r *Runner) dispatchRows(agent Agent, caps capabilities, rows []*market.Order) error {
	if caps.hasOnUpdate {
		for _, row := range rows {
			r.summary.UpdateCount++
			row := row
			if err := r.call(agent, "OnUpdate", func() error {
				return agent.(UpdateHandler).OnUpdate(r.session, row)
			}); err != nil {
				return err
			}
		}
	}

	if caps.hasOnAccountUpdate {
		if err := r.call(agent, "OnAccountUpdate", func() error {
			return agent.(AccountHandler).OnAccountUpdate(r.session, r.session.Account())
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) consumeTick(tick market.Tick) []*market.Order {
	r.summary.TickCount++
	r.summary.EndTime = tick.Time
	return r.session.OnTick(tick)
}

func (r *Runner) callOnInit(agent Agent) error {
	r.summary.OnInitCount++
	return r.call(agent, "OnInit", func() error {
		return agent.(Initializer).OnInit(r.session)
	})
}

// call invokes one agent callback, converting both returned errors and
// panics into an AgentError.
func (r *Runner) call(agent Agent, op string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &AgentError{Agent: agent.Name(), Op: op, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	if cbErr := fn(); cbErr != nil {
		return &AgentError{Agent: agent.Name(), Op: op, Err: cbErr}
	}
	return nil
}

func (r *Runner) logCompletion() {
	sum := r.Summary()
	logger.Infof("Run %s: ticks=%d clocks=%d updates=%d profit=%.4f fee=%.4f net=%.4f",
		r.status, sum.TickCount, sum.OnClockCount, sum.UpdateCount,
		sum.Profit, sum.Fee, sum.TotalProfit)
}
