package runner

import (
	"errors"
	"fmt"

	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/internal/session"
)

// ErrNoCallbacks is returned when an agent implements none of the event
// interfaces; running it would consume the stream and do nothing.
var ErrNoCallbacks = errors.New("agent implements no event callbacks")

// Agent is the minimal strategy contract. All event callbacks are
// optional and discovered by interface assertion, so a strategy only
// writes the handlers it needs.
type Agent interface {
	Name() string
}

// Initializer receives the session once, after the warm-up ticks have
// established both board edges and before any other callback.
type Initializer interface {
	OnInit(s *session.Session) error
}

// ClockHandler fires when the virtual clock crosses an interval
// boundary, before the boundary tick is applied to the session.
type ClockHandler interface {
	ClockIntervalSec() int64
	OnClock(s *session.Session, t market.MicroSec) error
}

// TickHandler fires for every tick, after the session has consumed it.
type TickHandler interface {
	OnTick(s *session.Session, tick market.Tick) error
}

// UpdateHandler fires once per accounting row an order fill produced.
type UpdateHandler interface {
	OnUpdate(s *session.Session, o *market.Order) error
}

// AccountHandler fires with the post-fill account snapshot.
type AccountHandler interface {
	OnAccountUpdate(s *session.Session, a market.AccountSnapshot) error
}

// capabilities records which callbacks an agent implements.
type capabilities struct {
	hasOnInit          bool
	hasOnClock         bool
	hasOnTick          bool
	hasOnUpdate        bool
	hasOnAccountUpdate bool
}

func capabilitiesOf(a Agent) (capabilities, error) {
	var c capabilities
	_, c.hasOnInit = a.(Initializer)
	_, c.hasOnClock = a.(ClockHandler)
	_, c.hasOnTick = a.(TickHandler)
	_, c.hasOnUpdate = a.(UpdateHandler)
	_, c.hasOnAccountUpdate = a.(AccountHandler)

	if !c.hasOnClock && !c.hasOnTick && !c.hasOnUpdate && !c.hasOnAccountUpdate {
		return c, fmt.Errorf("agent %q: %w", a.Name(), ErrNoCallbacks)
	}
	return c, nil
}

// AgentError wraps a failure raised inside an agent callback, including
// recovered panics. The run stops and the log written so far is kept.
type AgentError struct {
	Agent string
	Op    string
	Err   error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %s: %s: %v", e.Agent, e.Op, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}
