package swarm

// EventKind identifies a progress event type.
type EventKind string

const (
	// EventAgentStatus is an advisory per-role status update.
	EventAgentStatus EventKind = "agent_status"
	// EventAgentDone carries a role's final output.
	EventAgentDone EventKind = "agent_done"
	// EventToken is one streamed synthesis token.
	EventToken EventKind = "token"
	// EventRoundStarted marks the start of a research round.
	EventRoundStarted EventKind = "round_started"
)

// Event is a typed progress notification. Workers publish events onto a
// per-run channel; a single consumer drains it and invokes the caller's
// callbacks, so callbacks are never invoked concurrently and tokens arrive
// in emission order.
type Event struct {
	Kind      EventKind
	Role      string
	Status    string
	Output    string
	Token     string
	Round     int
	MaxRounds int
	Subtopic  string
}

// Callbacks are the caller's optional progress hooks. All of them are
// advisory: a nil callback is skipped, and no callback is required for
// correctness.
type Callbacks struct {
	OnAgentStatus func(role, status string)
	OnAgentDone   func(role, output string)
	OnToken       func(token string)
	OnRound       func(round, maxRounds int, subtopic string)
}

// eventSink fans worker events into the caller's callbacks from a single
// goroutine.
type eventSink struct {
	ch   chan Event
	done chan struct{}
}

// newEventSink starts the consumer goroutine.
func newEventSink(cb Callbacks) *eventSink {
	s := &eventSink{
		ch:   make(chan Event, 1024),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for ev := range s.ch {
			switch ev.Kind {
			case EventAgentStatus:
				if cb.OnAgentStatus != nil {
					cb.OnAgentStatus(ev.Role, ev.Status)
				}
			case EventAgentDone:
				if cb.OnAgentDone != nil {
					cb.OnAgentDone(ev.Role, ev.Output)
				}
			case EventToken:
				if cb.OnToken != nil {
					cb.OnToken(ev.Token)
				}
			case EventRoundStarted:
				if cb.OnRound != nil {
					cb.OnRound(ev.Round, ev.MaxRounds, ev.Subtopic)
				}
			}
		}
	}()
	return s
}

// publish sends one event. Sends block only while the consumer catches up,
// which keeps per-source ordering without unbounded buffering.
func (s *eventSink) publish(ev Event) {
	s.ch <- ev
}

func (s *eventSink) status(role, status string) {
	s.publish(Event{Kind: EventAgentStatus, Role: role, Status: status})
}

func (s *eventSink) token(token string) {
	s.publish(Event{Kind: EventToken, Token: token})
}

// close stops the consumer after all published events are delivered.
func (s *eventSink) close() {
	close(s.ch)
	<-s.done
}
