package event

// DefaultBufferSize is the capacity used for both the event and
// command channels when a caller doesn't specify one.
const DefaultBufferSize = 64

// Sender wraps a bounded event channel and delivers with a
// non-blocking try-send: if the channel is full the event is dropped
// rather than stalling the rally. A nil Sender is valid and silently
// discards every send, so agent backends can unconditionally call
// Send without a nil check when no caller registered a sender.
type Sender struct {
	ch chan<- Event
}

// NewSender wraps ch in a Sender.
func NewSender(ch chan<- Event) Sender {
	return Sender{ch: ch}
}

// Send attempts a non-blocking delivery of ev, reporting whether the
// event was accepted.
func (s Sender) Send(ev Event) bool {
	if s.ch == nil {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// NewChannel allocates a buffered RallyEvent channel of the given
// size (or DefaultBufferSize if size <= 0).
func NewChannel(size int) chan Event {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return make(chan Event, size)
}

// NewCommandChannel allocates a buffered OrchestratorCommand channel
// of the given size (or DefaultBufferSize if size <= 0).
func NewCommandChannel(size int) chan Command {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return make(chan Command, size)
}
