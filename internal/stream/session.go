package stream

import (
	"fmt"
	"sync"

	"github.com/himanishpuri/sonicres/pkg/logger"
)

// State is a session's lifecycle position. It only moves forward.
type State int32

const (
	StateOpen State = iota
	StateFinalizing
	StateProcessing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateFinalizing:
		return "FINALIZING"
	case StateProcessing:
		return "PROCESSING"
	case StateTerminated:
		return "TERMINATED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Session is one connection's capture state.
type Session struct {
	ID   string
	conn Conn
	log  *logger.Logger

	// buffer is nil when it could not be created; bufErr says why.
	buffer *Buffer
	bufErr error

	mu      sync.Mutex
	state   State
	endOnce sync.Once
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Advance moves the session to next and reports whether it did. Moving
// backwards or out of TERMINATED is refused.
func (s *Session) Advance(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next <= s.state {
		return false
	}
	s.state = next
	return true
}
