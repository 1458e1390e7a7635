// Package session implements the two-party session lifecycle: room
// creation, joining, connection state and the message channel the duel
// runs over.
package session

import (
	"fmt"
	"log"
	"sync"

	"github.com/kenshin-labs/bushido-duel/internal/domain"
	"github.com/kenshin-labs/bushido-duel/internal/transport/peer"
)

// Session is the explicit handle for one room. Matches and resolvers are
// built on it rather than on any shared connection state.
type Session struct {
	manager *Manager
	id      string
	role    domain.Role

	mu       sync.Mutex
	state    domain.ConnectionState
	conn     peer.Conn
	remoteID string
	handler  func([]byte)
	pending  [][]byte

	// deliverMu keeps handler invocations ordered
	deliverMu sync.Mutex
}

func newSession(m *Manager, id string, role domain.Role, state domain.ConnectionState) *Session {
	return &Session{manager: m, id: id, role: role, state: state}
}

// ID is the room code, identical on both sides.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) Role() domain.Role {
	return s.role
}

func (s *Session) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) RemoteID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID
}

func (s *Session) Send(payload []byte) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == domain.StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		return domain.ErrNotConnected
	}
	if err := conn.Send(payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotConnected, err)
	}
	return nil
}

// SetMessageHandler installs fn and replays any messages that arrived before
// it was set.
func (s *Session) SetMessageHandler(fn func([]byte)) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.handler = fn
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if fn == nil {
		return
	}
	for _, payload := range pending {
		fn(payload)
	}
}

// Close moves the session to Closed and closes the peer connection. The peer
// observes a close; no further message from this side reaches it.
func (s *Session) Close() error {
	s.manager.release(s)

	s.mu.Lock()
	if s.state == domain.StateClosed || s.state == domain.StateIdle {
		s.mu.Unlock()
		return nil
	}
	from := s.state
	s.state = domain.StateClosed
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	log.Printf("[SESSION] Left room %s", s.id)
	s.manager.notify(s, from, domain.StateClosed)
	return err
}

func (s *Session) attach(c peer.Conn) bool {
	s.mu.Lock()
	if s.state != domain.StateAwaitingPeer || s.conn != nil {
		s.mu.Unlock()
		return false
	}
	s.conn = c
	s.remoteID = c.RemoteID()
	s.state = domain.StateConnected
	s.mu.Unlock()

	c.Listen(peer.Events{
		OnMessage: s.deliver,
		OnClose:   s.remoteClosed,
		OnError: func(err error) {
			log.Printf("[SESSION] Transport error in room %s: %v", s.id, err)
		},
	})
	return true
}

// reset is used when a join fails before any connection existed.
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateAwaitingPeer {
		s.state = domain.StateIdle
	}
}

func (s *Session) deliver(payload []byte) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.state != domain.StateConnected {
		s.mu.Unlock()
		return
	}
	fn := s.handler
	if fn == nil {
		s.pending = append(s.pending, payload)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	fn(payload)
}

func (s *Session) remoteClosed() {
	s.mu.Lock()
	if s.state == domain.StateClosed {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.state = domain.StateClosed
	s.conn = nil
	s.mu.Unlock()

	log.Printf("[SESSION] Peer closed room %s", s.id)
	s.manager.notify(s, from, domain.StateClosed)
}
