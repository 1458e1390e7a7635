package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/kenshin-labs/bushido-duel/internal/domain"
	"github.com/kenshin-labs/bushido-duel/internal/transport/peer"
)

// StateListener observes session transitions, including AwaitingPeer to
// Connected and Connected to Closed.
type StateListener func(s *Session, from, to domain.ConnectionState)

// Manager stands up or joins one two-party session at a time over a peer
// transport.
type Manager struct {
	transport peer.Transport

	mu      sync.Mutex
	current *Session

	listenersMu sync.Mutex
	listeners   []StateListener
}

func NewManager(transport peer.Transport) *Manager {
	return &Manager{transport: transport}
}

// CreateSession opens a room whose code is the transport's local id. The
// caller becomes Host and waits for exactly one guest.
func (m *Manager) CreateSession() (*Session, error) {
	m.mu.Lock()
	if m.busyLocked() {
		m.mu.Unlock()
		return nil, domain.ErrSessionActive
	}

	id, err := m.transport.LocalID()
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
	}

	s := newSession(m, id, domain.RoleHost, domain.StateAwaitingPeer)
	m.current = s
	m.transport.OnConnection(func(c peer.Conn) {
		m.accept(s, c)
	})
	m.mu.Unlock()

	log.Printf("[SESSION] Created room %s, awaiting peer", id)
	m.notify(s, domain.StateIdle, domain.StateAwaitingPeer)
	return s, nil
}

// JoinSession dials the host of room id. The caller becomes Guest. A failed
// join leaves the manager Idle.
func (m *Manager) JoinSession(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	if m.busyLocked() {
		m.mu.Unlock()
		return nil, domain.ErrSessionActive
	}

	localID, err := m.transport.LocalID()
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
	}
	if id == "" || id == localID {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q is not a remote room", domain.ErrPeerUnreachable, id)
	}

	s := newSession(m, id, domain.RoleGuest, domain.StateAwaitingPeer)
	m.current = s
	m.mu.Unlock()

	m.notify(s, domain.StateIdle, domain.StateAwaitingPeer)
	log.Printf("[SESSION] Joining room %s", id)

	conn, err := m.transport.Dial(ctx, id)
	if err != nil {
		m.release(s)
		s.reset()
		m.notify(s, domain.StateAwaitingPeer, domain.StateIdle)
		log.Printf("[SESSION] Join %s failed: %v", id, err)
		return nil, mapDialError(err)
	}

	if !s.attach(conn) {
		conn.Close()
		return nil, fmt.Errorf("%w: session left while joining", domain.ErrPeerUnreachable)
	}
	log.Printf("[SESSION] Joined room %s", id)
	m.notify(s, domain.StateAwaitingPeer, domain.StateConnected)
	return s, nil
}

func (m *Manager) OnConnectionStateChange(fn StateListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// LeaveSession closes the current session, if any, and returns the manager to
// Idle. It is safe to call in any state.
func (m *Manager) LeaveSession() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

// State reports the current session's state, or Idle when there is none.
// A session closed by the peer stays visible as Closed until LeaveSession.
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return domain.StateIdle
	}
	return s.State()
}

func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) busyLocked() bool {
	if m.current == nil {
		return false
	}
	state := m.current.State()
	return state == domain.StateAwaitingPeer || state == domain.StateConnected
}

func (m *Manager) accept(s *Session, c peer.Conn) {
	if !s.attach(c) {
		log.Printf("[SESSION] Refusing connection from %s: room %s is not accepting", c.RemoteID(), s.ID())
		c.Close()
		return
	}
	log.Printf("[SESSION] Peer %s joined room %s", c.RemoteID(), s.ID())
	m.notify(s, domain.StateAwaitingPeer, domain.StateConnected)
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == s {
		m.current = nil
	}
}

func (m *Manager) notify(s *Session, from, to domain.ConnectionState) {
	m.listenersMu.Lock()
	listeners := make([]StateListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(s, from, to)
	}
}

func mapDialError(err error) error {
	switch {
	case errors.Is(err, peer.ErrNotReady):
		return fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrPeerUnreachable, err)
	}
}
