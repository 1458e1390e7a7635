package peer

import (
	"context"
	"sync"

	"github.com/kenshin-labs/bushido-duel/pkg/uid"
)

// Network is an in-process peer network. Delivery is synchronous: Send
// returns after the remote handler has run.
type Network struct {
	mu         sync.Mutex
	transports map[string]*MemoryTransport
}

func NewNetwork() *Network {
	return &Network{transports: make(map[string]*MemoryTransport)}
}

// NewTransport attaches a ready transport to the network.
func (n *Network) NewTransport() *MemoryTransport {
	t := n.NewPendingTransport()
	t.MarkReady()
	return t
}

// NewPendingTransport attaches a transport that reports ErrNotReady until
// MarkReady is called.
func (n *Network) NewPendingTransport() *MemoryTransport {
	t := &MemoryTransport{
		network: n,
		id:      uid.NewPeerID(),
		conns:   make(map[*memConn]struct{}),
	}
	n.mu.Lock()
	n.transports[t.id] = t
	n.mu.Unlock()
	return t
}

func (n *Network) lookup(id string) *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.transports[id]
}

func (n *Network) remove(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.transports, id)
}

type MemoryTransport struct {
	network *Network
	id      string

	mu     sync.Mutex
	ready  bool
	closed bool
	onConn func(Conn)
	conns  map[*memConn]struct{}
}

func (t *MemoryTransport) MarkReady() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ready = true
}

func (t *MemoryTransport) LocalID() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready || t.closed {
		return "", ErrNotReady
	}
	return t.id, nil
}

func (t *MemoryTransport) OnConnection(fn func(Conn)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConn = fn
}

func (t *MemoryTransport) Dial(ctx context.Context, remoteID string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	localID, err := t.LocalID()
	if err != nil {
		return nil, err
	}

	remote := t.network.lookup(remoteID)
	if remote == nil || remote == t {
		return nil, ErrPeerUnavailable
	}
	remote.mu.Lock()
	accept := remote.onConn
	if remote.closed || !remote.ready || accept == nil {
		remote.mu.Unlock()
		return nil, ErrPeerUnavailable
	}
	remote.mu.Unlock()

	local := &memConn{owner: t, remoteID: remoteID}
	inbound := &memConn{owner: remote, remoteID: localID}
	local.peer, inbound.peer = inbound, local
	t.track(local)
	remote.track(inbound)

	accept(inbound)

	// the host closed the connection while accepting: refused
	if local.isClosed() {
		return nil, ErrPeerUnavailable
	}
	return local, nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conns := make([]*memConn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	t.network.remove(t.id)
	for _, c := range conns {
		c.Close()
	}
	return nil
}

func (t *MemoryTransport) track(c *memConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c] = struct{}{}
}

func (t *MemoryTransport) forget(c *memConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, c)
}

type memConn struct {
	owner    *MemoryTransport
	remoteID string
	peer     *memConn
	box      Mailbox
}

func (c *memConn) RemoteID() string {
	return c.remoteID
}

func (c *memConn) Listen(ev Events) {
	c.box.Listen(ev)
}

func (c *memConn) Send(payload []byte) error {
	if c.box.Closed() {
		return ErrClosed
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.peer.box.Deliver(buf)
	return nil
}

func (c *memConn) Close() error {
	if !c.box.Shut() {
		return nil
	}
	c.owner.forget(c)
	c.peer.hangup()
	return nil
}

func (c *memConn) isClosed() bool {
	return c.box.Closed()
}

func (c *memConn) hangup() {
	if c.box.Hangup() {
		c.owner.forget(c)
	}
}
