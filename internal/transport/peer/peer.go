// Package peer defines the point-to-point transport the duel protocol runs
// on: a local identity that doubles as a room code, outbound dials, inbound
// connections and an ordered byte channel per connection.
package peer

import "context"

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrNotReady means the transport has not finished registering an identity.
	ErrNotReady Error = "transport not ready"
	// ErrPeerUnavailable means the remote id does not resolve to a live,
	// accepting peer.
	ErrPeerUnavailable Error = "peer unavailable"
	ErrClosed          Error = "connection closed"
)

// Events receives everything a connection observes. Handlers run on the
// connection's delivery path one at a time, in arrival order.
type Events struct {
	OnMessage func(payload []byte)
	// OnClose fires once when the remote end or the network closes the
	// connection. A local Close does not fire it.
	OnClose func()
	OnError func(err error)
}

// Conn is one established peer-to-peer connection.
type Conn interface {
	RemoteID() string
	// Listen starts delivery. Anything received before Listen is buffered
	// and replayed first.
	Listen(ev Events)
	Send(payload []byte) error
	// Close is idempotent.
	Close() error
}

// Transport is the local endpoint of a peer network.
type Transport interface {
	// LocalID returns ErrNotReady until the transport is registered.
	LocalID() (string, error)
	// OnConnection registers the handler for incoming connections. A
	// transport without a handler refuses incoming dials.
	OnConnection(fn func(Conn))
	Dial(ctx context.Context, remoteID string) (Conn, error)
	Close() error
}
