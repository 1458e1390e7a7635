package peer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryDialAndExchange(t *testing.T) {
	net := NewNetwork()
	host := net.NewTransport()
	guest := net.NewTransport()

	hostID, err := host.LocalID()
	require.NoError(t, err)

	var inbound Conn
	var hostGot [][]byte
	host.OnConnection(func(c Conn) {
		inbound = c
		c.Listen(Events{OnMessage: func(p []byte) { hostGot = append(hostGot, p) }})
	})

	out, err := guest.Dial(context.Background(), hostID)
	require.NoError(t, err)
	require.Equal(t, hostID, out.RemoteID())

	guestID, _ := guest.LocalID()
	require.Equal(t, guestID, inbound.RemoteID())

	require.NoError(t, out.Send([]byte("one")))
	require.NoError(t, out.Send([]byte("two")))
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, hostGot)
}

func TestMemoryBuffersUntilListen(t *testing.T) {
	net := NewNetwork()
	host := net.NewTransport()
	guest := net.NewTransport()
	hostID, _ := host.LocalID()

	var inbound Conn
	host.OnConnection(func(c Conn) { inbound = c })

	out, err := guest.Dial(context.Background(), hostID)
	require.NoError(t, err)
	require.NoError(t, out.Send([]byte("early")))
	require.NoError(t, out.Close())

	var got []string
	closed := false
	inbound.Listen(Events{
		OnMessage: func(p []byte) { got = append(got, string(p)) },
		OnClose:   func() { closed = true },
	})
	require.Equal(t, []string{"early"}, got)
	require.True(t, closed)
}

func TestMemoryDialErrors(t *testing.T) {
	net := NewNetwork()
	pending := net.NewPendingTransport()
	_, err := pending.LocalID()
	require.ErrorIs(t, err, ErrNotReady)
	_, err = pending.Dial(context.Background(), "anyone")
	require.ErrorIs(t, err, ErrNotReady)

	pending.MarkReady()
	_, err = pending.Dial(context.Background(), "no-such-peer")
	require.ErrorIs(t, err, ErrPeerUnavailable)

	// a transport without a connection handler refuses dials
	quiet := net.NewTransport()
	quietID, _ := quiet.LocalID()
	_, err = pending.Dial(context.Background(), quietID)
	require.ErrorIs(t, err, ErrPeerUnavailable)

	selfID, _ := pending.LocalID()
	pending.OnConnection(func(Conn) {})
	_, err = pending.Dial(context.Background(), selfID)
	require.ErrorIs(t, err, ErrPeerUnavailable)

	// refused while accepting
	busy := net.NewTransport()
	busy.OnConnection(func(c Conn) { c.Close() })
	busyID, _ := busy.LocalID()
	_, err = pending.Dial(context.Background(), busyID)
	require.ErrorIs(t, err, ErrPeerUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pending.Dial(ctx, busyID)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryCloseNotifiesOnlyRemote(t *testing.T) {
	net := NewNetwork()
	host := net.NewTransport()
	guest := net.NewTransport()
	hostID, _ := host.LocalID()

	hostClosed := 0
	host.OnConnection(func(c Conn) {
		c.Listen(Events{OnClose: func() { hostClosed++ }})
	})

	out, err := guest.Dial(context.Background(), hostID)
	require.NoError(t, err)
	guestClosed := 0
	out.Listen(Events{OnClose: func() { guestClosed++ }})

	require.NoError(t, out.Close())
	require.NoError(t, out.Close())
	require.Equal(t, 1, hostClosed)
	require.Equal(t, 0, guestClosed)
	require.ErrorIs(t, out.Send([]byte("late")), ErrClosed)
}

func TestMemoryTransportCloseHangsUpConnections(t *testing.T) {
	net := NewNetwork()
	host := net.NewTransport()
	guest := net.NewTransport()
	hostID, _ := host.LocalID()
	host.OnConnection(func(c Conn) { c.Listen(Events{}) })

	out, err := guest.Dial(context.Background(), hostID)
	require.NoError(t, err)
	closed := false
	out.Listen(Events{OnClose: func() { closed = true }})

	require.NoError(t, host.Close())
	require.True(t, closed)

	_, err = host.LocalID()
	require.ErrorIs(t, err, ErrNotReady)
	_, err = guest.Dial(context.Background(), hostID)
	require.ErrorIs(t, err, ErrPeerUnavailable)
}
