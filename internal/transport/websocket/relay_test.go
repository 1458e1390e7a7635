package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/kenshin-labs/bushido-duel/internal/transport/peer"
)

const testSecret = "relay-test-secret"

func newRelayServer(t *testing.T, reservationTTL time.Duration) (*Relay, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	relay := NewRelay(testSecret, time.Hour, reservationTTL)
	router := gin.New()
	router.GET("/peer", NewHandler(relay, nil).HandleWebSocket)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return relay, "ws" + strings.TrimPrefix(srv.URL, "http") + "/peer"
}

func dialRaw(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func openRaw(t *testing.T, url string) (*websocket.Conn, Frame) {
	t.Helper()
	conn := dialRaw(t, url)
	open := readFrame(t, conn)
	require.Equal(t, FrameOpen, open.Type)
	require.NotEmpty(t, open.ID)
	require.NotEmpty(t, open.Token)
	return conn, open
}

func newClient(t *testing.T, url string) *Transport {
	t.Helper()
	tr := NewTransport(url, WithRetry(2, 10*time.Millisecond))
	t.Cleanup(func() { tr.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Ready(ctx))
	return tr
}

type recorder struct {
	messages chan []byte
	closed   chan struct{}
}

func listen(c peer.Conn) *recorder {
	r := &recorder{messages: make(chan []byte, 16), closed: make(chan struct{})}
	c.Listen(peer.Events{
		OnMessage: func(p []byte) { r.messages <- p },
		OnClose:   func() { close(r.closed) },
	})
	return r
}

func (r *recorder) next(t *testing.T) string {
	t.Helper()
	select {
	case p := <-r.messages:
		return string(p)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return ""
	}
}

func (r *recorder) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-r.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("link was not closed")
	}
}

func TestRelayAssignsDistinctIDs(t *testing.T) {
	relay, url := newRelayServer(t, time.Minute)

	_, a := openRaw(t, url)
	_, b := openRaw(t, url)

	require.NotEqual(t, a.ID, b.ID)
	require.True(t, relay.IsOnline(a.ID))
	require.Equal(t, 2, relay.Stats().Peers)
}

func TestRelayReclaimsIDWithToken(t *testing.T) {
	relay, url := newRelayServer(t, time.Minute)

	conn, open := openRaw(t, url)
	conn.Close()
	require.Eventually(t, func() bool { return !relay.IsOnline(open.ID) }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, relay.Stats().Reservations)

	_, again := openRaw(t, url+"?token="+open.Token)
	require.Equal(t, open.ID, again.ID)
	require.Equal(t, 0, relay.Stats().Reservations)
}

func TestRelayReclaimAfterReservationLapses(t *testing.T) {
	relay, url := newRelayServer(t, 50*time.Millisecond)

	conn, open := openRaw(t, url)
	conn.Close()
	require.Eventually(t, func() bool { return !relay.IsOnline(open.ID) }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, relay.PruneReservations(time.Now()))

	_, again := openRaw(t, url+"?token="+open.Token)
	require.NotEqual(t, open.ID, again.ID)
	require.False(t, relay.IsOnline(open.ID))
}

func TestRelayExpiredReservationIsNotHonouredBeforePrune(t *testing.T) {
	relay, url := newRelayServer(t, 50*time.Millisecond)

	conn, open := openRaw(t, url)
	conn.Close()
	require.Eventually(t, func() bool { return !relay.IsOnline(open.ID) }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	_, again := openRaw(t, url+"?token="+open.Token)
	require.NotEqual(t, open.ID, again.ID)
	require.Equal(t, 0, relay.Stats().Reservations)
}

func TestRelayWithoutReservationsNeverReclaims(t *testing.T) {
	relay, url := newRelayServer(t, 0)

	conn, open := openRaw(t, url)
	conn.Close()
	require.Eventually(t, func() bool { return !relay.IsOnline(open.ID) }, 2*time.Second, 10*time.Millisecond)

	_, again := openRaw(t, url+"?token="+open.Token)
	require.NotEqual(t, open.ID, again.ID)
}

func TestRelayRefusesLiveID(t *testing.T) {
	_, url := newRelayServer(t, time.Minute)

	_, open := openRaw(t, url)

	dup := dialRaw(t, url+"?token="+open.Token)
	f := readFrame(t, dup)
	require.Equal(t, FrameError, f.Type)
	require.Equal(t, KindUnavailableID, f.Kind)
}

func TestRelayIgnoresForgedToken(t *testing.T) {
	_, url := newRelayServer(t, time.Minute)

	_, open := openRaw(t, url+"?token=forged")
	require.NotEmpty(t, open.ID)
}

func TestRelayConnectToUnknownPeer(t *testing.T) {
	_, url := newRelayServer(t, time.Minute)
	conn, _ := openRaw(t, url)

	require.NoError(t, conn.WriteJSON(Frame{Type: FrameConnect, Dst: "nobody", Link: "l1"}))
	f := readFrame(t, conn)
	require.Equal(t, FrameError, f.Type)
	require.Equal(t, KindPeerUnavailable, f.Kind)
	require.Equal(t, "l1", f.Link)
}

func TestRelayForwardsOnlyAcceptedLinks(t *testing.T) {
	_, url := newRelayServer(t, time.Minute)
	a, _ := openRaw(t, url)
	b, bOpen := openRaw(t, url)

	require.NoError(t, a.WriteJSON(Frame{Type: FrameConnect, Dst: bOpen.ID, Link: "l1"}))
	connect := readFrame(t, b)
	require.Equal(t, FrameConnect, connect.Type)

	require.NoError(t, a.WriteJSON(Frame{Type: FrameData, Link: "l1", Payload: []byte("early")}))
	f := readFrame(t, a)
	require.Equal(t, FrameError, f.Type)
	require.Equal(t, KindNetwork, f.Kind)

	require.NoError(t, b.WriteJSON(Frame{Type: FrameAccept, Link: "l1"}))
	require.Equal(t, FrameAccept, readFrame(t, a).Type)

	require.NoError(t, a.WriteJSON(Frame{Type: FrameData, Link: "l1", Payload: []byte("hi")}))
	data := readFrame(t, b)
	require.Equal(t, FrameData, data.Type)
	require.Equal(t, "hi", string(data.Payload))
	require.Equal(t, connect.Src, data.Src)
}

func TestRelayRejectsInvalidFrame(t *testing.T) {
	_, url := newRelayServer(t, time.Minute)
	conn, _ := openRaw(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	f := readFrame(t, conn)
	require.Equal(t, FrameError, f.Type)
	require.Equal(t, KindInvalidFrame, f.Kind)
}

func TestRelayPruneReservations(t *testing.T) {
	relay, url := newRelayServer(t, time.Minute)

	conn, open := openRaw(t, url)
	conn.Close()
	require.Eventually(t, func() bool { return !relay.IsOnline(open.ID) }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 0, relay.PruneReservations(time.Now()))
	require.Equal(t, 1, relay.PruneReservations(time.Now().Add(time.Hour)))
	require.Equal(t, 0, relay.Stats().Reservations)
}

func TestRelayPruneLinks(t *testing.T) {
	relay, url := newRelayServer(t, time.Minute)
	a, _ := openRaw(t, url)
	b, bOpen := openRaw(t, url)

	require.NoError(t, a.WriteJSON(Frame{Type: FrameConnect, Dst: bOpen.ID, Link: "stale"}))
	require.Equal(t, FrameConnect, readFrame(t, b).Type)
	require.Equal(t, 1, relay.Stats().Links)

	require.Equal(t, 0, relay.PruneLinks(time.Now(), time.Minute))
	require.Equal(t, 1, relay.PruneLinks(time.Now().Add(time.Hour), time.Minute))
	require.Equal(t, 0, relay.Stats().Links)

	require.Equal(t, FrameClose, readFrame(t, a).Type)
	require.Equal(t, FrameClose, readFrame(t, b).Type)
}

func TestTransportExchange(t *testing.T) {
	_, url := newRelayServer(t, time.Minute)
	host := newClient(t, url)
	guest := newClient(t, url)

	accepted := make(chan peer.Conn, 1)
	host.OnConnection(func(c peer.Conn) { accepted <- c })

	hostID, err := host.LocalID()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := guest.Dial(ctx, hostID)
	require.NoError(t, err)
	require.Equal(t, hostID, out.RemoteID())
	guestSide := listen(out)

	var in peer.Conn
	select {
	case in = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("host never saw the connection")
	}
	hostSide := listen(in)

	require.NoError(t, out.Send([]byte("hello")))
	require.Equal(t, "hello", hostSide.next(t))

	require.NoError(t, in.Send([]byte("welcome")))
	require.Equal(t, "welcome", guestSide.next(t))

	require.NoError(t, out.Close())
	hostSide.waitClosed(t)
	require.ErrorIs(t, out.Send([]byte("late")), peer.ErrClosed)
}

func TestTransportDialErrors(t *testing.T) {
	_, url := newRelayServer(t, time.Minute)
	guest := newClient(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := guest.Dial(ctx, "nobody")
	require.ErrorIs(t, err, peer.ErrPeerUnavailable)

	self, err := guest.LocalID()
	require.NoError(t, err)
	_, err = guest.Dial(ctx, self)
	require.ErrorIs(t, err, peer.ErrPeerUnavailable)
}

func TestTransportHostRefusesConnection(t *testing.T) {
	_, url := newRelayServer(t, time.Minute)
	host := newClient(t, url)
	guest := newClient(t, url)

	host.OnConnection(func(c peer.Conn) { c.Close() })
	hostID, _ := host.LocalID()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := guest.Dial(ctx, hostID)
	require.ErrorIs(t, err, peer.ErrPeerUnavailable)
}

func TestTransportCloseHangsUpRemote(t *testing.T) {
	_, url := newRelayServer(t, time.Minute)
	host := newClient(t, url)
	guest := newClient(t, url)

	accepted := make(chan *recorder, 1)
	host.OnConnection(func(c peer.Conn) { accepted <- listen(c) })
	hostID, _ := host.LocalID()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := guest.Dial(ctx, hostID)
	require.NoError(t, err)

	hostSide := <-accepted
	require.NoError(t, guest.Close())
	hostSide.waitClosed(t)

	_, err = guest.LocalID()
	require.ErrorIs(t, err, peer.ErrNotReady)
}

func TestTransportNotReadyBeforeOpen(t *testing.T) {
	tr := NewTransport("ws://127.0.0.1:1/peer", WithRetry(0, time.Millisecond))
	defer tr.Close()

	_, err := tr.LocalID()
	require.ErrorIs(t, err, peer.ErrNotReady)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.ErrorIs(t, tr.Ready(ctx), peer.ErrNotReady)
}

func TestTransportReconnectsWithSameID(t *testing.T) {
	relay, url := newRelayServer(t, time.Minute)
	host := NewTransport(url, WithRetry(5, 50*time.Millisecond))
	t.Cleanup(func() { host.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, host.Ready(ctx))
	guest := newClient(t, url)

	accepted := make(chan *recorder, 1)
	host.OnConnection(func(c peer.Conn) { accepted <- listen(c) })
	hostID, err := host.LocalID()
	require.NoError(t, err)

	out, err := guest.Dial(ctx, hostID)
	require.NoError(t, err)
	guestSide := listen(out)
	hostSide := <-accepted

	relay.mu.RLock()
	relay.peers[hostID].conn.Close()
	relay.mu.RUnlock()

	hostSide.waitClosed(t)
	guestSide.waitClosed(t)

	require.Eventually(t, func() bool {
		id, err := host.LocalID()
		return err == nil && id == hostID
	}, 3*time.Second, 10*time.Millisecond)
	require.True(t, relay.IsOnline(hostID))

	// the reclaimed id is reachable again
	_, err = guest.Dial(ctx, hostID)
	require.NoError(t, err)
}

func TestTransportGivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		http.Error(w, "relay down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr := NewTransport("ws"+strings.TrimPrefix(srv.URL, "http"), WithRetry(2, 5*time.Millisecond))
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := tr.Ready(ctx)
	require.ErrorIs(t, err, peer.ErrNotReady)
	require.EqualValues(t, 3, attempts.Load())

	_, err = tr.LocalID()
	require.ErrorIs(t, err, peer.ErrNotReady)
}
