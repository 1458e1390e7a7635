package websocket

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kenshin-labs/bushido-duel/internal/transport/peer"
	"github.com/kenshin-labs/bushido-duel/pkg/uid"
)

const (
	defaultMaxRetries = 5
	defaultBackoff    = time.Second
	openTimeout       = 10 * time.Second
)

var errSignalLost = fmt.Errorf("%w: signalling connection lost", peer.ErrPeerUnavailable)

// Transport is a peer.Transport that reaches other peers through a relay.
// It connects in the background; LocalID reports peer.ErrNotReady until the
// relay has assigned an id.
type Transport struct {
	url        string
	dialer     *websocket.Dialer
	maxRetries int
	backoff    time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	id       string
	token    string
	refusals int // consecutive unavailable-id refusals of token
	ready    bool
	closed   bool
	onConn   func(peer.Conn)
	links    map[string]*Conn
	dials    map[string]chan dialResult

	writeMu sync.Mutex

	readyOnce sync.Once
	readyCh   chan struct{}
	failOnce  sync.Once
	failCh    chan struct{}
	failErr   error
	done      chan struct{}
}

type dialResult struct {
	conn *Conn
	err  error
}

type Option func(*Transport)

// WithRetry bounds reconnection attempts; the wait grows linearly by backoff.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(t *Transport) {
		t.maxRetries = maxRetries
		t.backoff = backoff
	}
}

// NewTransport starts connecting to the relay at rawURL.
func NewTransport(rawURL string, opts ...Option) *Transport {
	t := &Transport{
		url:        rawURL,
		dialer:     websocket.DefaultDialer,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		links:      make(map[string]*Conn),
		dials:      make(map[string]chan dialResult),
		readyCh:    make(chan struct{}),
		failCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.run()
	return t
}

// Ready blocks until the relay has assigned an id, the transport gave up, or
// ctx ends.
func (t *Transport) Ready(ctx context.Context) error {
	select {
	case <-t.readyCh:
		return nil
	case <-t.failCh:
		return t.failErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) LocalID() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready || t.closed {
		return "", peer.ErrNotReady
	}
	return t.id, nil
}

func (t *Transport) OnConnection(fn func(peer.Conn)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConn = fn
}

func (t *Transport) Dial(ctx context.Context, remoteID string) (peer.Conn, error) {
	localID, err := t.LocalID()
	if err != nil {
		return nil, err
	}
	if remoteID == localID {
		return nil, peer.ErrPeerUnavailable
	}

	link := uid.NewLinkID()
	ch := make(chan dialResult, 1)
	t.mu.Lock()
	t.dials[link] = ch
	t.mu.Unlock()

	if err := t.write(Frame{Type: FrameConnect, Dst: remoteID, Link: link}); err != nil {
		t.takeDial(link)
		return nil, fmt.Errorf("%w: %v", peer.ErrPeerUnavailable, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.conn, nil
	case <-ctx.Done():
		if t.takeDial(link) != nil {
			t.write(Frame{Type: FrameClose, Dst: remoteID, Link: link})
			return nil, ctx.Err()
		}
		// the handshake finished while we were giving up
		res := <-ch
		if res.conn != nil {
			res.conn.Close()
		}
		return nil, ctx.Err()
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.ready = false
	conn := t.conn
	t.conn = nil
	links := t.links
	t.links = make(map[string]*Conn)
	dials := t.dials
	t.dials = make(map[string]chan dialResult)
	t.mu.Unlock()

	close(t.done)
	for _, c := range links {
		c.box.Shut()
	}
	for _, ch := range dials {
		ch <- dialResult{err: peer.ErrClosed}
	}
	if conn != nil {
		t.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		t.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

func (t *Transport) run() {
	attempt := 0
	for {
		conn, err := t.connect()
		if err != nil {
			attempt++
			if t.isClosed() {
				return
			}
			if attempt > t.maxRetries {
				log.Printf("[WS] Giving up on relay %s: %v", t.url, err)
				t.fail(err)
				return
			}
			log.Printf("[WS] Relay connection failed (attempt %d): %v", attempt, err)
			select {
			case <-t.done:
				return
			case <-time.After(time.Duration(attempt) * t.backoff):
			}
			continue
		}

		attempt = 0
		t.serve(conn)
		if t.isClosed() {
			return
		}
		log.Printf("[WS] Relay connection lost, reconnecting")
	}
}

// connect dials the relay and waits for OPEN.
func (t *Transport) connect() (*websocket.Conn, error) {
	u, err := url.Parse(t.url)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	token := t.token
	t.mu.Unlock()
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	conn, _, err := t.dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(openTimeout))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})

	if f.Type == FrameError {
		conn.Close()
		if f.Kind == KindUnavailableID {
			// the relay may still hold our previous socket; retry the token once
			t.mu.Lock()
			t.refusals++
			if t.refusals > 1 {
				t.token = ""
				t.refusals = 0
			}
			t.mu.Unlock()
		}
		return nil, fmt.Errorf("relay refused registration: %s (%s)", f.Message, f.Kind)
	}
	if f.Type != FrameOpen || f.ID == "" {
		conn.Close()
		return nil, fmt.Errorf("relay sent %s before OPEN", f.Type)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return nil, peer.ErrClosed
	}
	if t.id != "" && t.id != f.ID {
		log.Printf("[WS] Relay assigned a new id %s (was %s)", f.ID, t.id)
	}
	t.conn = conn
	t.id = f.ID
	t.token = f.Token
	t.refusals = 0
	t.ready = true
	t.mu.Unlock()

	t.readyOnce.Do(func() { close(t.readyCh) })
	log.Printf("[WS] Registered with relay as %s", f.ID)
	return conn, nil
}

func (t *Transport) serve(conn *websocket.Conn) {
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if !t.isClosed() {
				log.Printf("[WS] Relay read error: %v", err)
			}
			break
		}
		t.handle(f)
	}
	t.disconnected(conn)
}

func (t *Transport) handle(f Frame) {
	switch f.Type {
	case FrameConnect:
		t.incoming(f)

	case FrameAccept:
		ch := t.takeDial(f.Link)
		if ch == nil {
			return
		}
		c := newConn(t, f.Link, f.Src, true)
		t.track(c)
		ch <- dialResult{conn: c}

	case FrameData:
		if c := t.link(f.Link); c != nil {
			c.box.Deliver(f.Payload)
		}

	case FrameClose:
		if ch := t.takeDial(f.Link); ch != nil {
			ch <- dialResult{err: fmt.Errorf("%w: connection refused", peer.ErrPeerUnavailable)}
			return
		}
		if c := t.untrack(f.Link); c != nil {
			c.box.Hangup()
		}

	case FrameError:
		err := fmt.Errorf("relay error %s: %s", f.Kind, f.Message)
		if ch := t.takeDial(f.Link); ch != nil {
			if f.Kind == KindPeerUnavailable {
				err = fmt.Errorf("%w: %s", peer.ErrPeerUnavailable, f.Message)
			}
			ch <- dialResult{err: err}
			return
		}
		if c := t.link(f.Link); c != nil {
			c.box.Fail(err)
			return
		}
		log.Printf("[WS] %v", err)
	}
}

// incoming answers a CONNECT: the handler sees the connection first and may
// refuse it by closing; otherwise it is accepted.
func (t *Transport) incoming(f Frame) {
	t.mu.Lock()
	handler := t.onConn
	t.mu.Unlock()

	if handler == nil {
		t.write(Frame{Type: FrameClose, Dst: f.Src, Link: f.Link})
		return
	}

	c := newConn(t, f.Link, f.Src, false)
	t.track(c)
	handler(c)
	if c.box.Closed() {
		return
	}
	if err := t.write(Frame{Type: FrameAccept, Dst: f.Src, Link: f.Link}); err != nil {
		log.Printf("[WS] Failed to accept %s: %v", f.Src, err)
		return
	}
	c.open()
}

func (t *Transport) disconnected(conn *websocket.Conn) {
	conn.Close()

	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
		t.ready = false
	}
	links := t.links
	t.links = make(map[string]*Conn)
	dials := t.dials
	t.dials = make(map[string]chan dialResult)
	t.mu.Unlock()

	for _, ch := range dials {
		ch <- dialResult{err: errSignalLost}
	}
	for _, c := range links {
		c.box.Hangup()
	}
}

func (t *Transport) write(f Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return peer.ErrNotReady
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}

func (t *Transport) fail(err error) {
	t.failOnce.Do(func() {
		t.failErr = fmt.Errorf("%w: %v", peer.ErrNotReady, err)
		close(t.failCh)
	})
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) takeDial(link string) chan dialResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.dials[link]
	if !ok {
		return nil
	}
	delete(t.dials, link)
	return ch
}

func (t *Transport) track(c *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.links[c.link] = c
}

func (t *Transport) untrack(link string) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.links[link]
	if !ok {
		return nil
	}
	delete(t.links, link)
	return c
}

func (t *Transport) link(link string) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.links[link]
}

// Conn is one relayed link.
type Conn struct {
	t        *Transport
	link     string
	remoteID string
	box      peer.Mailbox

	mu     sync.Mutex
	opened bool
	outbox [][]byte
}

func newConn(t *Transport, link, remoteID string, opened bool) *Conn {
	return &Conn{t: t, link: link, remoteID: remoteID, opened: opened}
}

func (c *Conn) RemoteID() string {
	return c.remoteID
}

func (c *Conn) Listen(ev peer.Events) {
	c.box.Listen(ev)
}

// Send queues payload until the link is accepted, then writes in order.
func (c *Conn) Send(payload []byte) error {
	if c.box.Closed() {
		return peer.ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		c.outbox = append(c.outbox, buf)
		return nil
	}
	if err := c.t.write(Frame{Type: FrameData, Dst: c.remoteID, Link: c.link, Payload: payload}); err != nil {
		if errors.Is(err, peer.ErrNotReady) {
			return peer.ErrClosed
		}
		return err
	}
	return nil
}

func (c *Conn) Close() error {
	if !c.box.Shut() {
		return nil
	}
	c.t.untrack(c.link)
	err := c.t.write(Frame{Type: FrameClose, Dst: c.remoteID, Link: c.link})
	if errors.Is(err, peer.ErrNotReady) {
		return nil
	}
	return err
}

func (c *Conn) open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = true
	for _, payload := range c.outbox {
		if err := c.t.write(Frame{Type: FrameData, Dst: c.remoteID, Link: c.link, Payload: payload}); err != nil {
			log.Printf("[WS] Failed to flush link %s: %v", c.link, err)
			break
		}
	}
	c.outbox = nil
}
