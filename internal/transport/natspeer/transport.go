// Package natspeer carries duel links over a NATS server. Each peer listens
// on its own connect subject; link traffic flows on per-link subjects.
package natspeer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kenshin-labs/bushido-duel/internal/transport/peer"
	"github.com/kenshin-labs/bushido-duel/pkg/uid"
)

const (
	subjectPrefix = "duel"

	headerFrame = "Duel-Frame"
	headerLink  = "Duel-Link"
	headerPeer  = "Duel-Peer"

	frameAccept = "accept"
	frameRefuse = "refuse"
	frameClose  = "close"
)

func connectSubject(peerID string) string {
	return subjectPrefix + ".peer." + peerID + ".connect"
}

func linkSubject(link, receiverID string) string {
	return subjectPrefix + ".link." + link + "." + receiverID
}

// parseLinkSubject extracts the link id from a subject built by linkSubject.
func parseLinkSubject(subject string) (string, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) != 4 || parts[0] != subjectPrefix || parts[1] != "link" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// Transport is a peer.Transport over NATS.
type Transport struct {
	nc      *nats.Conn
	ownConn bool
	id      string

	mu      sync.Mutex
	closed  bool
	onConn  func(peer.Conn)
	links   map[string]*Conn
	connSub *nats.Subscription
	linkSub *nats.Subscription
}

// Connect dials the NATS server at url and starts a transport that owns the
// connection.
func Connect(url string) (*Transport, error) {
	nc, err := nats.Connect(url,
		nats.Name("bushido-duel"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[NATS] Disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] Reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", peer.ErrNotReady, err)
	}
	t, err := NewTransport(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}
	t.ownConn = true
	return t, nil
}

// NewTransport registers a fresh peer id on nc.
func NewTransport(nc *nats.Conn) (*Transport, error) {
	t := &Transport{
		nc:    nc,
		id:    uid.NewPeerID(),
		links: make(map[string]*Conn),
	}

	var err error
	t.connSub, err = nc.Subscribe(connectSubject(t.id), t.handleConnect)
	if err != nil {
		return nil, err
	}
	t.linkSub, err = nc.Subscribe(linkSubject("*", t.id), t.handleLink)
	if err != nil {
		t.connSub.Unsubscribe()
		return nil, err
	}
	// make sure the server has our interest before we hand out the id
	if err := nc.Flush(); err != nil {
		t.connSub.Unsubscribe()
		t.linkSub.Unsubscribe()
		return nil, err
	}
	log.Printf("[NATS] Registered peer %s", t.id)
	return t, nil
}

func (t *Transport) LocalID() (string, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed || !t.nc.IsConnected() {
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
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	localID, err := t.LocalID()
	if err != nil {
		return nil, err
	}
	if remoteID == "" || remoteID == localID || strings.ContainsAny(remoteID, ".*> ") {
		return nil, peer.ErrPeerUnavailable
	}

	// track first so frames racing the reply are buffered
	c := &Conn{t: t, link: uid.NewLinkID(), remoteID: remoteID}
	t.track(c)

	req := nats.NewMsg(connectSubject(remoteID))
	req.Header.Set(headerLink, c.link)
	req.Header.Set(headerPeer, localID)

	resp, err := t.nc.RequestMsgWithContext(ctx, req)
	if err != nil {
		t.untrack(c.link)
		c.box.Shut()
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("%w: %s is not listening", peer.ErrPeerUnavailable, remoteID)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.publishClose()
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", peer.ErrPeerUnavailable, err)
	}
	if resp.Header.Get(headerFrame) != frameAccept {
		t.untrack(c.link)
		c.box.Shut()
		return nil, fmt.Errorf("%w: connection refused", peer.ErrPeerUnavailable)
	}
	return c, nil
}

// Close hangs up every link and releases the subscriptions.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	links := t.links
	t.links = make(map[string]*Conn)
	t.mu.Unlock()

	for _, c := range links {
		if c.box.Shut() {
			c.publishClose()
		}
	}
	t.connSub.Unsubscribe()
	t.linkSub.Unsubscribe()

	if t.ownConn {
		return t.nc.Drain()
	}
	return t.nc.Flush()
}

func (t *Transport) handleConnect(m *nats.Msg) {
	link := m.Header.Get(headerLink)
	remoteID := m.Header.Get(headerPeer)

	t.mu.Lock()
	handler := t.onConn
	closed := t.closed
	t.mu.Unlock()

	if closed || handler == nil || link == "" || remoteID == "" {
		t.reply(m, frameRefuse)
		return
	}

	c := &Conn{t: t, link: link, remoteID: remoteID}
	t.track(c)
	handler(c)
	if c.box.Closed() {
		t.untrack(link)
		t.reply(m, frameRefuse)
		return
	}
	t.reply(m, frameAccept)
}

func (t *Transport) reply(m *nats.Msg, frame string) {
	resp := nats.NewMsg(m.Reply)
	resp.Header.Set(headerFrame, frame)
	if err := m.RespondMsg(resp); err != nil {
		log.Printf("[NATS] Failed to answer connect: %v", err)
	}
}

func (t *Transport) handleLink(m *nats.Msg) {
	link, ok := parseLinkSubject(m.Subject)
	if !ok {
		return
	}
	if m.Header.Get(headerFrame) == frameClose {
		if c := t.untrack(link); c != nil {
			c.box.Hangup()
		}
		return
	}

	t.mu.Lock()
	c := t.links[link]
	t.mu.Unlock()
	if c != nil {
		c.box.Deliver(m.Data)
	}
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

// Conn is one NATS link.
type Conn struct {
	t        *Transport
	link     string
	remoteID string
	box      peer.Mailbox
}

func (c *Conn) RemoteID() string {
	return c.remoteID
}

func (c *Conn) Listen(ev peer.Events) {
	c.box.Listen(ev)
}

func (c *Conn) Send(payload []byte) error {
	if c.box.Closed() {
		return peer.ErrClosed
	}
	if err := c.t.nc.Publish(linkSubject(c.link, c.remoteID), payload); err != nil {
		return fmt.Errorf("%w: %v", peer.ErrPeerUnavailable, err)
	}
	return nil
}

func (c *Conn) Close() error {
	if !c.box.Shut() {
		return nil
	}
	c.t.untrack(c.link)
	return c.publishClose()
}

func (c *Conn) publishClose() error {
	msg := nats.NewMsg(linkSubject(c.link, c.remoteID))
	msg.Header.Set(headerFrame, frameClose)
	return c.t.nc.PublishMsg(msg)
}
