package websocket

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kenshin-labs/bushido-duel/pkg/auth"
	"github.com/kenshin-labs/bushido-duel/pkg/uid"
)

// Relay is the rendezvous point for duel peers. It hands out ids, brokers
// link handshakes and forwards frames between the two ends of a link.
type Relay struct {
	secret         string
	tokenTTL       time.Duration
	reservationTTL time.Duration

	mu           sync.RWMutex // Protects the maps below
	peers        map[string]*relayPeer
	reservations map[string]time.Time // id -> reserved until
	links        map[string]*relayLink
}

type relayPeer struct {
	id   string
	conn *websocket.Conn

	// writeMu ensures only one goroutine writes to the socket at a time
	writeMu sync.Mutex

	links map[string]struct{} // guarded by Relay.mu
}

type relayLink struct {
	id        string
	src       string // dialer
	dst       string // host
	accepted  bool
	createdAt time.Time
}

func (l *relayLink) other(id string) string {
	if id == l.src {
		return l.dst
	}
	return l.src
}

// RelayStats is a point-in-time count of relay state.
type RelayStats struct {
	Peers        int `json:"peers"`
	Links        int `json:"links"`
	Reservations int `json:"reservations"`
}

func NewRelay(secret string, tokenTTL, reservationTTL time.Duration) *Relay {
	return &Relay{
		secret:         secret,
		tokenTTL:       tokenTTL,
		reservationTTL: reservationTTL,
		peers:          make(map[string]*relayPeer),
		reservations:   make(map[string]time.Time),
		links:          make(map[string]*relayLink),
	}
}

// Register admits a new socket. A valid token reclaims the id it was issued
// for while that id is reserved; once the reservation lapses the socket gets
// a fresh id. A token for an id that is online is refused. It returns the
// peer and its fresh token, or an ERROR frame to send before closing.
func (r *Relay) Register(conn *websocket.Conn, token string) (*relayPeer, string, *Frame) {
	id := ""
	if token != "" {
		claims, err := auth.ValidatePeerToken(r.secret, token)
		if err != nil {
			log.Printf("[RELAY] Ignoring invalid peer token: %v", err)
		} else {
			id = claims.PeerID
		}
	}

	r.mu.Lock()
	if id != "" {
		if _, online := r.peers[id]; online {
			r.mu.Unlock()
			return nil, "", &Frame{Type: FrameError, Kind: KindUnavailableID, Message: "id " + id + " is taken"}
		}
		if until, reserved := r.reservations[id]; !reserved || time.Now().After(until) {
			log.Printf("[RELAY] Reservation for %s has lapsed, assigning a fresh id", id)
			delete(r.reservations, id)
			id = ""
		}
	}
	if id == "" {
		id = uid.NewPeerID()
	}
	p := &relayPeer{id: id, conn: conn, links: make(map[string]struct{})}
	r.peers[id] = p
	delete(r.reservations, id)
	r.mu.Unlock()

	newToken, err := auth.GeneratePeerToken(r.secret, id, r.tokenTTL)
	if err != nil {
		r.Unregister(p)
		log.Printf("[RELAY] Failed to issue token: %v", err)
		return nil, "", &Frame{Type: FrameError, Kind: KindServerError, Message: "could not issue token"}
	}
	return p, newToken, nil
}

// Unregister removes p if it is still the current holder of its id, closes
// its links and reserves the id for reconnection.
func (r *Relay) Unregister(p *relayPeer) {
	r.mu.Lock()
	current, exists := r.peers[p.id]
	if !exists || current != p {
		r.mu.Unlock()
		return
	}
	delete(r.peers, p.id)
	if r.reservationTTL > 0 {
		r.reservations[p.id] = time.Now().Add(r.reservationTTL)
	}
	notify := r.dropLinksLocked(p)
	r.mu.Unlock()

	p.conn.Close()
	for _, n := range notify {
		r.send(n.peer, n.frame)
	}
	log.Printf("[RELAY] Peer %s left, %d link(s) closed", p.id, len(notify))
}

type delivery struct {
	peer  *relayPeer
	frame Frame
}

// dropLinksLocked removes every link of p and returns the CLOSE frames owed to
// the other ends.
func (r *Relay) dropLinksLocked(p *relayPeer) []delivery {
	var out []delivery
	for linkID := range p.links {
		l, ok := r.links[linkID]
		if !ok {
			continue
		}
		delete(r.links, linkID)
		if other, online := r.peers[l.other(p.id)]; online {
			delete(other.links, linkID)
			out = append(out, delivery{other, Frame{Type: FrameClose, Src: p.id, Link: linkID}})
		}
	}
	p.links = make(map[string]struct{})
	return out
}

// Route handles one frame sent by p.
func (r *Relay) Route(p *relayPeer, f Frame) {
	switch f.Type {
	case FrameConnect:
		r.connect(p, f)
	case FrameAccept:
		r.accept(p, f)
	case FrameData:
		r.forward(p, f)
	case FrameClose:
		r.closeLink(p, f)
	default:
		r.send(p, Frame{Type: FrameError, Kind: KindInvalidFrame, Link: f.Link, Message: "unexpected frame " + string(f.Type)})
	}
}

func (r *Relay) connect(p *relayPeer, f Frame) {
	if f.Link == "" {
		r.send(p, Frame{Type: FrameError, Kind: KindInvalidFrame, Message: "CONNECT without link"})
		return
	}

	r.mu.Lock()
	dst, online := r.peers[f.Dst]
	_, taken := r.links[f.Link]
	if !online || f.Dst == p.id || taken {
		r.mu.Unlock()
		r.send(p, Frame{Type: FrameError, Kind: KindPeerUnavailable, Link: f.Link, Dst: f.Dst,
			Message: "could not connect to peer " + f.Dst})
		return
	}
	r.links[f.Link] = &relayLink{id: f.Link, src: p.id, dst: dst.id, createdAt: time.Now()}
	p.links[f.Link] = struct{}{}
	dst.links[f.Link] = struct{}{}
	r.mu.Unlock()

	r.send(dst, Frame{Type: FrameConnect, Src: p.id, Link: f.Link})
}

func (r *Relay) accept(p *relayPeer, f Frame) {
	r.mu.Lock()
	l, ok := r.links[f.Link]
	if !ok || l.dst != p.id {
		r.mu.Unlock()
		return
	}
	l.accepted = true
	src := r.peers[l.src]
	r.mu.Unlock()

	if src != nil {
		r.send(src, Frame{Type: FrameAccept, Src: p.id, Link: f.Link})
	}
}

func (r *Relay) forward(p *relayPeer, f Frame) {
	r.mu.RLock()
	l, ok := r.links[f.Link]
	var other *relayPeer
	if ok && l.accepted && (l.src == p.id || l.dst == p.id) {
		other = r.peers[l.other(p.id)]
	}
	r.mu.RUnlock()

	if other == nil {
		r.send(p, Frame{Type: FrameError, Kind: KindNetwork, Link: f.Link, Message: "link is not open"})
		return
	}
	r.send(other, Frame{Type: FrameData, Src: p.id, Link: f.Link, Payload: f.Payload})
}

func (r *Relay) closeLink(p *relayPeer, f Frame) {
	r.mu.Lock()
	l, ok := r.links[f.Link]
	if !ok || (l.src != p.id && l.dst != p.id) {
		r.mu.Unlock()
		return
	}
	delete(r.links, f.Link)
	delete(p.links, f.Link)
	other := r.peers[l.other(p.id)]
	if other != nil {
		delete(other.links, f.Link)
	}
	r.mu.Unlock()

	if other != nil {
		r.send(other, Frame{Type: FrameClose, Src: p.id, Link: f.Link})
	}
}

// send writes a frame to p. Errors surface on p's read loop.
func (r *Relay) send(p *relayPeer, f Frame) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := p.conn.WriteJSON(f); err != nil {
		log.Printf("[RELAY] Write to %s failed: %v", p.id, err)
	}
}

// IsOnline reports whether id currently has a live socket.
func (r *Relay) IsOnline(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[id]
	return ok
}

func (r *Relay) Stats() RelayStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RelayStats{Peers: len(r.peers), Links: len(r.links), Reservations: len(r.reservations)}
}

// PruneReservations forgets id reservations that expired before now.
func (r *Relay) PruneReservations(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, until := range r.reservations {
		if now.After(until) {
			delete(r.reservations, id)
			n++
		}
	}
	return n
}

// PruneLinks closes handshakes that were never accepted within maxAge.
func (r *Relay) PruneLinks(now time.Time, maxAge time.Duration) int {
	var notify []delivery
	pruned := 0

	r.mu.Lock()
	for id, l := range r.links {
		if l.accepted || now.Sub(l.createdAt) < maxAge {
			continue
		}
		delete(r.links, id)
		pruned++
		for _, end := range []string{l.src, l.dst} {
			if p, online := r.peers[end]; online {
				delete(p.links, id)
				notify = append(notify, delivery{p, Frame{Type: FrameClose, Link: id}})
			}
		}
	}
	r.mu.Unlock()

	for _, n := range notify {
		r.send(n.peer, n.frame)
	}
	return pruned
}
