package peer

import "sync"

// Mailbox holds the receive side of a Conn. It buffers messages and a
// remote close until Listen, then delivers everything in arrival order, one
// event at a time. The zero value is ready to use.
type Mailbox struct {
	// deliverMu serialises handler invocations
	deliverMu sync.Mutex

	mu           sync.Mutex
	events       Events
	listening    bool
	closed       bool
	pendingClose bool
	backlog      [][]byte
}

func (b *Mailbox) Listen(ev Events) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	b.events = ev
	b.listening = true
	backlog := b.backlog
	b.backlog = nil
	hungUp := b.pendingClose
	b.pendingClose = false
	b.mu.Unlock()

	for _, payload := range backlog {
		if ev.OnMessage != nil {
			ev.OnMessage(payload)
		}
	}
	if hungUp && ev.OnClose != nil {
		ev.OnClose()
	}
}

// Deliver hands payload to the listener, or buffers it. Messages arriving
// after close are dropped.
func (b *Mailbox) Deliver(payload []byte) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if !b.listening {
		b.backlog = append(b.backlog, payload)
		b.mu.Unlock()
		return
	}
	ev := b.events
	b.mu.Unlock()

	if ev.OnMessage != nil {
		ev.OnMessage(payload)
	}
}

// Hangup records a close by the remote end or the network and fires OnClose
// once. It reports false if the mailbox was already closed.
func (b *Mailbox) Hangup() bool {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.closed = true
	if !b.listening {
		b.pendingClose = true
		b.mu.Unlock()
		return true
	}
	ev := b.events
	b.mu.Unlock()

	if ev.OnClose != nil {
		ev.OnClose()
	}
	return true
}

// Shut closes the mailbox locally without firing OnClose. It reports false
// if the mailbox was already closed.
func (b *Mailbox) Shut() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.closed = true
	b.backlog = nil
	return true
}

// Fail reports a non-fatal error to the listener, if any.
func (b *Mailbox) Fail(err error) {
	b.mu.Lock()
	ev := b.events
	listening := b.listening && !b.closed
	b.mu.Unlock()

	if listening && ev.OnError != nil {
		ev.OnError(err)
	}
}

func (b *Mailbox) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
