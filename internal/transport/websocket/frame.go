package websocket

import "time"

// FrameType is the discriminant of a relay frame.
type FrameType string

const (
	FrameOpen    FrameType = "OPEN"
	FrameConnect FrameType = "CONNECT"
	FrameAccept  FrameType = "ACCEPT"
	FrameData    FrameType = "DATA"
	FrameClose   FrameType = "CLOSE"
	FrameError   FrameType = "ERROR"
)

// Error kinds carried by ERROR frames.
const (
	KindPeerUnavailable = "peer-unavailable"
	KindUnavailableID   = "unavailable-id"
	KindServerError     = "server-error"
	KindNetwork         = "network"
	KindInvalidFrame    = "invalid-frame"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// Frame is the single wire record between relay and clients. Payload is
// opaque to the relay.
type Frame struct {
	Type    FrameType `json:"type"`
	ID      string    `json:"id,omitempty"`
	Token   string    `json:"token,omitempty"`
	Src     string    `json:"src,omitempty"`
	Dst     string    `json:"dst,omitempty"`
	Link    string    `json:"link,omitempty"`
	Payload []byte    `json:"payload,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
}
