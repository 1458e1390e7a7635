package uid

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewPeerID returns a fresh peer identity. It doubles as the room code a
// host shares out of band.
func NewPeerID() string {
	return uuid.NewString()
}

// NewLinkID randomly generates an identifier for one peer-to-peer link.
func NewLinkID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// IsPeerID reports whether id is shaped like an id from NewPeerID.
func IsPeerID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
