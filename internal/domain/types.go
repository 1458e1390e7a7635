package domain

// Role is the side of the room a client took. The host moves first.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// ConnectionState tracks a session's transport lifecycle.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateAwaitingPeer ConnectionState = "awaiting_peer"
	StateConnected    ConnectionState = "connected"
	StateClosed       ConnectionState = "closed"
)

// Side is always relative to the evaluating client: each client sees itself
// as Local and its peer as Remote.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

func (s Side) Opposite() Side {
	if s == SideLocal {
		return SideRemote
	}
	return SideLocal
}

// Phase is the match phase of the turn protocol.
type Phase string

const (
	PhaseSelecting  Phase = "selecting"
	PhaseInProgress Phase = "in_progress"
	PhaseConcluded  Phase = "concluded"
)

// Outcome of a concluded match from the evaluating side's perspective.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeVictory Outcome = "victory"
	OutcomeDefeat  Outcome = "defeat"
)

func (o Outcome) Won() bool {
	return o == OutcomeVictory
}

// basic errors that can occur
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrTransportUnavailable Error = "transport unavailable"
	ErrPeerUnreachable      Error = "peer unreachable"
	ErrDesyncRisk           Error = "desync risk"
	ErrLedgerSubmission     Error = "ledger submission failed"
	ErrInvalidMessage       Error = "invalid action message"
	ErrSessionActive        Error = "session already active"
	ErrNotConnected         Error = "session not connected"
	ErrUnknownTechnique     Error = "unknown technique"
	ErrUnknownLoadout       Error = "unknown loadout"
	ErrInvalidAddress       Error = "invalid player address"
)
