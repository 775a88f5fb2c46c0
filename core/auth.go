package core

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the authentication state of an account
type Status uint8

const (
	// StatusUnauthenticated is the initial state of every account
	StatusUnauthenticated Status = iota
	// StatusAuthenticated is set by a successful signature verification
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	if s > StatusAuthenticated {
		return nil, fmt.Errorf("unknown status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unauthenticated":
		*s = StatusUnauthenticated
	case "authenticated":
		*s = StatusAuthenticated
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// EventKind names a ledger event
type EventKind string

const (
	// EventUserAuthenticated is emitted once per successful verification
	EventUserAuthenticated EventKind = "UserAuthenticated"
	// EventAuthenticationRevoked is emitted once per revocation
	EventAuthenticationRevoked EventKind = "AuthenticationRevoked"
)

// Event is a durable, hash-chained record appended to the ledger
type Event struct {
	Seq       uint64         `json:"seq"`       // Position in the ledger, starting at 1
	Kind      EventKind      `json:"kind"`      // What happened
	Account   common.Address `json:"account"`   // Account whose status changed
	Timestamp time.Time      `json:"timestamp"` // Ledger confirmation time, never caller supplied
	PrevHash  common.Hash    `json:"prev_hash"` // Hash of the previous event, zero for genesis
	Hash      common.Hash    `json:"hash"`      // Hash over this event's fields and PrevHash
}

// Transition is the single state change a ledger transaction commits
type Transition struct {
	Account      common.Address // Account to update
	Status       Status         // New status
	SignatureKey common.Hash    // Consumed signature key, zero for revocations
	Event        Event          // Record to append
}

// Consumes reports whether the transition burns a signature
func (t *Transition) Consumes() bool {
	return t.SignatureKey != (common.Hash{})
}

// Receipt is returned to the caller of a committed transaction
type Receipt struct {
	Account common.Address `json:"account"`
	Status  Status         `json:"status"`
	Event   Event          `json:"event"`
}

// LedgerReport summarizes the integrity of the event log
type LedgerReport struct {
	Height uint64      `json:"height"`
	Head   common.Hash `json:"head"`
	Valid  bool        `json:"valid"`
	Error  string      `json:"error,omitempty"`
}
