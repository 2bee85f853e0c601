// Package call models a two-party call session and its state machine.
package call

import (
	"chat-hub/errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	Ringing    State = "ringing"
	Connecting State = "connecting"
	Active     State = "active"
	Ended      State = "ended"
	Rejected   State = "rejected"
	TimedOut   State = "timed_out"
	Failed     State = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s State) IsTerminal() bool {
	switch s {
	case Ended, Rejected, TimedOut, Failed:
		return true
	}
	return false
}

var transitions = map[State][]State{
	Ringing:    {Connecting, Rejected, TimedOut, Ended, Failed},
	Connecting: {Active, Ended, Failed},
	Active:     {Ended, Failed},
}

func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type MediaKind string

const (
	Audio MediaKind = "audio"
	Video MediaKind = "video"
)

func (m MediaKind) Valid() bool {
	return m == Audio || m == Video
}

// callNamespace scopes the UUIDv5 call identifiers.
var callNamespace = uuid.MustParse("6f1c2a4e-3b7d-5e8f-9a0b-1c2d3e4f5a6b")

// NewID derives an identifier from the caller, the callee and the creation time.
// The result is opaque: participants are never recovered from it.
func NewID(callerID, calleeID string, at time.Time) string {
	name := callerID + "\x00" + calleeID + "\x00" + strconv.FormatInt(at.UnixNano(), 10)
	return uuid.NewSHA1(callNamespace, []byte(name)).String()
}

type Session struct {
	ID        string
	CallerID  string
	CalleeID  string
	Media     MediaKind
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time

	callerSignaled bool
	calleeSignaled bool
}

func NewSession(id, callerID, calleeID string, media MediaKind, at time.Time) *Session {
	return &Session{
		ID:        id,
		CallerID:  callerID,
		CalleeID:  calleeID,
		Media:     media,
		State:     Ringing,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func (s *Session) IsParticipant(userID string) bool {
	return userID == s.CallerID || userID == s.CalleeID
}

// Peer returns the other participant of the call.
func (s *Session) Peer(userID string) (string, bool) {
	switch userID {
	case s.CallerID:
		return s.CalleeID, true
	case s.CalleeID:
		return s.CallerID, true
	}
	return "", false
}

// Transition moves the session to the next state, refusing any edge that
// is not part of the state machine.
func (s *Session) Transition(to State, at time.Time) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: call %s cannot go from %s to %s", errors.ErrInvalidState, s.ID, s.State, to)
	}
	s.State = to
	s.UpdatedAt = at
	return nil
}

// MarkSignaled records that userID has sent signaling data.
// A connecting call becomes active once both sides have signaled; the
// returned flag tells whether that promotion happened now.
func (s *Session) MarkSignaled(userID string, at time.Time) bool {
	switch userID {
	case s.CallerID:
		s.callerSignaled = true
	case s.CalleeID:
		s.calleeSignaled = true
	}
	if s.State == Connecting && s.callerSignaled && s.calleeSignaled {
		return s.Transition(Active, at) == nil
	}
	return false
}

// Tombstone is what remains of a session after it reached a terminal state.
type Tombstone struct {
	ID       string
	CallerID string
	CalleeID string
	State    State
	EndedAt  time.Time
}

func (s *Session) Tombstone() Tombstone {
	return Tombstone{
		ID:       s.ID,
		CallerID: s.CallerID,
		CalleeID: s.CalleeID,
		State:    s.State,
		EndedAt:  s.UpdatedAt,
	}
}

func (t Tombstone) IsParticipant(userID string) bool {
	return userID == t.CallerID || userID == t.CalleeID
}
