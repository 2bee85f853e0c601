package services

import (
	"chat-hub/contract"
	"chat-hub/domain/call"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/observability"
	"chat-hub/runtime"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type ICallService interface {
	Initiate(ctx context.Context, callerID, calleeID string, media call.MediaKind) (call.Session, error)
	Accept(ctx context.Context, callID, userID string, signal json.RawMessage) error
	Reject(ctx context.Context, callID, userID, reason string) error
	Signal(ctx context.Context, callID, userID string, signal json.RawMessage) error
	End(ctx context.Context, callID, userID string) error
}

type liveCall struct {
	session *call.Session
	timer   *time.Timer
}

// CallService coordinates two-party call signaling. Sessions only live in
// memory; once terminal they are replaced by a tombstone kept for the
// retention window so late operations get a meaningful answer.
type CallService struct {
	log         *slog.Logger
	hub         *runtime.Hub
	profiles    profileResolver
	metrics     *observability.Metrics
	ringTimeout time.Duration
	retention   time.Duration

	mu         sync.Mutex
	sessions   map[string]*liveCall
	tombstones map[string]call.Tombstone
}

var _ contract.OfflineListener = (*CallService)(nil)

func NewCallService(
	log *slog.Logger,
	hub *runtime.Hub,
	users contract.IUserRepository,
	metrics *observability.Metrics,
	ringTimeout, retention time.Duration,
) *CallService {
	return &CallService{
		log:         log,
		hub:         hub,
		profiles:    profileResolver{users: users, log: log},
		metrics:     metrics,
		ringTimeout: ringTimeout,
		retention:   retention,
		sessions:    make(map[string]*liveCall),
		tombstones:  make(map[string]call.Tombstone),
	}
}

// Initiate rings calleeID. No session is created when the callee has no
// live connection.
func (s *CallService) Initiate(ctx context.Context, callerID, calleeID string, media call.MediaKind) (call.Session, error) {
	if !media.Valid() {
		return call.Session{}, fmt.Errorf("%w: unknown call type %q", errors.ErrValidation, media)
	}
	if calleeID == "" {
		return call.Session{}, fmt.Errorf("%w: recipient id is required", errors.ErrValidation)
	}
	if calleeID == callerID {
		return call.Session{}, fmt.Errorf("%w: cannot call yourself", errors.ErrValidation)
	}
	if _, online := s.hub.Presence.Lookup(calleeID); !online {
		return call.Session{}, fmt.Errorf("%w: user %s", errors.ErrRecipientOffline, calleeID)
	}
	caller := s.profiles.resolve(callerID)
	callee := s.profiles.resolve(calleeID)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	id := call.NewID(callerID, calleeID, now)
	for s.exists(id) {
		now = now.Add(time.Nanosecond)
		id = call.NewID(callerID, calleeID, now)
	}
	session := call.NewSession(id, callerID, calleeID, media, now)
	live := &liveCall{session: session}
	live.timer = time.AfterFunc(s.ringTimeout, func() { s.expire(id) })
	s.sessions[id] = live
	s.metrics.SetActiveCalls(len(s.sessions))

	s.hub.SendToUser(ctx, calleeID, event.New(event.CallInitiated, event.CallInitiatedPayload{
		CallID: id,
		Caller: caller,
		Callee: callee,
		Type:   string(media),
	}))
	s.hub.SendToUser(ctx, callerID, event.New(event.CallStatus, event.CallStatusPayload{
		CallID: id,
		Status: string(call.Ringing),
		Callee: callee,
	}))
	s.log.Debug("Call initiated", "call_id", id, "caller_id", callerID, "callee_id", calleeID)
	return *session, nil
}

// Accept moves a ringing call to connecting and forwards the callee's
// signaling payload to the caller's current connection.
func (s *CallService) Accept(ctx context.Context, callID, userID string, signal json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.lookup(callID, userID)
	if err != nil {
		return err
	}
	session := live.session
	if userID != session.CalleeID {
		return fmt.Errorf("%w: only the callee can accept call %s", errors.ErrForbidden, callID)
	}
	if session.State != call.Ringing {
		return fmt.Errorf("%w: call %s is %s", errors.ErrInvalidState, callID, session.State)
	}

	now := time.Now().UTC()
	live.timer.Stop()
	if _, online := s.hub.Presence.Lookup(session.CallerID); !online {
		s.finish(live, call.Failed, now)
		s.hub.SendToUser(ctx, session.CalleeID, event.New(event.CallEnded, event.CallEndedPayload{
			CallID: callID,
			Reason: event.ReasonFailed,
		}))
		return nil
	}
	if err := session.Transition(call.Connecting, now); err != nil {
		return err
	}
	if len(signal) > 0 {
		session.MarkSignaled(userID, now)
	}
	s.hub.SendToUser(ctx, session.CallerID, event.New(event.CallAccepted, event.CallAcceptedPayload{
		CallID: callID,
		Callee: s.profiles.resolve(session.CalleeID),
		Signal: signal,
	}))
	return nil
}

func (s *CallService) Reject(ctx context.Context, callID, userID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.lookup(callID, userID)
	if err != nil {
		return err
	}
	session := live.session
	if userID != session.CalleeID {
		return fmt.Errorf("%w: only the callee can reject call %s", errors.ErrForbidden, callID)
	}
	if session.State != call.Ringing {
		return fmt.Errorf("%w: call %s is %s", errors.ErrInvalidState, callID, session.State)
	}
	if reason == "" {
		reason = event.ReasonDeclined
	}

	s.finish(live, call.Rejected, time.Now().UTC())
	s.hub.SendToUser(ctx, session.CallerID, event.New(event.CallRejected, event.CallRejectedPayload{
		CallID: callID,
		Callee: s.profiles.resolve(session.CalleeID),
		Reason: reason,
	}))
	return nil
}

// Signal relays an opaque payload to the other participant, resolved at
// relay time.
func (s *CallService) Signal(ctx context.Context, callID, userID string, signal json.RawMessage) error {
	if len(signal) == 0 {
		return fmt.Errorf("%w: signal is required", errors.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.lookup(callID, userID)
	if err != nil {
		return err
	}
	session := live.session
	if session.State != call.Connecting && session.State != call.Active {
		return fmt.Errorf("%w: call %s is %s", errors.ErrInvalidState, callID, session.State)
	}

	peer, _ := session.Peer(userID)
	if session.MarkSignaled(userID, time.Now().UTC()) {
		s.log.Debug("Call active", "call_id", callID)
	}
	if !s.hub.SendToUser(ctx, peer, event.New(event.CallSignaled, event.CallSignaledPayload{
		CallID: callID,
		From:   s.profiles.resolve(userID),
		Signal: signal,
	})) {
		s.log.Debug("Signal not relayed", "call_id", callID, "user_id", peer)
	}
	return nil
}

// End hangs up a call. Ending a call that is already over succeeds
// without side effects.
func (s *CallService) End(ctx context.Context, callID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.lookup(callID, userID)
	if errors.Is(err, errors.ErrInvalidState) {
		return nil
	}
	if err != nil {
		return err
	}
	session := live.session
	peer, _ := session.Peer(userID)
	endedBy := s.profiles.resolve(userID)

	s.finish(live, call.Ended, time.Now().UTC())
	s.hub.SendToUser(ctx, peer, event.New(event.CallEnded, event.CallEndedPayload{
		CallID:  callID,
		EndedBy: &endedBy,
		Reason:  event.ReasonHangup,
	}))
	return nil
}

// UserWentOffline ends every ongoing call of userID and tells the other
// participant.
func (s *CallService) UserWentOffline(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, live := range s.sessions {
		session := live.session
		if !session.IsParticipant(userID) {
			continue
		}
		peer, _ := session.Peer(userID)
		gone := s.profiles.resolve(userID)
		s.finish(live, call.Ended, now)
		s.hub.SendToUser(ctx, peer, event.New(event.CallEnded, event.CallEndedPayload{
			CallID:  session.ID,
			EndedBy: &gone,
			Reason:  event.ReasonDisconnected,
		}))
		s.log.Debug("Call ended by disconnection", "call_id", session.ID, "user_id", userID)
	}
}

// Get returns a copy of a live session.
func (s *CallService) Get(callID string) (call.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, ok := s.sessions[callID]
	if !ok {
		return call.Session{}, false
	}
	return *live.session, true
}

func (s *CallService) Tombstone(callID string) (call.Tombstone, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tombstones[callID]
	return t, ok
}

func (s *CallService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// PruneTombstones forgets calls that ended more than the retention window
// before now and returns how many were removed.
func (s *CallService) PruneTombstones(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id, t := range s.tombstones {
		if now.Sub(t.EndedAt) >= s.retention {
			delete(s.tombstones, id)
			pruned++
		}
	}
	return pruned
}

// Close stops every pending ring timer.
func (s *CallService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, live := range s.sessions {
		live.timer.Stop()
	}
}

// expire is run by the ring timer. A timer firing after accept or reject
// finds the session in another state and does nothing.
func (s *CallService) expire(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.sessions[callID]
	if !ok || live.session.State != call.Ringing {
		return
	}
	session := live.session
	ctx := context.Background()
	s.finish(live, call.TimedOut, time.Now().UTC())
	s.hub.SendToUser(ctx, session.CallerID, event.New(event.CallRejected, event.CallRejectedPayload{
		CallID: callID,
		Callee: s.profiles.resolve(session.CalleeID),
		Reason: event.ReasonTimeout,
	}))
	s.hub.SendToUser(ctx, session.CalleeID, event.New(event.CallEnded, event.CallEndedPayload{
		CallID: callID,
		Reason: event.ReasonTimeout,
	}))
	s.log.Debug("Call timed out", "call_id", callID)
}

// lookup resolves a live call for one of its participants. Must hold s.mu.
func (s *CallService) lookup(callID, userID string) (*liveCall, error) {
	if live, ok := s.sessions[callID]; ok {
		if !live.session.IsParticipant(userID) {
			return nil, fmt.Errorf("%w: not a participant of call %s", errors.ErrUnauthorized, callID)
		}
		return live, nil
	}
	if t, ok := s.tombstones[callID]; ok {
		if !t.IsParticipant(userID) {
			return nil, fmt.Errorf("%w: not a participant of call %s", errors.ErrUnauthorized, callID)
		}
		return nil, fmt.Errorf("%w: call %s is already %s", errors.ErrInvalidState, callID, t.State)
	}
	return nil, fmt.Errorf("%w: call %s", errors.ErrNotFound, callID)
}

// finish moves a live call to a terminal state and tombstones it. Must hold s.mu.
func (s *CallService) finish(live *liveCall, state call.State, at time.Time) {
	session := live.session
	if err := session.Transition(state, at); err != nil {
		s.log.Error("Unexpected call transition", "call_id", session.ID, "error", err)
		return
	}
	live.timer.Stop()
	delete(s.sessions, session.ID)
	s.tombstones[session.ID] = session.Tombstone()
	s.metrics.CallFinished(string(state))
	s.metrics.SetActiveCalls(len(s.sessions))
}

func (s *CallService) exists(callID string) bool {
	_, live := s.sessions[callID]
	_, dead := s.tombstones[callID]
	return live || dead
}
