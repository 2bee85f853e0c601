package services

import (
	"chat-hub/domain/call"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var offer = json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
var answer = json.RawMessage(`{"type":"answer","sdp":"v=0"}`)

func newCallService(f *fixture, ringTimeout time.Duration) *CallService {
	return NewCallService(f.log, f.hub, f.users, nil, ringTimeout, time.Minute)
}

func TestCallService_Offline_Callee_Scenario(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := newCallService(f, time.Minute)
	defer svc.Close()
	_, aliceEvents := f.online("alice")

	// When alice calls bob who is offline
	_, err := svc.Initiate(ctx, "alice", "bob", call.Video)

	// Then no session is created
	req.ErrorIs(err, errors.ErrRecipientOffline)
	req.Zero(svc.ActiveCount())
	req.Empty(aliceEvents.Events())

	// And accepting a fabricated id for that attempt is unknown
	fabricated := call.NewID("alice", "bob", time.Now())
	req.ErrorIs(svc.Accept(ctx, fabricated, "bob", nil), errors.ErrNotFound)
}

func TestCallService_Initiate_Validation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := newCallService(f, time.Minute)
	defer svc.Close()
	f.online("alice")

	_, err := svc.Initiate(ctx, "alice", "alice", call.Audio)
	req.ErrorIs(err, errors.ErrValidation)
	_, err = svc.Initiate(ctx, "alice", "", call.Audio)
	req.ErrorIs(err, errors.ErrValidation)
	_, err = svc.Initiate(ctx, "bob", "alice", call.MediaKind("screen"))
	req.ErrorIs(err, errors.ErrValidation)
}

func TestCallService_Initiate_Rings_Callee(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newCallService(f, time.Minute)
	defer svc.Close()
	_, aliceEvents := f.online("alice")
	_, bobEvents := f.online("bob")

	session, err := svc.Initiate(ctx, "alice", "bob", call.Video)

	req.NoError(err)
	req.Equal(call.Ringing, session.State)
	req.Equal(1, svc.ActiveCount())
	req.Equal([]event.Outbound{event.New(event.CallInitiated, event.CallInitiatedPayload{
		CallID: session.ID,
		Caller: userProfile("alice"),
		Callee: userProfile("bob"),
		Type:   "video",
	})}, bobEvents.Events())
	req.Equal([]event.Outbound{event.New(event.CallStatus, event.CallStatusPayload{
		CallID: session.ID,
		Status: "ringing",
		Callee: userProfile("bob"),
	})}, aliceEvents.Events())
}

func TestCallService_Accept(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newCallService(f, time.Minute)
	defer svc.Close()
	_, aliceEvents := f.online("alice")
	f.online("bob")
	f.online("mallory")
	session, err := svc.Initiate(ctx, "alice", "bob", call.Audio)
	req.NoError(err)

	// Only the callee may accept
	req.ErrorIs(svc.Accept(ctx, session.ID, "mallory", answer), errors.ErrUnauthorized)
	req.ErrorIs(svc.Accept(ctx, session.ID, "alice", answer), errors.ErrForbidden)

	// When bob accepts
	req.NoError(svc.Accept(ctx, session.ID, "bob", answer))

	// Then the caller gets the callee's signal
	accepted := aliceEvents.Of(event.CallAccepted)
	req.Len(accepted, 1)
	req.Equal(event.CallAcceptedPayload{CallID: session.ID, Callee: userProfile("bob"), Signal: answer}, accepted[0].Payload)
	current, ok := svc.Get(session.ID)
	req.True(ok)
	req.Equal(call.Connecting, current.State)

	// And ringing operations are over
	req.ErrorIs(svc.Accept(ctx, session.ID, "bob", answer), errors.ErrInvalidState)
	req.ErrorIs(svc.Reject(ctx, session.ID, "bob", ""), errors.ErrInvalidState)
	req.Len(aliceEvents.Of(event.CallAccepted), 1)
}

func TestCallService_Accept_Follows_Caller_Reconnection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newCallService(f, time.Minute)
	defer svc.Close()
	_, oldAliceEvents := f.online("alice")
	f.online("bob")
	session, err := svc.Initiate(ctx, "alice", "bob", call.Video)
	req.NoError(err)

	// Given alice reconnects on a new connection while bob's phone rings
	_, newAliceEvents := f.online("alice")

	// When bob accepts
	req.NoError(svc.Accept(ctx, session.ID, "bob", answer))

	// Then the answer reaches alice's current connection only
	req.Len(newAliceEvents.Of(event.CallAccepted), 1)
	req.Empty(oldAliceEvents.Of(event.CallAccepted))
	current, ok := svc.Get(session.ID)
	req.True(ok)
	req.Equal(call.Connecting, current.State)
}

func TestCallService_Accept_When_Caller_Is_Gone(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newCallService(f, time.Minute)
	defer svc.Close()
	aliceConn, _ := f.online("alice")
	_, bobEvents := f.online("bob")
	session, err := svc.Initiate(ctx, "alice", "bob", call.Audio)
	req.NoError(err)

	// Given alice lost her connection without the offline notification yet
	f.hub.Presence.Unregister("alice", aliceConn.ID)

	req.NoError(svc.Accept(ctx, session.ID, "bob", answer))

	tombstone, ok := svc.Tombstone(session.ID)
	req.True(ok)
	req.Equal(call.Failed, tombstone.State)
	ended := bobEvents.Of(event.CallEnded)
	req.Len(ended, 1)
	req.Equal(event.ReasonFailed, ended[0].Payload.(event.CallEndedPayload).Reason)
}

func TestCallService_Reject_Closes_The_Call(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newCallService(f, time.Minute)
	defer svc.Close()
	_, aliceEvents := f.online("alice")
	_, bobEvents := f.online("bob")
	session, err := svc.Initiate(ctx, "alice", "bob", call.Audio)
	req.NoError(err)

	// When bob rejects
	req.NoError(svc.Reject(ctx, session.ID, "bob", ""))

	// Then alice is told and the call is closed
	rejected := aliceEvents.Of(event.CallRejected)
	req.Len(rejected, 1)
	req.Equal(event.ReasonDeclined, rejected[0].Payload.(event.CallRejectedPayload).Reason)
	req.Zero(svc.ActiveCount())

	// And every further operation fails without side effect
	aliceEvents.Reset()
	bobEvents.Reset()
	req.ErrorIs(svc.Accept(ctx, session.ID, "bob", answer), errors.ErrInvalidState)
	req.ErrorIs(svc.Reject(ctx, session.ID, "bob", ""), errors.ErrInvalidState)
	req.ErrorIs(svc.Signal(ctx, session.ID, "alice", offer), errors.ErrInvalidState)
	req.NoError(svc.End(ctx, session.ID, "alice"))
	req.ErrorIs(svc.End(ctx, session.ID, "mallory"), errors.ErrUnauthorized)
	req.Empty(aliceEvents.Events())
	req.Empty(bobEvents.Events())
}

func TestCallService_Ring_Timeout(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newCallService(f, 20*time.Millisecond)
	defer svc.Close()
	_, aliceEvents := f.online("alice")
	_, bobEvents := f.online("bob")
	session, err := svc.Initiate(ctx, "alice", "bob", call.Audio)
	req.NoError(err)

	// When nobody answers in time
	req.Eventually(func() bool {
		_, ok := svc.Tombstone(session.ID)
		return ok
	}, time.Second, 5*time.Millisecond)

	// Then the call timed out for both sides
	tombstone, _ := svc.Tombstone(session.ID)
	req.Equal(call.TimedOut, tombstone.State)
	rejected := aliceEvents.Of(event.CallRejected)
	req.Len(rejected, 1)
	req.Equal(event.ReasonTimeout, rejected[0].Payload.(event.CallRejectedPayload).Reason)
	ended := bobEvents.Of(event.CallEnded)
	req.Len(ended, 1)
	req.Equal(event.ReasonTimeout, ended[0].Payload.(event.CallEndedPayload).Reason)

	// And a late accept fails
	req.ErrorIs(svc.Accept(ctx, session.ID, "bob", answer), errors.ErrInvalidState)
}

func TestCallService_Timer_After_Accept_Is_Noop(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newCallService(f, 20*time.Millisecond)
	defer svc.Close()
	_, aliceEvents := f.online("alice")
	f.online("bob")
	session, err := svc.Initiate(ctx, "alice", "bob", call.Audio)
	req.NoError(err)

	req.NoError(svc.Accept(ctx, session.ID, "bob", answer))
	time.Sleep(60 * time.Millisecond)

	current, ok := svc.Get(session.ID)
	req.True(ok)
	req.Equal(call.Connecting, current.State)
	req.Empty(aliceEvents.Of(event.CallRejected))
}

func TestCallService_Signal_Relay_And_Activation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newCallService(f, time.Minute)
	defer svc.Close()
	f.online("alice")
	_, bobEvents := f.online("bob")
	session, err := svc.Initiate(ctx, "alice", "bob", call.Video)
	req.NoError(err)

	// Signaling is not possible while ringing
	req.ErrorIs(svc.Signal(ctx, session.ID, "alice", offer), errors.ErrInvalidState)

	// Given bob accepted with his payload
	req.NoError(svc.Accept(ctx, session.ID, "bob", answer))

	// When alice sends a candidate
	candidate := json.RawMessage(`{"candidate":"a=1"}`)
	req.NoError(svc.Signal(ctx, session.ID, "alice", candidate))

	// Then bob receives it and the call is active
	signals := bobEvents.Of(event.CallSignaled)
	req.Len(signals, 1)
	req.Equal(event.CallSignaledPayload{CallID: session.ID, From: userProfile("alice"), Signal: candidate}, signals[0].Payload)
	current, _ := svc.Get(session.ID)
	req.Equal(call.Active, current.State)

	req.ErrorIs(svc.Signal(ctx, session.ID, "alice", nil), errors.ErrValidation)
	req.ErrorIs(svc.Signal(ctx, session.ID, "mallory", candidate), errors.ErrUnauthorized)
}

func TestCallService_End_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newCallService(f, time.Minute)
	defer svc.Close()
	f.online("alice")
	_, bobEvents := f.online("bob")
	session, err := svc.Initiate(ctx, "alice", "bob", call.Video)
	req.NoError(err)
	req.NoError(svc.Accept(ctx, session.ID, "bob", answer))

	// When alice hangs up twice
	req.NoError(svc.End(ctx, session.ID, "alice"))
	req.NoError(svc.End(ctx, session.ID, "alice"))

	// Then bob is told once
	ended := bobEvents.Of(event.CallEnded)
	req.Len(ended, 1)
	payload := ended[0].Payload.(event.CallEndedPayload)
	req.Equal(event.ReasonHangup, payload.Reason)
	req.Equal("alice", payload.EndedBy.ID)

	req.ErrorIs(svc.End(ctx, "unknown", "alice"), errors.ErrNotFound)
}

func TestCallService_Mid_Call_Disconnect_Scenario(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	f.users.EXPECT().SetPresence("bob", false, gomock.Any()).Return(nil)
	calls := newCallService(f, time.Minute)
	defer calls.Close()
	connections := NewConnectionService(f.log, f.hub, f.users, f.chats, f.verifier, nil, ConnectionPolicy{PresenceBroadcast: PresenceDelta})
	connections.OnOffline(calls)

	// Given an active call between alice and bob
	_, aliceEvents := f.online("alice")
	bobConn, _ := f.online("bob")
	session, err := calls.Initiate(ctx, "alice", "bob", call.Video)
	req.NoError(err)
	req.NoError(calls.Accept(ctx, session.ID, "bob", answer))
	req.NoError(calls.Signal(ctx, session.ID, "alice", offer))
	current, _ := calls.Get(session.ID)
	req.Equal(call.Active, current.State)

	// When bob's connection drops
	connections.Disconnect(ctx, bobConn.ID)

	// Then alice is told the call ended because of the disconnection
	ended := aliceEvents.Of(event.CallEnded)
	req.Len(ended, 1)
	req.Equal(event.ReasonDisconnected, ended[0].Payload.(event.CallEndedPayload).Reason)
	tombstone, ok := calls.Tombstone(session.ID)
	req.True(ok)
	req.Equal(call.Ended, tombstone.State)

	// And signaling on it now fails
	req.ErrorIs(calls.Signal(ctx, session.ID, "alice", offer), errors.ErrInvalidState)
	req.Len(aliceEvents.Of(event.UserOffline), 1)
}

func TestCallService_Ringing_Disconnect_Scenario(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	f.users.EXPECT().SetPresence("bob", false, gomock.Any()).Return(nil)
	calls := newCallService(f, 50*time.Millisecond)
	defer calls.Close()
	connections := NewConnectionService(f.log, f.hub, f.users, f.chats, f.verifier, nil, ConnectionPolicy{PresenceBroadcast: PresenceDelta})
	connections.OnOffline(calls)

	// Given alice is ringing bob
	_, aliceEvents := f.online("alice")
	bobConn, _ := f.online("bob")
	session, err := calls.Initiate(ctx, "alice", "bob", call.Audio)
	req.NoError(err)

	// When bob's connection drops before answering
	connections.Disconnect(ctx, bobConn.ID)

	// Then the call ends and alice is told why
	ended := aliceEvents.Of(event.CallEnded)
	req.Len(ended, 1)
	req.Equal(event.ReasonDisconnected, ended[0].Payload.(event.CallEndedPayload).Reason)
	tombstone, ok := calls.Tombstone(session.ID)
	req.True(ok)
	req.Equal(call.Ended, tombstone.State)
	req.Zero(calls.ActiveCount())

	// And the ring timer doesn't end it a second time
	req.Never(func() bool {
		return len(aliceEvents.Of(event.CallEnded)) > 1
	}, 150*time.Millisecond, 10*time.Millisecond)
	req.ErrorIs(calls.Accept(ctx, session.ID, "bob", answer), errors.ErrInvalidState)
}

func TestCallService_Prune_Tombstones(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newCallService(f, time.Minute)
	defer svc.Close()
	f.online("alice")
	f.online("bob")
	session, err := svc.Initiate(ctx, "alice", "bob", call.Audio)
	req.NoError(err)
	req.NoError(svc.Reject(ctx, session.ID, "bob", "busy"))

	req.Zero(svc.PruneTombstones(time.Now()))
	req.Equal(1, svc.PruneTombstones(time.Now().Add(2*time.Minute)))

	// Once forgotten the call is unknown
	req.ErrorIs(svc.Accept(ctx, session.ID, "bob", nil), errors.ErrNotFound)
}
