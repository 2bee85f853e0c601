// Package ws carries the client event channel: envelope decoding, inbound
// dispatch and the websocket transport.
package ws

import (
	"chat-hub/domain/call"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/observability"
	"chat-hub/runtime"
	"chat-hub/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
)

// Client is the dispatch state of one connection. Its events are handled
// one at a time by the connection reader.
type Client struct {
	Conn    *runtime.Connection
	limiter *rate.Limiter
}

type RateLimit struct {
	PerSecond float64
	Burst     int
}

// Dispatcher maps every inbound event kind to the service operation that
// handles it and reports failures to the originating connection.
type Dispatcher struct {
	log         *slog.Logger
	hub         *runtime.Hub
	connections services.IConnectionService
	messages    services.IMessageService
	calls       services.ICallService
	metrics     *observability.Metrics
	validate    *validator.Validate
	limit       RateLimit
}

func NewDispatcher(
	log *slog.Logger,
	hub *runtime.Hub,
	connections services.IConnectionService,
	messages services.IMessageService,
	calls services.ICallService,
	metrics *observability.Metrics,
	limit RateLimit,
) *Dispatcher {
	return &Dispatcher{
		log:         log,
		hub:         hub,
		connections: connections,
		messages:    messages,
		calls:       calls,
		metrics:     metrics,
		validate:    validator.New(),
		limit:       limit,
	}
}

// NewClient wraps conn with its own token bucket. A zero rate disables
// limiting.
func (d *Dispatcher) NewClient(conn *runtime.Connection) *Client {
	limit := rate.Inf
	if d.limit.PerSecond > 0 {
		limit = rate.Limit(d.limit.PerSecond)
	}
	return &Client{Conn: conn, limiter: rate.NewLimiter(limit, max(d.limit.Burst, 1))}
}

// Dispatch decodes one raw frame and runs it to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, client *Client, raw []byte) {
	var envelope event.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		d.reply(ctx, client, event.New(event.Error, event.ErrorPayload{
			Code:    string(errors.CodeValidation),
			Message: "malformed event envelope",
		}))
		return
	}
	kind := event.ParseInbound(envelope.Event)
	d.metrics.InboundReceived(kind)

	if !client.limiter.Allow() {
		d.metrics.RateLimited()
		d.fail(ctx, client, kind, envelope, fmt.Errorf("%w: slow down", errors.ErrRateLimited))
		return
	}
	if kind != event.Unknown && kind.RequiresAuth() && !client.Conn.Authenticated() {
		d.fail(ctx, client, kind, envelope, fmt.Errorf("%w: authentication required", errors.ErrUnauthorized))
		return
	}
	if err := d.route(ctx, client, kind, envelope); err != nil {
		d.fail(ctx, client, kind, envelope, err)
	}
}

func (d *Dispatcher) route(ctx context.Context, client *Client, kind event.InboundKind, envelope event.Envelope) error {
	connID := client.Conn.ID
	userID := client.Conn.UserID()

	switch kind {
	case event.Auth:
		p, err := decode[event.AuthPayload](d, envelope.Data)
		if err != nil {
			return err
		}
		_, err = d.connections.Authenticate(ctx, connID, p.Token)
		return err

	case event.ChatJoin:
		p, err := decode[event.ChatRefPayload](d, envelope.Data)
		if err != nil {
			return err
		}
		return d.connections.Join(ctx, connID, chat.ChatID(p.ChatID))

	case event.ChatLeave:
		p, err := decode[event.ChatRefPayload](d, envelope.Data)
		if err != nil {
			return err
		}
		return d.connections.Leave(ctx, connID, chat.ChatID(p.ChatID))

	case event.MessageSend:
		p, err := decode[event.SendMessagePayload](d, envelope.Data)
		if err != nil {
			return err
		}
		_, err = d.messages.SendMessage(ctx, userID, toSendCommand(p))
		return err

	case event.MessageRead:
		p, err := decode[event.ChatRefPayload](d, envelope.Data)
		if err != nil {
			return err
		}
		_, err = d.messages.MarkRead(ctx, userID, chat.ChatID(p.ChatID))
		return err

	case event.MessageDelete:
		p, err := decode[event.MessageRefPayload](d, envelope.Data)
		if err != nil {
			return err
		}
		return d.messages.DeleteMessage(ctx, userID, p.MessageID)

	case event.Typing, event.StopTyping:
		p, err := decode[event.ChatRefPayload](d, envelope.Data)
		if err != nil {
			return err
		}
		return d.messages.Typing(ctx, connID, userID, chat.ChatID(p.ChatID), kind == event.Typing)

	case event.CallInitiate:
		p, err := decode[event.CallInitiatePayload](d, envelope.Data)
		if err != nil {
			return err
		}
		_, err = d.calls.Initiate(ctx, userID, p.RecipientID, call.MediaKind(p.Type))
		return err

	case event.CallAccept:
		p, err := decode[event.CallAcceptPayload](d, envelope.Data)
		if err != nil {
			return err
		}
		return d.calls.Accept(ctx, p.CallID, userID, p.Signal)

	case event.CallReject:
		p, err := decode[event.CallRejectPayload](d, envelope.Data)
		if err != nil {
			return err
		}
		return d.calls.Reject(ctx, p.CallID, userID, p.Reason)

	case event.CallEnd:
		p, err := decode[event.CallRefPayload](d, envelope.Data)
		if err != nil {
			return err
		}
		return d.calls.End(ctx, p.CallID, userID)

	case event.CallSignal:
		p, err := decode[event.CallSignalPayload](d, envelope.Data)
		if err != nil {
			return err
		}
		return d.calls.Signal(ctx, p.CallID, userID, p.Signal)

	case event.Unknown:
		return fmt.Errorf("%w: unknown event %q", errors.ErrValidation, envelope.Event)

	default:
		return fmt.Errorf("%w: unhandled event %q", errors.ErrInternal, envelope.Event)
	}
}

// fail reports err on the channel matching the event family. Authentication
// failures go to auth:error, call failures to call:error.
func (d *Dispatcher) fail(ctx context.Context, client *Client, kind event.InboundKind, envelope event.Envelope, err error) {
	code := errors.CodeOf(err)
	d.metrics.HandlerFailed(kind, string(code))
	if code == errors.CodeInternal {
		d.log.Error("Event handling failed", "conn_id", client.Conn.ID, "event", envelope.Event, "error", err)
	} else {
		d.log.Debug("Event refused", "conn_id", client.Conn.ID, "event", envelope.Event, "code", code, "error", err)
	}
	message := errors.PublicMessage(err)

	switch {
	case kind == event.Auth:
		d.reply(ctx, client, event.New(event.AuthError, event.MessageOnlyPayload{Message: message}))
	case kind.IsCall():
		d.reply(ctx, client, event.New(event.CallError, event.CallErrorPayload{
			CallID:  callIDOf(envelope.Data),
			Code:    string(code),
			Message: message,
		}))
	default:
		d.reply(ctx, client, event.New(event.Error, event.ErrorPayload{
			Event:   envelope.Event,
			Code:    string(code),
			Message: message,
		}))
	}
}

func (d *Dispatcher) reply(ctx context.Context, client *Client, e event.Outbound) {
	d.hub.SendToConnection(ctx, client.Conn.ID, e)
}

func decode[T any](d *Dispatcher, data json.RawMessage) (T, error) {
	var payload T
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("%w: malformed payload: %v", errors.ErrValidation, err)
	}
	if err := d.validate.Struct(payload); err != nil {
		return payload, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return payload, nil
}

func callIDOf(data json.RawMessage) string {
	var ref struct {
		CallID string `json:"callId"`
	}
	_ = json.Unmarshal(data, &ref)
	return ref.CallID
}

func toSendCommand(p event.SendMessagePayload) chat.SendMessageCommand {
	cmd := chat.SendMessageCommand{
		ChatID:    chat.ChatID(p.ChatID),
		Text:      p.Text,
		Type:      chat.MessageType(p.Type),
		ReplyToID: p.ReplyTo,
	}
	if p.FileURL != "" {
		cmd.File = &chat.FileRef{
			URL:      p.FileURL,
			Name:     p.FileName,
			Size:     p.FileSize,
			MimeType: p.FileMimeType,
		}
	}
	return cmd
}
