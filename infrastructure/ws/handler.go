package ws

import (
	"chat-hub/services"
	"chat-hub/sink"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const (
	maxFrameSize = 64 << 10
	closeGrace   = time.Second
)

type HandlerConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
}

// Handler upgrades HTTP requests on /ws and pumps frames between the socket
// and the hub. Each connection gets a reader running the dispatcher and a
// writer draining its sink.
type Handler struct {
	log         *slog.Logger
	connections services.IConnectionService
	dispatcher  *Dispatcher
	cfg         HandlerConfig
}

func NewHandler(log *slog.Logger, connections services.IConnectionService, dispatcher *Dispatcher, cfg HandlerConfig) *Handler {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Handler{log: log, connections: connections, dispatcher: dispatcher, cfg: cfg}
}

// Register mounts the websocket route on app.
func (h *Handler) Register(app fiber.Router) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(h.serve))
}

func (h *Handler) serve(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := sink.NewConnectionSink(h.cfg.BufferSize)
	conn := h.connections.Connect(out)
	client := h.dispatcher.NewClient(conn)
	log := h.log.With("conn_id", conn.ID)
	log.Debug("Websocket opened", "remote_addr", c.RemoteAddr().String())

	written := make(chan struct{})
	go func() {
		defer close(written)
		h.write(c, out, log)
	}()

	c.SetReadLimit(maxFrameSize)
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("Websocket closed by client")
			} else {
				log.Debug("Websocket read failed", "error", err)
			}
			break
		}
		h.dispatcher.Dispatch(ctx, client, raw)
	}

	h.connections.Disconnect(ctx, conn.ID)
	<-written
}

// write drains the sink until it is closed. Events still queued at that
// point are flushed before the close frame so a superseded or reaped
// client learns why.
func (h *Handler) write(c *websocket.Conn, out *sink.ConnectionSink, log *slog.Logger) {
	defer func() {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		_ = c.Close()
	}()
	for {
		select {
		case e := <-out.Events():
			if err := h.send(c, e); err != nil {
				log.Debug("Websocket write failed", "event", e.Kind, "error", err)
				return
			}
		case <-out.Done():
			for {
				select {
				case e := <-out.Events():
					if err := h.send(c, e); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (h *Handler) send(c *websocket.Conn, e any) error {
	frame, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := c.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, frame)
}
