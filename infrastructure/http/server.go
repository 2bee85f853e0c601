// Package http serves the REST surface and mounts the websocket endpoint on
// the same Fiber application.
package http

import (
	"chat-hub/auth"
	"chat-hub/contract"
	"chat-hub/errors"
	"chat-hub/infrastructure/ws"
	"chat-hub/observability"
	"chat-hub/services"
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type Config struct {
	ReadTimeout     time.Duration
	AllowedOrigins  string
	MaxUploadSize   int64
	UploadDir       string
	UploadURLPrefix string
	AccessLog       bool
}

// Dependencies are the services reachable over HTTP. Files, Metrics,
// Monitoring and WebSocket are optional.
type Dependencies struct {
	Auth        services.IAuthService
	Users       services.IUserService
	Chats       services.IChatService
	Messages    services.IMessageService
	Connections services.IConnectionService
	Files       services.IFileService
	Verifier    contract.TokenVerifier
	Metrics     *observability.Metrics
	Monitoring  *observability.MonitoringManager
	WebSocket   *ws.Handler
}

type Server struct {
	log      *slog.Logger
	app      *fiber.App
	deps     Dependencies
	validate *validator.Validate
}

func NewServer(log *slog.Logger, deps Dependencies, cfg Config) *Server {
	bodyLimit := fiber.DefaultBodyLimit
	if cfg.MaxUploadSize > 0 {
		bodyLimit = int(cfg.MaxUploadSize) + 1<<20
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
		ReadTimeout:           cfg.ReadTimeout,
		BodyLimit:             bodyLimit,
	})
	s := &Server{log: log, app: app, deps: deps, validate: validator.New()}

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Next: websocket.IsWebSocketUpgrade,
		}))
	}
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowedOrigins}))

	app.Get("/health", s.health)
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}
	if deps.WebSocket != nil {
		deps.WebSocket.Register(app)
	}
	if cfg.UploadDir != "" {
		app.Static(cfg.UploadURLPrefix, cfg.UploadDir)
	}

	api := app.Group("/api", auth.Middleware(deps.Verifier))
	api.Post("/auth/register", s.register)
	api.Post("/auth/login", s.login)

	api.Get("/auth/profile", s.me)
	api.Put("/auth/profile", s.updateProfile)

	api.Get("/users/me", s.me)
	api.Get("/users/online", s.onlineUsers)
	api.Get("/users/search", s.searchUsers)
	api.Get("/users/:id", s.userProfile)

	api.Get("/chats", s.listChats)
	api.Post("/chats", s.createChat)
	api.Get("/chats/:id", s.getChat)
	api.Put("/chats/:id", s.renameChat)
	api.Delete("/chats/:id", s.deleteChat)
	api.Post("/chats/:id/users", s.addMember)
	api.Delete("/chats/:id/users/:userId", s.removeMember)
	api.Get("/chats/:id/messages", s.history)
	api.Get("/chats/:id/messages/search", s.search)

	api.Put("/messages/read/:chatId", s.markRead)
	api.Delete("/messages/:id", s.deleteMessage)

	api.Post("/files", s.upload)
	api.Get("/files", s.listFiles)
	api.Get("/files/:id", s.getFile)
	api.Delete("/files/:id", s.deleteFile)
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.log.Info("HTTP server listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler turns any returned error into a JSON body with the matching
// status. Domain errors are classified, Fiber errors keep their status.
func errorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, message := errors.CodeOf(err), errors.PublicMessage(err)
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code, message = codeOfStatus(fe.Code), fe.Message
		} else {
			_ = errors.As(errors.MapToFiberError(err), &fe)
		}
		if fe.Code >= fiber.StatusInternalServerError {
			log.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
		} else {
			log.Debug("Request refused", "method", c.Method(), "path", c.Path(), "status", fe.Code, "error", err)
		}
		return c.Status(fe.Code).JSON(errorResponse{Code: string(code), Message: message})
	}
}

func codeOfStatus(status int) errors.Code {
	switch status {
	case fiber.StatusNotFound:
		return errors.CodeNotFound
	case fiber.StatusForbidden:
		return errors.CodeForbidden
	case fiber.StatusUnauthorized:
		return errors.CodeUnauthorized
	case fiber.StatusConflict:
		return errors.CodeConflict
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUpgradeRequired:
		return errors.CodeValidation
	case fiber.StatusTooManyRequests:
		return errors.CodeRateLimited
	}
	return errors.CodeInternal
}
