package main

import (
	"chat-hub/auth"
	"chat-hub/contract"
	"chat-hub/infrastructure/grpc/server"
	chathttp "chat-hub/infrastructure/http"
	"chat-hub/infrastructure/storage"
	"chat-hub/infrastructure/ws"
	"chat-hub/internal"
	"chat-hub/moderation"
	"chat-hub/observability"
	"chat-hub/runtime"
	"chat-hub/runtime/workers"
	"chat-hub/services"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Hub terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the hub and blocks until a signal or a server failure.
// Returning instead of exiting lets every defer release the stores.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// NotifyContext captures OS signals and cancels the workers.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (Badger, Bluge, uploads)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		url := fmt.Sprintf("http://localhost:%d%s", config.DebugPort, config.DebugEndpoint)
		logger.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(db, config.DebugPort, config.DebugEndpoint, storage.InspectMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	files, err := storage.NewFileStore(config.UploadDir, "/uploads", config.MaxUploadSize, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("upload directory: %w", err)
	}

	// 3. Repositories & moderation
	userRepository := storage.NewUserRepository(db, logger)
	chatRepository := storage.NewChatRepository(db, logger)
	messageRepository := storage.NewMessageRepository(db, logger, config.LimitMessages)
	messageIndex := storage.NewMessageIndex(blugeWriter, logger)
	fileRepository := storage.NewFileRepository(db, logger)
	tokens := auth.NewTokenManager(config.JwtSecret, config.AuthTokenDuration)
	passwords, err := auth.NewPasswordHasher(config.Argon2())
	if err != nil {
		return exitConfig, err
	}

	censor, err := buildCensor(config, logger)
	if err != nil {
		return exitConfig, err
	}

	// 4. Hub & services
	metrics := observability.NewMetrics()
	monitoring := observability.NewMonitoringManager(logger)
	hub := runtime.NewHub(logger, metrics)

	connectionService := services.NewConnectionService(logger, hub, userRepository, chatRepository, tokens, metrics, services.ConnectionPolicy{
		PresenceBroadcast: services.PresenceMode(config.PresenceBroadcast),
		CloseSuperseded:   config.CloseSupersededConnections,
		AuthTimeout:       config.AuthTimeout,
	})
	messageService := services.NewMessageService(
		logger, hub,
		userRepository, chatRepository, messageRepository, messageIndex,
		censor, metrics,
		config.MaxMessageLength,
	)
	callService := services.NewCallService(logger, hub, userRepository, metrics, config.CallRingTimeout, config.CallTombstoneRetention)
	defer callService.Close()
	connectionService.OnOffline(callService)

	dispatcher := ws.NewDispatcher(logger, hub, connectionService, messageService, callService, metrics, ws.RateLimit{
		PerSecond: config.EventRatePerSecond,
		Burst:     config.EventBurst,
	})
	httpServer := chathttp.NewServer(logger, chathttp.Dependencies{
		Auth:        services.NewAuthService(userRepository, tokens, passwords),
		Users:       services.NewUserService(logger, userRepository),
		Chats:       services.NewChatService(logger, hub, chatRepository, userRepository, messageRepository, messageIndex),
		Messages:    messageService,
		Connections: connectionService,
		Files:       services.NewFileService(logger, files, fileRepository),
		Verifier:    tokens,
		Metrics:     metrics,
		Monitoring:  monitoring,
		WebSocket:   ws.NewHandler(logger, connectionService, dispatcher, ws.HandlerConfig{BufferSize: config.ConnectionBufferSize}),
	}, chathttp.Config{
		AllowedOrigins:  config.Origins(),
		MaxUploadSize:   config.MaxUploadSize,
		UploadDir:       config.UploadDir,
		UploadURLPrefix: "/uploads",
		AccessLog:       logger.Enabled(ctx, slog.LevelDebug),
	})

	// 5. Supervision
	sup := workers.NewSupervisor(logger, metrics, config.RestartInterval)
	sup.Add(
		workers.NewTelemetryWorker(logger, hub, callService, monitoring, metrics, config.MetricInterval),
		workers.NewConnectionReaper(logger, connectionService, config.ReaperInterval),
		workers.NewCallReaper(logger, callService, config.ReaperInterval),
	)

	// 6. Listeners
	httpAddress := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpListener, err := net.Listen("tcp", httpAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", httpAddress, err)
	}
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	grpcListener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		_ = httpListener.Close()
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	admin := server.NewAdminServer(logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sup.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", httpAddress)
		if err := httpServer.Serve(httpListener); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting admin gRPC server", "address", grpcAddress)
		if err := admin.Serve(grpcListener); err != nil {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})
	admin.MarkServing()

	// 7. Wait for Stop or Error
	wait := gfshutdown.GracefulShutdown(context.Background(), config.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
		"grpc": func(ctx context.Context) error {
			admin.Stop()
			return nil
		},
		"workers": func(ctx context.Context) error {
			sup.Stop()
			return nil
		},
	})

	select {
	case code := <-wait:
		logger.Info("Shutdown signal received", "code", code)
	case <-gctx.Done():
		if ctx.Err() == nil {
			// A server failed before any signal
			stopAll(httpServer, admin, sup, config)
			return exitRuntime, g.Wait()
		}
		code := <-wait
		logger.Info("Shutdown signal received", "code", code)
	}

	if err := g.Wait(); err != nil {
		return exitRuntime, err
	}
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}

// buildCensor loads the embedded dictionaries when moderation is enabled.
// A nil Censor disables masking in the message router.
func buildCensor(config internal.Config, logger *slog.Logger) (contract.Censor, error) {
	if !config.ModerationEnabled {
		return nil, nil
	}
	char, err := internal.CharacterRune(config.ModerationCharacter)
	if err != nil {
		return nil, err
	}
	data, err := runtime.NewDefaultCensoredLoader().LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("censored words: %w", err)
	}
	moderator, err := moderation.NewModerator(data.Words, char, logger)
	if err != nil {
		return nil, fmt.Errorf("moderator: %w", err)
	}
	logger.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
	return moderator, nil
}

func stopAll(httpServer *chathttp.Server, admin *server.AdminServer, sup *workers.Supervisor, config internal.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	admin.Stop()
	sup.Stop()
}
