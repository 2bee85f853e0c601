package main

import (
	"chat-hub/auth"
	"chat-hub/domain/chat"
	"chat-hub/errors"
	"chat-hub/infrastructure/storage"
	"chat-hub/runtime"
	"chat-hub/services"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config reuses the server storage keys so the seed lands where the hub reads.
type Config struct {
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH,required=true"`
	JwtSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	Users             string        `env:"SEED_USERS,default=alice bob carol"`
	Password          string        `env:"SEED_PASSWORD,default=Correct-Horse-42"`
	MaxMessageLength  int           `env:"MAX_MESSAGE_LENGTH,default=4000"`
	LimitMessages     int           `env:"LIMIT_MESSAGES,default=50"`
	Argon2MemoryKiB   uint32        `env:"ARGON2_MEMORY_KIB,default=65536"`
	Argon2Iterations  uint32        `env:"ARGON2_ITERATIONS,default=3"`
	Argon2Parallelism uint8         `env:"ARGON2_PARALLELISM,default=2"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seed terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run creates the demo users, a global room, a private chat between the
// first two users and a few messages, then prints a token per user.
func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	names := strings.Fields(config.Users)
	if len(names) < 2 {
		return exitConfig, fmt.Errorf("SEED_USERS needs at least two users, got %q", config.Users)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer db.Close()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer writer.Close()

	users := storage.NewUserRepository(db, logger)
	chats := storage.NewChatRepository(db, logger)
	messages := storage.NewMessageRepository(db, logger, config.LimitMessages)
	index := storage.NewMessageIndex(writer, logger)
	tokens := auth.NewTokenManager(config.JwtSecret, config.AuthTokenDuration)
	params := auth.DefaultArgon2Params()
	params.MemoryKiB, params.Iterations, params.Parallelism = config.Argon2MemoryKiB, config.Argon2Iterations, config.Argon2Parallelism
	passwords, err := auth.NewPasswordHasher(params)
	if err != nil {
		return exitConfig, err
	}

	// Nobody is connected: the hub only satisfies the services
	hub := runtime.NewHub(logger, nil)
	authService := services.NewAuthService(users, tokens, passwords)
	chatService := services.NewChatService(logger, hub, chats, users, messages, index)
	messageService := services.NewMessageService(logger, hub, users, chats, messages, index, nil, nil, config.MaxMessageLength)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"User", "Email", "ID", "Token"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)

	sessions := make([]services.Session, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		email := name + "@chat-hub.local"
		session, err := authService.Register(name, email, config.Password)
		if errors.Is(err, errors.ErrUserAlreadyExists) {
			session, err = authService.Login(email, config.Password)
		}
		if err != nil {
			return exitRuntime, fmt.Errorf("seeding user %s: %w", name, err)
		}
		sessions = append(sessions, session)
		table.Append([]string{session.User.Username, email, session.User.ID, session.Token.String()})
	}

	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.User.ID)
	}
	first, second := sessions[0].User, sessions[1].User

	general, err := chatService.CreateChat(ctx, first.ID, chat.CreateChatCommand{Name: "General", Type: chat.Global, MemberIDs: ids})
	if err != nil {
		return exitRuntime, fmt.Errorf("seeding global chat: %w", err)
	}
	private, err := chatService.CreateChat(ctx, first.ID, chat.CreateChatCommand{Type: chat.Private, MemberIDs: []string{second.ID}})
	if err != nil {
		return exitRuntime, fmt.Errorf("seeding private chat: %w", err)
	}

	seeds := []struct {
		sender string
		chatID chat.ChatID
		text   string
	}{
		{first.ID, general.ID, fmt.Sprintf("Welcome to %s!", general.Name)},
		{second.ID, general.ID, "Hello everyone"},
		{first.ID, private.ID, fmt.Sprintf("Hi %s, call me when you're around", second.Username)},
	}
	for _, seed := range seeds {
		if _, err := messageService.SendMessage(ctx, seed.sender, chat.SendMessageCommand{ChatID: seed.chatID, Text: seed.text}); err != nil {
			return exitRuntime, fmt.Errorf("seeding message: %w", err)
		}
	}

	table.Render()
	logger.Info("Seed done", "users", len(sessions), "global_chat", general.ID, "private_chat", private.ID)
	return exitOK, nil
}
