package main

import (
	"bufio"
	"chat-hub/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=ws://localhost:3000/ws"`
	Token     string `env:"CHAT_TOKEN,required=true"`
	ChatID    string `env:"CHAT_ID,required=true"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run authenticates on the hub, joins one chat, prints what it receives and
// sends every stdin line as a text message.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	if err := emit(conn, event.Auth, event.AuthPayload{Token: config.Token}); err != nil {
		return exitRuntime, err
	}
	if err := emit(conn, event.ChatJoin, event.ChatRefPayload{ChatID: config.ChatID}); err != nil {
		return exitRuntime, err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- receive(conn, log)
	}()
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			if err := emit(conn, event.MessageSend, event.SendMessagePayload{ChatID: config.ChatID, Text: text}); err != nil {
				errChan <- err
				return
			}
		}
	}()

	log.Info(fmt.Sprintf(">>> Connected to %s, chat %s (Ctrl+C to quit)", config.ServerURL, config.ChatID))

	select {
	case <-ctx.Done():
		log.Info("Stopping client...")
		return exitOK, nil
	case err := <-errChan:
		if ctx.Err() != nil {
			return exitOK, nil
		}
		return exitRuntime, err
	}
}

func emit(conn *websocket.Conn, kind event.InboundKind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(event.Envelope{Event: kind.String(), Data: data})
}

func receive(conn *websocket.Conn, log *slog.Logger) error {
	for {
		var envelope event.Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			return fmt.Errorf("stream error: %w", err)
		}
		render(envelope, log)
	}
}

func render(envelope event.Envelope, log *slog.Logger) {
	switch event.OutboundKind(envelope.Event) {
	case event.MessageReceive:
		var m event.MessageView
		if err := json.Unmarshal(envelope.Data, &m); err != nil {
			log.Warn("Unreadable message", "error", err)
			return
		}
		header := color.New(color.FgCyan).Render(fmt.Sprintf("[%s] %s:", m.CreatedAt.Format(time.TimeOnly), m.Sender.Username))
		fmt.Println(header, m.Text)
	case event.UserOnline, event.UserOffline:
		fmt.Println(color.New(color.FgGray).Render(fmt.Sprintf("%s %s", envelope.Event, envelope.Data)))
	case event.Error, event.AuthError:
		fmt.Println(color.New(color.FgRed).Render(fmt.Sprintf("%s %s", envelope.Event, envelope.Data)))
	default:
		log.Debug("Event received", "event", envelope.Event, "data", string(envelope.Data))
	}
}
