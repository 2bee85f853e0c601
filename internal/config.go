package internal

import (
	"chat-hub/auth"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=3000"`
	GrpcPort int    `env:"GRPC_PORT,default=50051"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath   string        `env:"BLUGE_FILEPATH,required=true"`
	UploadDir       string        `env:"UPLOAD_DIR,default=./uploads"`
	MaxUploadSize   int64         `env:"MAX_UPLOAD_SIZE,default=10485760"`
	LimitMessages   int           `env:"LIMIT_MESSAGES,default=50"`
	DebugPort       int           `env:"DEBUG_PORT,default=8081"`
	DebugEndpoint   string        `env:"DEBUG_ENDPOINT,default=/inspect"`
	AllowedOrigins  string        `env:"CORS_ALLOWED_ORIGINS,default=*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	JwtSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	AuthTimeout       time.Duration `env:"AUTH_TIMEOUT,default=30s"`
	Argon2MemoryKiB   uint32        `env:"ARGON2_MEMORY_KIB,default=65536"`
	Argon2Iterations  uint32        `env:"ARGON2_ITERATIONS,default=3"`
	Argon2Parallelism uint8         `env:"ARGON2_PARALLELISM,default=2"`

	ConnectionBufferSize       int     `env:"CONNECTION_BUFFER_SIZE,default=256"`
	PresenceBroadcast          string  `env:"PRESENCE_BROADCAST,default=both"`
	CloseSupersededConnections bool    `env:"CLOSE_SUPERSEDED_CONNECTIONS,default=true"`
	EventRatePerSecond         float64 `env:"EVENT_RATE_PER_SECOND,default=20"`
	EventBurst                 int     `env:"EVENT_BURST,default=40"`
	MaxMessageLength           int     `env:"MAX_MESSAGE_LENGTH,default=4000"`

	CallRingTimeout        time.Duration `env:"CALL_RING_TIMEOUT,default=30s"`
	CallTombstoneRetention time.Duration `env:"CALL_TOMBSTONE_RETENTION,default=10m"`

	ReaperInterval  time.Duration `env:"REAPER_INTERVAL,default=5s"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=15s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`

	ModerationEnabled   bool   `env:"MODERATION_ENABLED,default=false"`
	ModerationCharacter string `env:"MODERATION_CHARACTER,default=*"`
}

// Validate checks the rules go-env can't express with tags.
func (c Config) Validate() error {
	switch c.PresenceBroadcast {
	case "delta", "full", "both":
	default:
		return fmt.Errorf("PRESENCE_BROADCAST must be one of delta, full or both, got %q", c.PresenceBroadcast)
	}
	if c.ModerationEnabled {
		if _, err := CharacterRune(c.ModerationCharacter); err != nil {
			return err
		}
	}
	if len(c.JwtSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes long")
	}
	if c.EventRatePerSecond < 0 || c.EventBurst < 0 {
		return fmt.Errorf("EVENT_RATE_PER_SECOND and EVENT_BURST can't be negative")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}
	if err := c.Argon2().Validate(); err != nil {
		return fmt.Errorf("ARGON2_* settings: %w", err)
	}
	return nil
}

// Argon2 returns the password hashing costs, salt and key sizes stay fixed.
func (c Config) Argon2() auth.Argon2Params {
	params := auth.DefaultArgon2Params()
	params.MemoryKiB = c.Argon2MemoryKiB
	params.Iterations = c.Argon2Iterations
	params.Parallelism = c.Argon2Parallelism
	return params
}

// Origins splits CORS_ALLOWED_ORIGINS into the list fiber's cors middleware expects.
func (c Config) Origins() string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
