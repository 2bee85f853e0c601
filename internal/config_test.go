package internal

import (
	"chat-hub/auth"
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		PresenceBroadcast:   "both",
		JwtSecret:           "a-test-secret-long-enough-for-hs256",
		MaxMessageLength:    4000,
		ModerationCharacter: "*",
		Argon2MemoryKiB:     64 * 1024,
		Argon2Iterations:    3,
		Argon2Parallelism:   2,
	}
}

func TestConfig_Defaults_From_Environ(t *testing.T) {
	req := require.New(t)

	// Given only the required keys
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("BLUGE_FILEPATH", t.TempDir())
	t.Setenv("JWT_SECRET", "a-test-secret-long-enough-for-hs256")
	t.Setenv("CALL_RING_TIMEOUT", "5s")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)

	// Then every other key falls back to its default
	req.Equal(3000, config.Port)
	req.Equal("both", config.PresenceBroadcast)
	req.True(config.CloseSupersededConnections)
	req.Equal(5*time.Second, config.CallRingTimeout)
	req.Equal(24*time.Hour, config.AuthTokenDuration)
	req.Equal(auth.DefaultArgon2Params(), config.Argon2())
	req.NoError(config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown presence mode", mutate: func(c *Config) { c.PresenceBroadcast = "all" }, wantErr: "PRESENCE_BROADCAST"},
		{name: "short secret", mutate: func(c *Config) { c.JwtSecret = "short" }, wantErr: "JWT_SECRET"},
		{name: "negative burst", mutate: func(c *Config) { c.EventBurst = -1 }, wantErr: "EVENT_BURST"},
		{name: "no message length", mutate: func(c *Config) { c.MaxMessageLength = 0 }, wantErr: "MAX_MESSAGE_LENGTH"},
		{name: "argon2 without parallelism", mutate: func(c *Config) { c.Argon2Parallelism = 0 }, wantErr: "ARGON2_"},
		{
			name: "moderation with a word as character",
			mutate: func(c *Config) {
				c.ModerationEnabled = true
				c.ModerationCharacter = "**"
			},
			wantErr: "MODERATION_CHARACTER",
		},
		{
			name:   "moderation character ignored when disabled",
			mutate: func(c *Config) { c.ModerationCharacter = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.wantErr == "" {
				req.NoError(err)
				return
			}
			req.ErrorContains(err, tt.wantErr)
		})
	}
}

func TestConfig_Origins_Trims_Entries(t *testing.T) {
	req := require.New(t)
	config := Config{AllowedOrigins: " http://a.test , ,http://b.test"}
	req.Equal("http://a.test,http://b.test", config.Origins())
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)
	r, err := CharacterRune("#")
	req.NoError(err)
	req.Equal('#', r)

	_, err = CharacterRune("")
	req.Error(err)
}
