package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/wricardo/sessionrelay/logging"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds everything the relay process needs to start
type Config struct {
	Host      string
	Port      int
	StaticDir string

	LogLevel string
	LogFile  string

	// Per-connection transport limits
	SendBuffer      int
	MaxMessageBytes int64
	WriteWait       time.Duration
	PongWait        time.Duration

	// Inbound frames per second per connection; 0 disables limiting
	MessagesPerSecond float64
	MessageBurst      int

	NgrokEnabled   bool
	NgrokAuthToken string
	NgrokDomain    string
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		Host:              "localhost",
		Port:              8080,
		StaticDir:         "public",
		LogLevel:          "INFO",
		SendBuffer:        256,
		MaxMessageBytes:   64 << 10,
		WriteWait:         10 * time.Second,
		PongWait:          60 * time.Second,
		MessagesPerSecond: 0,
		MessageBurst:      20,
	}
}

// Addr returns host:port
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PingPeriod is how often the server pings a peer. It must be shorter than
// PongWait.
func (c Config) PingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// Load reads the given .env files (".env" when none are named) into the
// process environment and builds a Config from defaults plus RELAY_*
// variables. Missing .env files are not an error.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every field is usable
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("%w: send buffer must be positive", ErrInvalidConfig)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	}
	if c.WriteWait <= 0 || c.PongWait <= 0 {
		return fmt.Errorf("%w: write and pong waits must be positive", ErrInvalidConfig)
	}
	if c.MessagesPerSecond < 0 {
		return fmt.Errorf("%w: messages per second cannot be negative", ErrInvalidConfig)
	}
	if c.MessagesPerSecond > 0 && c.MessageBurst <= 0 {
		return fmt.Errorf("%w: message burst must be positive when rate limiting", ErrInvalidConfig)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Host, "RELAY_HOST")
	setString(&c.StaticDir, "RELAY_STATIC_DIR")
	setString(&c.LogLevel, "RELAY_LOG_LEVEL")
	setString(&c.LogFile, "RELAY_LOG_FILE")
	setString(&c.NgrokDomain, "NGROK_DOMAIN")

	// Support both naming conventions for the ngrok token
	setString(&c.NgrokAuthToken, "NGROK_AUTH_TOKEN")
	setString(&c.NgrokAuthToken, "NGROK_AUTHTOKEN")

	if err := setInt(&c.Port, "RELAY_PORT"); err != nil {
		return err
	}
	if err := setInt(&c.SendBuffer, "RELAY_SEND_BUFFER"); err != nil {
		return err
	}
	if err := setInt(&c.MessageBurst, "RELAY_MESSAGE_BURST"); err != nil {
		return err
	}
	if raw, ok := os.LookupEnv("RELAY_MAX_MESSAGE_BYTES"); ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return envError("RELAY_MAX_MESSAGE_BYTES", err)
		}
		c.MaxMessageBytes = v
	}
	if raw, ok := os.LookupEnv("RELAY_MESSAGES_PER_SECOND"); ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return envError("RELAY_MESSAGES_PER_SECOND", err)
		}
		c.MessagesPerSecond = v
	}
	if err := setDuration(&c.WriteWait, "RELAY_WRITE_WAIT"); err != nil {
		return err
	}
	if err := setDuration(&c.PongWait, "RELAY_PONG_WAIT"); err != nil {
		return err
	}
	if raw, ok := os.LookupEnv("NGROK_ENABLED"); ok {
		c.NgrokEnabled = raw == "true" || raw == "1"
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return envError(key, err)
	}
	*dst = v
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return envError(key, err)
	}
	*dst = v
	return nil
}

func envError(key string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
}
