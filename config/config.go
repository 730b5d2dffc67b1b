package config

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spooky-finn/orderbook-sync/domain"
)

type Config struct {
	App    AppConfig    `envPrefix:"APP_"`
	Rest   RestConfig   `envPrefix:"REST_"`
	Stream StreamConfig `envPrefix:"STREAM_"`
	Book   BookConfig   `envPrefix:"BOOK_"`
}

type AppConfig struct {
	Name        string `env:"NAME" envDefault:"orderbook-sync"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DebugMode   bool   `env:"DEBUG_MODE" envDefault:"false"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8090"`

	// tracked on start
	Symbols    []string `env:"SYMBOLS" envSeparator:"," envDefault:"AAPL,GOOG"`
	MaxSymbols int      `env:"MAX_SYMBOLS" envDefault:"20"`

	// a random viewer id is generated when empty
	UserID string `env:"USER_ID"`
}

type RestConfig struct {
	BaseURL      string        `env:"BASE_URL" envDefault:"http://localhost:8080/api"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"5s"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	TradesLimit  int           `env:"TRADES_LIMIT" envDefault:"50"`
}

type StreamConfig struct {
	Enabled          bool          `env:"ENABLED" envDefault:"true"`
	Endpoint         string        `env:"ENDPOINT" envDefault:"ws://localhost:8080/ws/websocket"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"5s"`
	ReconnectMin     time.Duration `env:"RECONNECT_MIN" envDefault:"5s"`
	ReconnectMax     time.Duration `env:"RECONNECT_MAX" envDefault:"60s"`
	ReconnectFactor  float64       `env:"RECONNECT_FACTOR" envDefault:"2"`
	Heartbeat        time.Duration `env:"HEARTBEAT" envDefault:"4s"`
}

type BookConfig struct {
	TapeCapacity int `env:"TAPE_CAPACITY" envDefault:"50"`
	DisplayDepth int `env:"DISPLAY_DEPTH" envDefault:"10"`
}

// Load reads the environment, optionally seeded from a .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.App.UserID == "" {
		cfg.App.UserID = RandomUserID()
	}
	return cfg, nil
}

func (c *Config) validate() error {
	symbols, err := domain.ParseSymbolList(strings.Join(c.App.Symbols, ","))
	if err != nil {
		return fmt.Errorf("APP_SYMBOLS: %w", err)
	}
	c.App.Symbols = symbols

	if c.App.MaxSymbols < len(c.App.Symbols) {
		return fmt.Errorf("APP_MAX_SYMBOLS is below the number of APP_SYMBOLS")
	}
	if c.Rest.Timeout <= 0 {
		return fmt.Errorf("REST_TIMEOUT must be positive")
	}
	if c.Rest.PollInterval <= 0 {
		return fmt.Errorf("REST_POLL_INTERVAL must be positive")
	}
	if c.Book.TapeCapacity <= 0 {
		return fmt.Errorf("BOOK_TAPE_CAPACITY must be positive")
	}
	if c.Stream.ReconnectMax < c.Stream.ReconnectMin {
		return fmt.Errorf("STREAM_RECONNECT_MAX is below STREAM_RECONNECT_MIN")
	}
	return nil
}

const userIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomUserID returns an id in the user-xxxxxxxxx form the dashboard uses.
func RandomUserID() string {
	b := make([]byte, 9)
	for i := range b {
		b[i] = userIDAlphabet[rand.Intn(len(userIDAlphabet))]
	}
	return "user-" + string(b)
}
