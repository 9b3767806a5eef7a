package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTP     HTTP   `yaml:"http"`
	Game     Game   `yaml:"game"`
}

type HTTP struct {
	Addr              string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout       time.Duration `yaml:"read-timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown-timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
	HeartbeatInterval time.Duration `yaml:"heartbeat-interval" env:"HTTP_HEARTBEAT_INTERVAL" env-default:"15s"`
}

type Game struct {
	// TurnFromSnapshot recomputes whose turn it is when jumping to a history
	// entry. Off by default: jumping only changes the displayed board.
	TurnFromSnapshot bool `yaml:"turn-from-snapshot" env:"GAME_TURN_FROM_SNAPSHOT" env-default:"false"`
}

// Load reads the yaml file at path, then applies environment overrides.
// An empty path reads the environment only.
func Load(path string) (*Config, error) {
	config := &Config{}

	if path == "" {
		if err := cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("unable to read environment: %w", err)
		}
		return config, nil
	}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	return config, nil
}

// MustLoad - like Load, but panics on error.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

// SlogLevel maps LogLevel onto slog levels; unknown values mean info.
func (that *Config) SlogLevel() slog.Level {
	switch strings.ToLower(that.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
