package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type APIConfig struct {
	Addr            string        `env:"LIFESIM_API_ADDR" envDefault:":8080"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	SQLitePath      string        `env:"LIFESIM_SQLITE_PATH" envDefault:"lifesim.db"`
	EventsChannel   string        `env:"LIFESIM_EVENTS_CHANNEL" envDefault:"lifesim_events"`
	CountriesFile   string        `env:"LIFESIM_COUNTRIES_FILE"`
	DefaultCountry  string        `env:"LIFESIM_DEFAULT_COUNTRY" envDefault:"us"`
	StarterCash     int64         `env:"LIFESIM_STARTER_CASH" envDefault:"25000"`
	ProposalTTL     int           `env:"LIFESIM_PROPOSAL_TTL_QUARTERS" envDefault:"4"`
	Concurrency     int           `env:"LIFESIM_QUARTER_CONCURRENCY" envDefault:"8"`
	ReportCacheSize int           `env:"LIFESIM_REPORT_CACHE_SIZE" envDefault:"256"`
	AdminKey        string        `env:"LIFESIM_ADMIN_KEY"`
	RequestTimeout  time.Duration `env:"LIFESIM_REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LIFESIM_LOG_LEVEL" envDefault:"info"`
}

type WorkerConfig struct {
	APIBaseURL   string        `env:"LIFESIM_API_BASE_URL" envDefault:"http://localhost:8080"`
	AdminKey     string        `env:"LIFESIM_ADMIN_KEY"`
	QuarterEvery time.Duration `env:"LIFESIM_QUARTER_EVERY" envDefault:"10m"`
	RunOnce      bool          `env:"LIFESIM_WORKER_RUN_ONCE" envDefault:"false"`
	LogLevel     string        `env:"LIFESIM_LOG_LEVEL" envDefault:"info"`
}

type CLIConfig struct {
	APIBaseURL string `env:"LSIM_API_BASE_URL" envDefault:"http://localhost:8080"`
	ActorID    string `env:"LSIM_ACTOR_ID"`
	AdminKey   string `env:"LIFESIM_ADMIN_KEY"`
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.DefaultCountry = strings.ToLower(strings.TrimSpace(cfg.DefaultCountry))
	if cfg.DatabaseURL == "" && strings.TrimSpace(cfg.SQLitePath) == "" {
		return cfg, fmt.Errorf("DATABASE_URL or LIFESIM_SQLITE_PATH is required")
	}
	if cfg.ProposalTTL < 0 {
		return cfg, fmt.Errorf("LIFESIM_PROPOSAL_TTL_QUARTERS must be >= 0")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.QuarterEvery <= 0 {
		return cfg, fmt.Errorf("LIFESIM_QUARTER_EVERY must be positive")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	if err := env.Parse(&cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.ActorID = strings.TrimSpace(cfg.ActorID)
	return cfg
}

// ParseLevel maps a LIFESIM_LOG_LEVEL value to a slog level, defaulting to
// info.
func ParseLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
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
