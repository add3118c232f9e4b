// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the full application configuration. Values come from environment
// variables; cmd/server loads a .env file first when one is present.
type Config struct {
	Server struct {
		Addr            string        `env:"SERVER_ADDR,default=:8080"`
		ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
		RateLimit       float64       `env:"SERVER_RATE_LIMIT,default=20"`
		RateBurst       int           `env:"SERVER_RATE_BURST,default=40"`
	}

	Database struct {
		URL string `env:"DATABASE_URL"`
	}

	Logging struct {
		Level      string `env:"LOG_LEVEL,default=info"`
		Format     string `env:"LOG_FORMAT,default=text"`
		Output     string `env:"LOG_OUTPUT,default=stdout"`
		FilePrefix string `env:"LOG_FILE_PREFIX,default=pocketdev"`
	}

	Generation struct {
		GeminiAPIKey string `env:"GEMINI_API_KEY"`
		GeminiModel  string `env:"GEMINI_MODEL,default=gemini-1.5-flash"`
	}

	Jobs struct {
		RefundWindow      time.Duration `env:"JOB_REFUND_WINDOW,default=10s"`
		CancelAckDeadline time.Duration `env:"JOB_CANCEL_ACK_DEADLINE,default=30s"`
		MaxClarifyRounds  int           `env:"CLARIFY_MAX_ROUNDS,default=5"`
	}

	Pricing struct {
		ConfigPath string `env:"PRICING_CONFIG"`
	}

	Uploads struct {
		Dir       string `env:"UPLOADS_DIR,default=./uploads"`
		PublicURL string `env:"UPLOADS_PUBLIC_URL,default=/uploads"`
	}
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
