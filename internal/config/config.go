package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port           int    `env:"PORT" envDefault:"8080"`
	DatabaseURL    string `env:"DATABASE_URL,required"`
	RedisURL       string `env:"REDIS_URL,required"`
	JWTSecret      string `env:"JWT_SECRET,required"`
	AllowedOrigin  string `env:"ALLOWED_ORIGIN" envDefault:""`
	MinioEndpoint  string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"chatapp-media"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL" envDefault:""`
	SendRatePerMin int    `env:"SEND_RATE_PER_MIN" envDefault:"120"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if c.AllowedOrigin == "" {
			log.Warn().Msg("ALLOWED_ORIGIN is empty in production: websocket origin checks disabled")
		}
		if !c.MinioUseSSL {
			log.Warn().Msg("MINIO_USE_SSL is false in production: attachment traffic is unencrypted")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
