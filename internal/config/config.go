// Package config loads process configuration from the environment (and an optional
// .env file) and holds the domain constants of the messaging core.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers understood by STORAGE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTIssuer string        `mapstructure:"JWT_ISSUER"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	CORSOrigins    string  `mapstructure:"CORS_ORIGINS"`
	HTTPRatePerSec float64 `mapstructure:"HTTP_RATE_PER_SEC"`
	HTTPRateBurst  int     `mapstructure:"HTTP_RATE_BURST"`

	WSEventsPerSec   float64       `mapstructure:"WS_EVENTS_PER_SEC"`
	WSEventsBurst    int           `mapstructure:"WS_EVENTS_BURST"`
	HandshakeTimeout time.Duration `mapstructure:"HANDSHAKE_TIMEOUT"`

	TypingTTL      time.Duration `mapstructure:"TYPING_TTL"`
	TypingThrottle time.Duration `mapstructure:"TYPING_THROTTLE"`
	IdempotencyTTL time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
}

// IsDevelopment reports whether the process runs with APP_ENV=development.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// AllowedOrigins splits CORS_ORIGINS on commas, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("STORAGE_DRIVER", DriverMemory)
	v.SetDefault("DATABASE_URL", "host=localhost user=user password=password dbname=socialdm port=5432 sslmode=disable")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "socialdm")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "socialdm")
	v.SetDefault("JWT_TTL", 72*time.Hour)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("HTTP_RATE_PER_SEC", 10.0)
	v.SetDefault("HTTP_RATE_BURST", 50)
	v.SetDefault("WS_EVENTS_PER_SEC", float64(DefaultWSEventsPerSec))
	v.SetDefault("WS_EVENTS_BURST", DefaultWSEventsBurst)
	v.SetDefault("HANDSHAKE_TIMEOUT", DefaultHandshakeTimeout)
	v.SetDefault("TYPING_TTL", DefaultTypingTTL)
	v.SetDefault("TYPING_THROTTLE", DefaultTypingThrottle)
	v.SetDefault("IDEMPOTENCY_TTL", DefaultIdempotencyTTL)
}

// Load reads an optional .env file and then the process environment.
// A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, which setDefaults covers.
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
