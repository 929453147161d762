package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port           string `env:"PORT" envDefault:"3000"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:5173"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"consult"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`

	JWTSecret string `env:"JWT_SECRET,required"`

	UserRatePerMinute       float64 `env:"USER_RATE_PER_MINUTE" envDefault:"4"`
	PartnerRatePerMinute    float64 `env:"PARTNER_RATE_PER_MINUTE" envDefault:"3"`
	DefaultMaxConversations int     `env:"DEFAULT_MAX_CONVERSATIONS" envDefault:"1"`

	GenAIAPIKey    string        `env:"GOOGLE_AI_STUDIO_API_KEY"`
	SummaryModel   string        `env:"SUMMARY_MODEL" envDefault:"gemini-1.5-flash"`
	SummaryTimeout time.Duration `env:"SUMMARY_TIMEOUT" envDefault:"30s"`
	SummaryWorkers int           `env:"SUMMARY_WORKERS" envDefault:"2"`

	GCSBucketName string        `env:"GCS_BUCKET_NAME"`
	SignedURLTTL  time.Duration `env:"SIGNED_URL_TTL" envDefault:"15m"`

	StripeSecretKey      string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret  string `env:"STRIPE_WEBHOOK_SECRET"`
	CreditUnitPriceCents int64  `env:"CREDIT_UNIT_PRICE_CENTS" envDefault:"10"`
	CheckoutSuccessURL   string `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:5173/credits/success?session_id={CHECKOUT_SESSION_ID}"`
	CheckoutCancelURL    string `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:5173/credits/cancel"`

	WSPingInterval time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	WSSendBuffer   int           `env:"WS_SEND_BUFFER" envDefault:"64"`
}

// Load reads an optional .env file and parses the environment into Config.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load(envFiles...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT_SECRET must not be blank")
	}
	if cfg.UserRatePerMinute < 0 || cfg.PartnerRatePerMinute < 0 {
		return nil, fmt.Errorf("per-minute rates must not be negative")
	}
	if cfg.DefaultMaxConversations < 1 {
		return nil, fmt.Errorf("DEFAULT_MAX_CONVERSATIONS must be at least 1")
	}
	if cfg.SummaryWorkers < 1 {
		cfg.SummaryWorkers = 1
	}
	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) Origins() []string {
	return strings.Split(c.AllowedOrigins, ",")
}

func (c *Config) UserRate() decimal.Decimal {
	return decimal.NewFromFloat(c.UserRatePerMinute)
}

func (c *Config) PartnerRate() decimal.Decimal {
	return decimal.NewFromFloat(c.PartnerRatePerMinute)
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
