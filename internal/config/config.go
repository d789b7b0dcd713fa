package config

import (
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	Database  Database  `envPrefix:"DATABASE_"`
	Mongo     Mongo     `envPrefix:"MONGO_"`
	Redis     Redis     `envPrefix:"REDIS_"`
	Razorpay  Razorpay  `envPrefix:"RAZORPAY_"`
	Platform  Platform  `envPrefix:"PLATFORM_"`
	Ledger    Ledger    `envPrefix:"LEDGER_"`
	Auth      Auth      `envPrefix:"AUTH_"`
	RateLimit RateLimit `envPrefix:"RATE_LIMIT_"`
	Cache     Cache     `envPrefix:"CACHE_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

// Database selects the order/certificate store. Driver is one of sqlite,
// mysql or mongo; for mongo the Mongo section is used instead of URL.
type Database struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	URL    string `env:"URL" envDefault:"file:craftchain.db?cache=shared"`
}

type Mongo struct {
	URI      string `env:"URI" envDefault:"mongodb://localhost:27017"`
	Database string `env:"DATABASE" envDefault:"craftchain"`
}

// Redis is optional. With an empty Addr the service uses in-process locks
// and cache, which is only correct for a single instance.
type Redis struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	LockTTL  time.Duration `env:"LOCK_TTL" envDefault:"45s"`
}

type Razorpay struct {
	BaseApiURL    string        `env:"BASE_API_URL" envDefault:"https://api.razorpay.com"`
	KeyID         string        `env:"KEY_ID"`
	KeySecret     string        `env:"KEY_SECRET"`
	WebhookSecret string        `env:"WEBHOOK_SECRET"`
	Currency      string        `env:"CURRENCY" envDefault:"INR"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type Platform struct {
	Name       string          `env:"NAME" envDefault:"CraftChain"`
	FeePercent decimal.Decimal `env:"FEE_PERCENT" envDefault:"5"`
}

type Ledger struct {
	// Mode is "simulated" or "http".
	Mode            string        `env:"MODE" envDefault:"simulated"`
	BaseURL         string        `env:"BASE_URL"`
	APIKey          string        `env:"API_KEY"`
	ContractAddress string        `env:"CONTRACT_ADDRESS" envDefault:"0x0000000000000000000000000000000000000000"`
	Network         string        `env:"NETWORK" envDefault:"polygon-amoy"`
	IssuerIdentity  string        `env:"ISSUER_IDENTITY" envDefault:"CraftChain Platform"`
	PlatformAddress string        `env:"PLATFORM_ADDRESS" envDefault:"0x0000000000000000000000000000000000000000"`
	OwnerPolicy     string        `env:"OWNER_POLICY" envDefault:"platform"`
	ExplorerURL     string        `env:"EXPLORER_URL" envDefault:"https://amoy.polygonscan.com"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	MintTimeout     time.Duration `env:"MINT_TIMEOUT" envDefault:"30s"`
}

// Auth signs and checks bearer tokens. With an empty JWTSecret no tokens are
// issued and every request is anonymous.
type Auth struct {
	JWTSecret  string        `env:"JWT_SECRET"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"12"`
}

type RateLimit struct {
	RPS   float64 `env:"RPS" envDefault:"5"`
	Burst int     `env:"BURST" envDefault:"10"`
}

type Cache struct {
	ProductTTL time.Duration `env:"PRODUCT_TTL" envDefault:"5m"`
}
