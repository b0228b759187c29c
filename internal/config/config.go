package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains server configuration parameters.
type Config struct {
	LogLevel  int       `env:"LOG_LEVEL" envDefault:"0"`
	HTTP      HTTP      `envPrefix:"HTTP_"`
	GRPC      GRPC      `envPrefix:"GRPC_"`
	Database  Database  `envPrefix:"DATABASE_"`
	JWT       JWT       `envPrefix:"JWT_"`
	Bcrypt    Bcrypt    `envPrefix:"BCRYPT_"`
	Payment   Payment   `envPrefix:"PAYMENT_"`
	OAuth     OAuth     `envPrefix:"OAUTH_"`
	Invite    Invite    `envPrefix:"INVITE_"`
	RateLimit RateLimit `envPrefix:"RATE_LIMIT_"`
	Storage   Storage   `envPrefix:"MINIO_"`
	AdminKey  string    `env:"ADMIN_API_KEY"`
}

// HTTP contains public HTTP server parameters.
type HTTP struct {
	Address        string        `env:"ADDRESS" envDefault:":8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	SecureCookies  bool          `env:"SECURE_COOKIES" envDefault:"false"`
	TrustedProxies []string      `env:"TRUSTED_PROXIES" envSeparator:","`
}

// GRPC contains internal gRPC server parameters.
type GRPC struct {
	Port               string `env:"PORT" envDefault:"50051"`
	EnableHTTPS        bool   `env:"ENABLE_HTTPS" envDefault:"false"`
	CertFileName       string `env:"CERT_FILE_NAME" envDefault:"cert.pem"`
	PrivateKeyFileName string `env:"PRIVATE_KEY_FILE_NAME" envDefault:"key.pem"`
}

// Database contains database connection parameters. An empty DSN selects
// in-memory stores.
type Database struct {
	DSN string `env:"DSN"`
}

// JWT contains session token parameters.
type JWT struct {
	Secret string        `env:"SECRET" envDefault:"devsecret"`
	TTL    time.Duration `env:"TTL" envDefault:"4h"`
}

// Bcrypt contains password hashing parameters.
type Bcrypt struct {
	Cost int `env:"COST" envDefault:"10"`
}

// Payment contains payment collaborator parameters.
type Payment struct {
	Enabled       bool          `env:"ENABLED" envDefault:"false"`
	WebhookSecret string        `env:"WEBHOOK_SECRET"`
	APIURL        string        `env:"API_URL"`
	APIKey        string        `env:"API_KEY"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// OAuth contains external identity provider parameters.
type OAuth struct {
	FrontendRedirectURL string        `env:"FRONTEND_REDIRECT_URL" envDefault:"http://localhost:3000/auth/callback"`
	Timeout             time.Duration `env:"TIMEOUT" envDefault:"10s"`
	Google              OAuthProvider `envPrefix:"GOOGLE_"`
	GitHub              OAuthProvider `envPrefix:"GITHUB_"`
}

// OAuthProvider contains a single provider client registration.
type OAuthProvider struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURL  string   `env:"REDIRECT_URL"`
	AuthURL      string   `env:"AUTH_URL"`
	TokenURL     string   `env:"TOKEN_URL"`
	UserInfoURL  string   `env:"USERINFO_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// Enabled reports whether the provider has a client registration.
func (p OAuthProvider) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Invite contains invitation defaults.
type Invite struct {
	DefaultTTL time.Duration `env:"DEFAULT_TTL" envDefault:"336h"`
}

// RateLimit contains per-client limits for credential endpoints.
type RateLimit struct {
	RPS   float64 `env:"RPS" envDefault:"5"`
	Burst int     `env:"BURST" envDefault:"10"`
}

// Storage contains object storage parameters for the webhook archive.
// An empty endpoint disables archiving.
type Storage struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"accessgate-payment-events"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Payment.Enabled && cfg.Payment.WebhookSecret == "" {
		return nil, fmt.Errorf("failed to parse config: PAYMENT_WEBHOOK_SECRET is required when payment is enabled")
	}

	return &cfg, nil
}
