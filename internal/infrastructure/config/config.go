package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Niubiz        NiubizConfig        `mapstructure:"niubiz"`
	MercadoPago   MercadoPagoConfig   `mapstructure:"mercadopago"`
	Stripe        StripeConfig        `mapstructure:"stripe"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	CORS               CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

// PaymentConfig selects the active gateway and the knobs shared by every variant.
type PaymentConfig struct {
	Provider                string        `mapstructure:"provider"`
	SessionAmount           float64       `mapstructure:"session_amount"`
	DefaultCurrency         string        `mapstructure:"default_currency"`
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

// NiubizConfig holds the merchant credentials and protocol constants for Niubiz.
// AuthKey is sent verbatim in the Authorization header of the security call.
type NiubizConfig struct {
	AuthKey            string         `mapstructure:"auth_key"`
	MerchantID         string         `mapstructure:"merchant_id"`
	BaseURL            string         `mapstructure:"base_url"`
	Channel            string         `mapstructure:"channel"`
	CaptureType        string         `mapstructure:"capture_type"`
	Countable          bool           `mapstructure:"countable"`
	ClientIP           string         `mapstructure:"client_ip"`
	MerchantDefineData map[string]any `mapstructure:"merchant_define_data"`
}

type MercadoPagoConfig struct {
	AccessToken     string `mapstructure:"access_token"`
	PaymentMethodID string `mapstructure:"payment_method_id"`
	PayerEmail      string `mapstructure:"payer_email"`
}

type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

var supportedProviders = []string{"niubiz", "mercadopago", "stripe", "mock"}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PAYMENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/checkout")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the process-wide settings. Gateway credentials are deliberately not
// required here: each gateway call reports missing credentials on its own, before any
// request goes out.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_per_minute cannot be negative"))
	}
	if c.Server.CORS.AllowCredentials && slices.Contains(c.Server.CORS.AllowedOrigins, "*") {
		errs = append(errs, fmt.Errorf("server.cors.allow_credentials cannot be combined with a wildcard origin"))
	}
	if !isSupportedProvider(c.Payment.Provider) {
		errs = append(errs, fmt.Errorf("payment.provider must be one of %s, got %q",
			strings.Join(supportedProviders, ", "), c.Payment.Provider))
	}
	if c.Payment.SessionAmount <= 0 {
		errs = append(errs, fmt.Errorf("payment.session_amount must be positive"))
	}
	if c.Payment.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("payment.request_timeout must be positive"))
	}
	if c.Payment.CircuitBreakerThreshold <= 0 {
		errs = append(errs, fmt.Errorf("payment.circuit_breaker_threshold must be positive"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Payment.Provider == "mock" {
			errs = append(errs, fmt.Errorf("payment.provider mock is not allowed in production"))
		}
		if strings.Contains(c.Niubiz.BaseURL, "sandbox") && c.Payment.Provider == "niubiz" {
			errs = append(errs, fmt.Errorf("niubiz.base_url points to the sandbox in production"))
		}
	}

	// JWT secret length validation
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}
	if c.Auth.JWTSecret != "" && c.Auth.JWTExpiry <= 0 {
		errs = append(errs, fmt.Errorf("auth.jwt_expiry must be positive when auth.jwt_secret is set"))
	}

	return errors.Join(errs...)
}

func isSupportedProvider(name string) bool {
	return slices.Contains(supportedProviders, name)
}

// bindLegacyEnv keeps the variable names used by earlier deployments working.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("niubiz.auth_key", "PAYMENTS_NIUBIZ_AUTH_KEY", "NIUBIZ_AUTH_KEY")
	_ = v.BindEnv("mercadopago.access_token", "PAYMENTS_MERCADOPAGO_ACCESS_TOKEN", "MERCADOPAGO_ACCESS_TOKEN")
	_ = v.BindEnv("stripe.secret_key", "PAYMENTS_STRIPE_SECRET_KEY", "STRIPE_SECRET_KEY")
	_ = v.BindEnv("server.port", "PAYMENTS_SERVER_PORT", "PORT")
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit_per_minute", 120)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Payment defaults
	v.SetDefault("payment.provider", "niubiz")
	v.SetDefault("payment.session_amount", 1000)
	v.SetDefault("payment.default_currency", "PEN")
	v.SetDefault("payment.request_timeout", "20s")
	v.SetDefault("payment.circuit_breaker_threshold", 10)
	v.SetDefault("payment.circuit_breaker_timeout", "30s")

	// Niubiz defaults (sandbox)
	v.SetDefault("niubiz.merchant_id", "456879852")
	v.SetDefault("niubiz.base_url", "https://apisandbox.vnforappstest.com")
	v.SetDefault("niubiz.channel", "web")
	v.SetDefault("niubiz.capture_type", "manual")
	v.SetDefault("niubiz.countable", true)
	v.SetDefault("niubiz.client_ip", "127.0.0.1")
	v.SetDefault("niubiz.merchant_define_data", map[string]any{
		"MDD4":  "test@test.com",
		"MDD32": "test@test.com",
		"MDD75": "Invitado",
		"MDD77": 1,
	})

	// MercadoPago defaults
	v.SetDefault("mercadopago.payment_method_id", "visa")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Auth defaults
	v.SetDefault("auth.jwt_expiry", "24h")

	// Instance ID
	v.SetDefault("instance_id", "checkout-1")
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
