package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Webmail  WebmailConfig  `mapstructure:"webmail"`
	Timing   TimingConfig   `mapstructure:"timing"`
	MFA      MFAConfig      `mapstructure:"mfa"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BrowserConfig holds headless browser configuration
type BrowserConfig struct {
	// Headless runs the browser without a window
	Headless bool `mapstructure:"headless"`
	// ExecPath overrides the Chrome binary lookup
	ExecPath string `mapstructure:"exec_path"`
	// RemoteURL connects to an already running browser over its DevTools
	// websocket instead of launching one. Takes precedence over ExecPath.
	RemoteURL string `mapstructure:"remote_url"`
	// NoSandbox disables the Chrome sandbox (needed inside most containers)
	NoSandbox bool   `mapstructure:"no_sandbox"`
	UserAgent string `mapstructure:"user_agent"`
}

// WebmailConfig holds the webmail endpoints
type WebmailConfig struct {
	LoginURL string `mapstructure:"login_url"`
	InboxURL string `mapstructure:"inbox_url"`
}

// TimingConfig holds waits and delays used while driving the webmail UI
type TimingConfig struct {
	// NetworkIdle is the quiet period for an ordinary network-idle wait
	NetworkIdle time.Duration `mapstructure:"network_idle"`
	// NetworkIdleTimeout bounds every network-idle wait
	NetworkIdleTimeout time.Duration `mapstructure:"network_idle_timeout"`
	// LoginPollAttempts is the number of inbox URL checks after submit
	LoginPollAttempts int `mapstructure:"login_poll_attempts"`
	// LoginPollInterval is the delay between inbox URL checks
	LoginPollInterval time.Duration `mapstructure:"login_poll_interval"`
	// PostLoginIdle is the quiet period required once the inbox is reached
	PostLoginIdle time.Duration `mapstructure:"post_login_idle"`
	// PostLoginSettle is a fixed delay for client-side rendering after login
	PostLoginSettle time.Duration `mapstructure:"post_login_settle"`
	// ComposeWindowTimeout bounds the wait for the composer window
	ComposeWindowTimeout time.Duration `mapstructure:"compose_window_timeout"`
	// ElementTimeout bounds typing into an element that exists but is not
	// visible yet
	ElementTimeout time.Duration `mapstructure:"element_timeout"`
	// RecipientSettle is a fixed delay after typing the recipient address
	RecipientSettle time.Duration `mapstructure:"recipient_settle"`
	// GracePeriod is waited after the last send before the browser closes
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// MFAConfig holds second factor configuration
type MFAConfig struct {
	// TOTPSecret is the base32 secret of the account's authenticator app.
	// Leave empty when the account has no second factor.
	TOTPSecret string `mapstructure:"totp_secret"`
	// TOTPTimeout bounds the wait for the second factor field
	TOTPTimeout time.Duration `mapstructure:"totp_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration for the sendout history
type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration for the account lock and delivery events
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// LockTTL is the lifetime of the per-account sendout lock
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// DeliveryChannel is the pub/sub channel delivery records are published on
	DeliveryChannel string `mapstructure:"delivery_channel"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/sendout")

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables
	v.SetEnvPrefix("SENDOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Webmail.LoginURL == "" || c.Webmail.InboxURL == "" {
		return fmt.Errorf("webmail login_url and inbox_url are required")
	}
	if c.Timing.LoginPollAttempts < 1 {
		return fmt.Errorf("timing.login_poll_attempts must be at least 1, got %d", c.Timing.LoginPollAttempts)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Browser defaults
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.user_agent", "")

	// Webmail defaults
	v.SetDefault("webmail.login_url", "https://account.proton.me/login")
	v.SetDefault("webmail.inbox_url", "https://mail.proton.me/u/0/inbox")

	// Timing defaults
	v.SetDefault("timing.network_idle", "500ms")
	v.SetDefault("timing.network_idle_timeout", "30s")
	v.SetDefault("timing.login_poll_attempts", 15)
	v.SetDefault("timing.login_poll_interval", "1s")
	v.SetDefault("timing.post_login_idle", "5s")
	v.SetDefault("timing.post_login_settle", "7500ms")
	v.SetDefault("timing.compose_window_timeout", "5s")
	v.SetDefault("timing.element_timeout", "5s")
	v.SetDefault("timing.recipient_settle", "2s")
	v.SetDefault("timing.grace_period", "5s")

	// MFA defaults
	v.SetDefault("mfa.totp_secret", "")
	v.SetDefault("mfa.totp_timeout", "10s")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "sendout")
	v.SetDefault("database.user", "sendout")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 4)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "30m")
	v.SetDefault("redis.delivery_channel", "sendout:deliveries")
}
