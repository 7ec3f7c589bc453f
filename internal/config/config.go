package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrNoDestination means neither mail nor chat delivery is configured.
var ErrNoDestination = errors.New("incorrect configuration: mail or slack credentials required")

const (
	DefaultServerAddress    = ":8080"
	DefaultMaxFileSize      = 10 << 20 // 10 MB
	DefaultCacheMaxEntries  = 50
	DefaultSendTimeout      = 30 * time.Second
	DefaultMaxParallelSends = 8
	DefaultRedisChannel     = "filerelay:events"
)

// TLSMode selects how the SMTP connection is secured.
type TLSMode string

const (
	TLSPlain    TLSMode = "plain"
	TLSStartTLS TLSMode = "starttls"
	TLSImplicit TLSMode = "tls"
)

// Config represents runtime configuration for the relay.
type Config struct {
	Server   ServerConfig
	Staging  StagingConfig
	Mail     MailConfig
	Slack    SlackConfig
	Redis    RedisConfig
	Database DatabaseConfig
	LogLevel string
}

type ServerConfig struct {
	Address string
}

type StagingConfig struct {
	MaxEntries       int
	MaxFileSize      int64
	SendTimeout      time.Duration
	MaxParallelSends int
}

type MailConfig struct {
	Username  string
	Password  string
	Recipient string
	Host      string
	Port      int
	TLS       TLSMode
}

type SlackConfig struct {
	Token   string
	Channel string
	APIURL  string
}

type RedisConfig struct {
	URL     string
	Channel string
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

// MailEnabled reports whether SMTP delivery has enough settings to run.
func (c *Config) MailEnabled() bool {
	return c.Mail.Host != "" && c.Mail.Username != "" && c.Mail.Password != ""
}

// ChatEnabled reports whether Slack delivery has enough settings to run.
func (c *Config) ChatEnabled() bool {
	return c.Slack.Token != "" && c.Slack.Channel != ""
}

// Load reads configuration from the environment, optionally layered over the
// file at path. Environment variables always win.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDRESS", DefaultServerAddress)
	v.SetDefault("MAX_FILE_SIZE", DefaultMaxFileSize)
	v.SetDefault("CACHE_MAX_ENTRIES", DefaultCacheMaxEntries)
	v.SetDefault("SEND_TIMEOUT", DefaultSendTimeout)
	v.SetDefault("MAX_PARALLEL_SENDS", DefaultMaxParallelSends)
	v.SetDefault("REDIS_CHANNEL", DefaultRedisChannel)
	v.SetDefault("LOG_LEVEL", "info")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{Address: v.GetString("SERVER_ADDRESS")},
		Staging: StagingConfig{
			MaxEntries:       v.GetInt("CACHE_MAX_ENTRIES"),
			MaxFileSize:      v.GetInt64("MAX_FILE_SIZE"),
			SendTimeout:      v.GetDuration("SEND_TIMEOUT"),
			MaxParallelSends: v.GetInt("MAX_PARALLEL_SENDS"),
		},
		Mail: MailConfig{
			Username:  v.GetString("MAIL_USERNAME"),
			Password:  v.GetString("MAIL_PASSWORD"),
			Recipient: v.GetString("RECEPIENT"),
			Host:      v.GetString("SMTP_HOSTNAME"),
			Port:      v.GetInt("SMTP_PORT"),
			TLS:       parseTLSMode(v.GetString("SMTP_TLS")),
		},
		Slack: SlackConfig{
			Token:   v.GetString("SLACK_TOKEN"),
			Channel: v.GetString("SLACK_CHANNEL"),
			APIURL:  v.GetString("SLACK_API_URL"),
		},
		Redis: RedisConfig{
			URL:     v.GetString("REDIS_URL"),
			Channel: v.GetString("REDIS_CHANNEL"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
			DSN:    v.GetString("DB_DSN"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}
	if cfg.Mail.Recipient == "" {
		cfg.Mail.Recipient = v.GetString("RECIPIENT")
	}
	if cfg.Mail.Recipient == "" {
		cfg.Mail.Recipient = cfg.Mail.Username
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the relay cannot start without.
func (c *Config) Validate() error {
	if !c.MailEnabled() && !c.ChatEnabled() {
		return ErrNoDestination
	}
	if c.Staging.MaxEntries < 1 {
		return fmt.Errorf("cache max entries must be positive, got %d", c.Staging.MaxEntries)
	}
	if c.Staging.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.Staging.MaxFileSize)
	}
	if c.Staging.SendTimeout <= 0 {
		c.Staging.SendTimeout = DefaultSendTimeout
	}
	if c.Staging.MaxParallelSends <= 0 {
		c.Staging.MaxParallelSends = DefaultMaxParallelSends
	}
	if c.Database.Driver != "" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn must be provided for driver %s", c.Database.Driver)
	}
	return nil
}

func parseTLSMode(raw string) TLSMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "plain":
		return TLSPlain
	case "starttls":
		return TLSStartTLS
	default:
		return TLSImplicit
	}
}
