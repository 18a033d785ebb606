// Package config loads the service configuration from defaults, an
// optional config file, an optional .env file and ELEARN_* environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. ELEARN_HTTP_ADDR.
const EnvPrefix = "ELEARN"

// Config holds all service configuration.
type Config struct {
	// Env names the deployment ("dev", "prod"); reported to Rollbar.
	Env string `mapstructure:"env"`

	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Courses  CoursesConfig  `mapstructure:"courses"`
	Quiz     QuizConfig     `mapstructure:"quiz"`
	Log      LogConfig      `mapstructure:"log"`
	SendGrid SendGridConfig `mapstructure:"sendgrid"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// DatabaseConfig selects the progress store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`    // empty: default SQLite path
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// CoursesConfig configures the course catalog.
type CoursesConfig struct {
	Dir          string        `mapstructure:"dir"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	QuizDuration time.Duration `mapstructure:"quiz_duration"`
}

// QuizConfig configures quiz session handling.
type QuizConfig struct {
	SubmissionGrace time.Duration `mapstructure:"submission_grace"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	SweepBatch      int           `mapstructure:"sweep_batch"`
}

// LogConfig configures logging and error reporting.
type LogConfig struct {
	Level        string `mapstructure:"level"`
	RollbarToken string `mapstructure:"rollbar_token"`
}

// SendGridConfig configures course completion emails. Empty APIKey
// disables them.
type SendGridConfig struct {
	APIKey   string `mapstructure:"api_key"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	// CC receives a copy of every completion email (e.g. the HR inbox).
	CC string `mapstructure:"cc"`
}

// TelegramConfig configures completion posts to a chat. Empty Token
// disables them.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Env:      "dev",
		Database: DatabaseConfig{Driver: "sqlite"},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Auth:    AuthConfig{TokenTTL: 24 * time.Hour},
		Courses: CoursesConfig{Dir: "courses", Cooldown: 24 * time.Hour, QuizDuration: 15 * time.Minute},
		Quiz: QuizConfig{
			SubmissionGrace: 30 * time.Second,
			SweepInterval:   time.Minute,
			SweepBatch:      100,
		},
		Log:      LogConfig{Level: "info"},
		SendGrid: SendGridConfig{FromName: "E-Learning"},
	}
}

// Options controls where Load looks for configuration.
type Options struct {
	// ConfigFile is an optional YAML/JSON/TOML file.
	ConfigFile string
	// EnvFile is an optional dotenv file; missing files are ignored.
	EnvFile string
}

// Load resolves the configuration.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("env", d.Env)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.cors_origins", d.HTTP.CORSOrigins)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("courses.dir", d.Courses.Dir)
	v.SetDefault("courses.cooldown", d.Courses.Cooldown)
	v.SetDefault("courses.quiz_duration", d.Courses.QuizDuration)
	v.SetDefault("quiz.submission_grace", d.Quiz.SubmissionGrace)
	v.SetDefault("quiz.sweep_interval", d.Quiz.SweepInterval)
	v.SetDefault("quiz.sweep_batch", d.Quiz.SweepBatch)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.rollbar_token", d.Log.RollbarToken)
	v.SetDefault("sendgrid.api_key", d.SendGrid.APIKey)
	v.SetDefault("sendgrid.from", d.SendGrid.From)
	v.SetDefault("sendgrid.from_name", d.SendGrid.FromName)
	v.SetDefault("sendgrid.cc", d.SendGrid.CC)
	v.SetDefault("telegram.token", d.Telegram.Token)
	v.SetDefault("telegram.chat_id", d.Telegram.ChatID)
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required for postgres")
	}
	if c.Courses.Cooldown < 0 {
		errs = append(errs, "courses.cooldown must be >= 0")
	}
	if c.Courses.QuizDuration <= 0 {
		errs = append(errs, "courses.quiz_duration must be > 0")
	}
	if c.Quiz.SubmissionGrace < 0 {
		errs = append(errs, "quiz.submission_grace must be >= 0")
	}
	if c.SendGrid.APIKey != "" && c.SendGrid.From == "" {
		errs = append(errs, "sendgrid.from is required when sendgrid.api_key is set")
	}
	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		errs = append(errs, "telegram.chat_id is required when telegram.token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}
