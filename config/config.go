package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ProviderFCM = "fcm"
	ProviderLog = "log"
)

type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
	JWT      JWTConfig      `json:"jwt" yaml:"jwt"`
	Push     PushConfig     `json:"push" yaml:"push"`
	Consumer ConsumerConfig `json:"consumer" yaml:"consumer"`
	Sentry   SentryConfig   `json:"sentry" yaml:"sentry"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

type ServerConfig struct {
	Port string `json:"port" yaml:"port"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver" yaml:"driver"`
	URL      string `json:"url" yaml:"url"`
	Host     string `json:"host" yaml:"host"`
	Port     string `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
}

// DSN returns URL when set, otherwise a lib/pq keyword string for Postgres
// or the database name as a file path for SQLite.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	if d.Driver == DriverSQLite {
		return d.DBName
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.DBName,
	)
}

type RabbitMQConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     string `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	VHost    string `json:"vhost" yaml:"vhost"`
}

type JWTConfig struct {
	Secret string `json:"secret" yaml:"secret"`
}

type PushConfig struct {
	Provider           string   `json:"provider" yaml:"provider"`
	CredentialsFile    string   `json:"credentials_file" yaml:"credentials_file"`
	SendTimeout        Duration `json:"send_timeout" yaml:"send_timeout"`
	PruneInvalidTokens bool     `json:"prune_invalid_tokens" yaml:"prune_invalid_tokens"`
}

type ConsumerConfig struct {
	MaxAttempts  uint     `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     Duration `json:"max_delay" yaml:"max_delay"`
}

type SentryConfig struct {
	DSN         string `json:"dsn" yaml:"dsn"`
	Environment string `json:"environment" yaml:"environment"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Duration accepts "5s"-style strings or integer nanoseconds in config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) set(v any) error {
	switch value := v.(type) {
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
	case float64:
		d.Duration = time.Duration(value)
	case int:
		d.Duration = time.Duration(value)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// LoadConfig reads a JSON or YAML file (picked by extension), loads .env if
// present, applies environment overrides and fills defaults.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, cfg)
	default:
		err = json.Unmarshal(raw, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	setString(&c.Server.Port, "PORT")

	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.DBName, "DB_NAME")

	setString(&c.RabbitMQ.Host, "RABBITMQ_HOST")
	setString(&c.RabbitMQ.Port, "RABBITMQ_PORT")
	setString(&c.RabbitMQ.User, "RABBITMQ_USER")
	setString(&c.RabbitMQ.Password, "RABBITMQ_PASSWORD")

	setString(&c.JWT.Secret, "JWT_SECRET")
	setString(&c.Sentry.DSN, "SENTRY_DSN")
	setString(&c.Push.CredentialsFile, "FCM_CREDENTIALS_FILE")
	setString(&c.Log.Level, "LOG_LEVEL")

	if v := os.Getenv("PUSH_PRUNE_INVALID_TOKENS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Push.PruneInvalidTokens = b
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.RabbitMQ.Port == "" {
		c.RabbitMQ.Port = "5672"
	}
	if c.Push.Provider == "" {
		c.Push.Provider = ProviderLog
	}
	if c.Push.SendTimeout.Duration <= 0 {
		c.Push.SendTimeout.Duration = 5 * time.Second
	}
	if c.Consumer.MaxAttempts == 0 {
		c.Consumer.MaxAttempts = 3
	}
	if c.Consumer.InitialDelay.Duration <= 0 {
		c.Consumer.InitialDelay.Duration = time.Second
	}
	if c.Consumer.MaxDelay.Duration <= 0 {
		c.Consumer.MaxDelay.Duration = 30 * time.Second
	}
	if c.Sentry.Environment == "" {
		c.Sentry.Environment = "development"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q", DriverPostgres, DriverSQLite))
	}
	switch c.Push.Provider {
	case ProviderFCM, ProviderLog:
	default:
		errs = append(errs, fmt.Errorf("push.provider must be %q or %q", ProviderFCM, ProviderLog))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
