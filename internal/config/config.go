package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTP server
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Database
	DBPath string `yaml:"db_path"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Reminders Reminders `yaml:"reminders"`
	Backup    Backup    `yaml:"backup"`
	WebPush   WebPush   `yaml:"webpush"`
	AMQP      AMQP      `yaml:"amqp"`

	// Desktop enables freedesktop notifications over the session bus.
	Desktop bool `yaml:"desktop"`
}

type Reminders struct {
	Exact    bool          `yaml:"exact"`
	Interval time.Duration `yaml:"interval"`
}

type Backup struct {
	Dir          string `yaml:"dir"`
	Passphrase   string `yaml:"passphrase"`
	InboxDir     string `yaml:"inbox_dir"`
	InboxPattern string `yaml:"inbox_pattern"`
	S3           S3     `yaml:"s3"`
}

type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

type WebPush struct {
	PublicKey  string `yaml:"public_key"`
	PrivateKey string `yaml:"private_key"`
	Subscriber string `yaml:"subscriber"`
}

type AMQP struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Port:      "8080",
		DBPath:    "daybook.db",
		LogLevel:  "info",
		LogFormat: "text",
		Reminders: Reminders{
			Exact:    true,
			Interval: time.Minute,
		},
		Backup: Backup{
			Dir:          "backups",
			InboxPattern: "*.json",
		},
		AMQP: AMQP{Exchange: "daybook"},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// DAYBOOK_CONFIG, and the environment, in that order. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("DAYBOOK_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("DAYBOOK_PORT", c.Port)
	c.DBPath = getEnv("DAYBOOK_DB_PATH", c.DBPath)
	c.LogLevel = getEnv("DAYBOOK_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("DAYBOOK_LOG_FORMAT", c.LogFormat)
	c.AllowedOrigins = getEnvList("DAYBOOK_ALLOWED_ORIGINS", c.AllowedOrigins)

	c.Reminders.Exact = getEnvBool("DAYBOOK_EXACT_REMINDERS", c.Reminders.Exact)
	c.Reminders.Interval = getEnvDuration("DAYBOOK_REMINDER_INTERVAL", c.Reminders.Interval)

	c.Backup.Dir = getEnv("DAYBOOK_BACKUP_DIR", c.Backup.Dir)
	c.Backup.Passphrase = getEnv("DAYBOOK_BACKUP_PASSPHRASE", c.Backup.Passphrase)
	c.Backup.InboxDir = getEnv("DAYBOOK_INBOX_DIR", c.Backup.InboxDir)
	c.Backup.InboxPattern = getEnv("DAYBOOK_INBOX_PATTERN", c.Backup.InboxPattern)

	c.Backup.S3.Endpoint = getEnv("DAYBOOK_S3_ENDPOINT", c.Backup.S3.Endpoint)
	c.Backup.S3.Bucket = getEnv("DAYBOOK_S3_BUCKET", c.Backup.S3.Bucket)
	c.Backup.S3.Region = getEnv("DAYBOOK_S3_REGION", c.Backup.S3.Region)
	c.Backup.S3.AccessKey = getEnv("DAYBOOK_S3_ACCESS_KEY", c.Backup.S3.AccessKey)
	c.Backup.S3.SecretKey = getEnv("DAYBOOK_S3_SECRET_KEY", c.Backup.S3.SecretKey)
	c.Backup.S3.Prefix = getEnv("DAYBOOK_S3_PREFIX", c.Backup.S3.Prefix)

	c.WebPush.PublicKey = getEnv("DAYBOOK_VAPID_PUBLIC_KEY", c.WebPush.PublicKey)
	c.WebPush.PrivateKey = getEnv("DAYBOOK_VAPID_PRIVATE_KEY", c.WebPush.PrivateKey)
	c.WebPush.Subscriber = getEnv("DAYBOOK_VAPID_SUBSCRIBER", c.WebPush.Subscriber)

	c.AMQP.URL = getEnv("DAYBOOK_AMQP_URL", c.AMQP.URL)
	c.AMQP.Exchange = getEnv("DAYBOOK_AMQP_EXCHANGE", c.AMQP.Exchange)

	c.Desktop = getEnvBool("DAYBOOK_DESKTOP_NOTIFICATIONS", c.Desktop)
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Validate returns every problem found in the configuration at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DBPath == "" {
		problems = append(problems, "database path cannot be empty")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if c.Reminders.Interval < time.Second {
		problems = append(problems, fmt.Sprintf("invalid reminder interval %v: must be at least 1 second", c.Reminders.Interval))
	} else if c.Reminders.Interval > time.Hour {
		problems = append(problems, fmt.Sprintf("invalid reminder interval %v: must be at most 1 hour", c.Reminders.Interval))
	}

	if c.Backup.Dir == "" {
		problems = append(problems, "backup directory cannot be empty")
	}
	if c.Backup.InboxDir != "" && !doublestar.ValidatePattern(c.Backup.InboxPattern) {
		problems = append(problems, fmt.Sprintf("invalid inbox pattern '%s'", c.Backup.InboxPattern))
	}

	s3 := c.Backup.S3
	if s3.Bucket != "" && (s3.AccessKey == "" || s3.SecretKey == "") {
		problems = append(problems, "S3 access key and secret key are required when a bucket is set")
	}
	if s3.Endpoint != "" {
		if u, err := url.Parse(s3.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("invalid S3 endpoint '%s'", s3.Endpoint))
		}
	}

	if (c.WebPush.PublicKey == "") != (c.WebPush.PrivateKey == "") {
		problems = append(problems, "VAPID public and private keys must be set together")
	}

	if c.AMQP.URL != "" {
		if u, err := url.Parse(c.AMQP.URL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQP.URL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQP.Exchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
