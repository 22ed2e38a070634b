package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the point-of-sale service
type Config struct {
	Event    EventConfig    `yaml:"event"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Portions PortionsConfig `yaml:"portions"`
	Cache    CacheConfig    `yaml:"cache"`
	Printer  PrinterConfig  `yaml:"printer"`
	Report   ReportConfig   `yaml:"report"`
}

// EventConfig identifies the festival the counters and history belong to
type EventConfig struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	OfflinePrefix string `yaml:"offline_prefix"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	Migrations string `yaml:"migrations"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Prefetch int    `yaml:"prefetch"`
}

// SheetsConfig points at the spreadsheet holding the menu
type SheetsConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	SheetID string        `yaml:"sheet_id"`
	Range   string        `yaml:"range"`
	Timeout time.Duration `yaml:"timeout"`
}

// PortionsConfig controls the business-day rollover of daily portion counters
type PortionsConfig struct {
	Timezone     string `yaml:"timezone"`
	RolloverHour int    `yaml:"rollover_hour"`
}

// CacheConfig holds the local cache and outbox settings
type CacheConfig struct {
	Path          string        `yaml:"path"`
	DrainInterval time.Duration `yaml:"drain_interval"`
}

// PrinterConfig controls where kitchen tickets are spooled
type PrinterConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SpoolDir string `yaml:"spool_dir"`
	Copies   int    `yaml:"copies"`
}

// ReportConfig controls report caching
type ReportConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Default returns the configuration used when a key is absent from the file
func Default() *Config {
	return &Config{
		Event: EventConfig{
			ID:            "default",
			Name:          "Sagra",
			OfflinePrefix: "X",
		},
		Server: ServerConfig{
			Port:            3000,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:       "localhost",
			Port:       5432,
			Migrations: "migrations",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Prefetch: 1,
		},
		Sheets: SheetsConfig{
			BaseURL: "https://sheets.googleapis.com/v4/spreadsheets",
			Range:   "menu",
			Timeout: 10 * time.Second,
		},
		Portions: PortionsConfig{
			Timezone:     "Europe/Rome",
			RolloverHour: 16,
		},
		Cache: CacheConfig{
			Path:          "sagra-pos.db",
			DrainInterval: 30 * time.Second,
		},
		Printer: PrinterConfig{
			SpoolDir: "spool",
			Copies:   2,
		},
		Report: ReportConfig{
			CacheTTL: 10 * time.Minute,
		},
	}
}

// Load reads configuration from a YAML file on top of the defaults and
// applies environment overrides
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnv overrides secrets and hosts from SAGRA_* environment variables
func (c *Config) applyEnv() error {
	stringVars := map[string]*string{
		"SAGRA_EVENT_ID":          &c.Event.ID,
		"SAGRA_DB_HOST":           &c.Database.Host,
		"SAGRA_DB_USER":           &c.Database.User,
		"SAGRA_DB_PASSWORD":       &c.Database.Password,
		"SAGRA_DB_NAME":           &c.Database.Database,
		"SAGRA_RABBITMQ_HOST":     &c.RabbitMQ.Host,
		"SAGRA_RABBITMQ_USER":     &c.RabbitMQ.User,
		"SAGRA_RABBITMQ_PASSWORD": &c.RabbitMQ.Password,
		"SAGRA_SHEETS_API_KEY":    &c.Sheets.APIKey,
		"SAGRA_SHEETS_SHEET_ID":   &c.Sheets.SheetID,
		"SAGRA_CACHE_PATH":        &c.Cache.Path,
	}
	for name, target := range stringVars {
		if value, ok := os.LookupEnv(name); ok {
			*target = value
		}
	}

	intVars := map[string]*int{
		"SAGRA_DB_PORT":       &c.Database.Port,
		"SAGRA_RABBITMQ_PORT": &c.RabbitMQ.Port,
		"SAGRA_SERVER_PORT":   &c.Server.Port,
		"SAGRA_ROLLOVER_HOUR": &c.Portions.RolloverHour,
	}
	for name, target := range intVars {
		value, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", name, err)
		}
		*target = parsed
	}

	return nil
}

// Validate checks values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	if c.Event.ID == "" {
		return fmt.Errorf("event.id is required")
	}
	if len(c.Event.OfflinePrefix) != 1 {
		return fmt.Errorf("event.offline_prefix must be a single letter")
	}
	if c.Portions.RolloverHour < 0 || c.Portions.RolloverHour > 23 {
		return fmt.Errorf("portions.rollover_hour must be between 0 and 23")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the reference timezone of the business day
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Portions.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid portions.timezone %q: %w", c.Portions.Timezone, err)
	}
	return loc, nil
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}
