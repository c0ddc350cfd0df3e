package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"zapisnik/internal/models"

	"github.com/joho/godotenv"
	yamlv2 "gopkg.in/yaml.v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	API        APIConfig        `yaml:"api"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Exports    ExportConfig     `yaml:"exports"`
	UsersFile  string           `yaml:"users_file"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey binds an API key to the actor it authenticates.
type APIClientKey struct {
	Key    string `yaml:"key"`
	Name   string `yaml:"name"`
	UserID int64  `yaml:"user_id"`
	Role   string `yaml:"role"`
}

type APIRateLimitConfig struct {
	RPS       float64 `yaml:"rps"`
	Burst     int     `yaml:"burst"`
	Requests  int     `yaml:"requests"`
	WindowSec int     `yaml:"window_sec"`
}

// ScheduleConfig holds facility policy: local time zone, the opening
// hours window for booking starts, and quota/sweep defaults.
type ScheduleConfig struct {
	Timezone           string `yaml:"timezone"`
	OpenHour           int    `yaml:"open_hour"`
	CloseHour          int    `yaml:"close_hour"`
	DefaultWeeklyLimit int    `yaml:"default_weekly_limit"`
	SweepIntervalSec   int    `yaml:"sweep_interval_sec"`
}

// Location resolves the configured facility time zone.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен; переменные окружения подставляются в YAML
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Schedule.OpenHour < 0 || c.Schedule.CloseHour > 24 || c.Schedule.OpenHour >= c.Schedule.CloseHour {
		return fmt.Errorf("invalid opening hours window [%d, %d)", c.Schedule.OpenHour, c.Schedule.CloseHour)
	}

	if _, err := c.Schedule.Location(); err != nil {
		return fmt.Errorf("invalid schedule timezone %q: %w", c.Schedule.Timezone, err)
	}

	seen := make(map[string]bool, len(c.API.Auth.APIKeys))
	for _, k := range c.API.Auth.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("api key for client '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.Requests == 0 {
		c.API.RateLimit.Requests = models.RateLimitRequests
	}
	if c.API.RateLimit.WindowSec == 0 {
		c.API.RateLimit.WindowSec = models.RateLimitWindow
	}

	if c.Schedule.OpenHour == 0 && c.Schedule.CloseHour == 0 {
		c.Schedule.OpenHour = models.DefaultOpenHour
		c.Schedule.CloseHour = models.DefaultCloseHour
	}
	if c.Schedule.DefaultWeeklyLimit == 0 {
		c.Schedule.DefaultWeeklyLimit = models.DefaultWeeklyLimit
	}
	if c.Schedule.SweepIntervalSec == 0 {
		c.Schedule.SweepIntervalSec = models.DefaultSweepIntervalSec
	}
}

// LoadUsers reads the member roster seeded into the database at startup.
func LoadUsers(path string) ([]models.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var roster struct {
		Users []models.User `yaml:"users"`
	}
	if err := yamlv2.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}

	seen := make(map[int64]bool, len(roster.Users))
	for _, u := range roster.Users {
		if u.ID == 0 {
			return nil, fmt.Errorf("user '%s' has invalid ID 0", u.Name)
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("duplicate user ID found: %d", u.ID)
		}
		seen[u.ID] = true
	}

	return roster.Users, nil
}
