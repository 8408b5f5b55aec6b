package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode selects how reconciliation behaves: production issues backend
// calls, debug only logs them and parks the page for manual inspection.
type Mode string

const (
	ModeProduction Mode = "production"
	ModeDebug      Mode = "debug"
)

type Config struct {
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Backend  BackendConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

type ScraperConfig struct {
	Mode            Mode
	PageBudget      int
	ConcurrentLimit int
	MaxCategoryID   int
	UserAgents      []string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Scraper: ScraperConfig{
			Mode:            Mode(getEnvOrDefault("SCRAPER_MODE", string(ModeProduction))),
			PageBudget:      getIntOrDefault("SCRAPER_PAGE_BUDGET", 50),
			ConcurrentLimit: getIntOrDefault("SCRAPER_CONCURRENT_LIMIT", 3),
			MaxCategoryID:   getIntOrDefault("SCRAPER_MAX_CATEGORY_ID", 50),
			UserAgents:      getStringSliceOrDefault("SCRAPER_USER_AGENTS", defaultUserAgents()),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1200),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 800),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ru-RU,ru;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Moscow"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ru-RU"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Backend: BackendConfig{
			BaseURL: getEnvOrDefault("BACKEND_URL", "http://localhost:3000"),
			Timeout: getDurationOrDefault("BACKEND_TIMEOUT", 15*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:price_events"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     getIntOrDefault("POSTGRES_PORT", 5432),
			User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: getEnvOrDefault("POSTGRES_PASSWORD", ""),
			DBName:   getEnvOrDefault("POSTGRES_DB", "pricewatch"),
			SSLMode:  getEnvOrDefault("POSTGRES_SSL_MODE", "disable"),
		},
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "3000"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.Mode != ModeProduction && c.Scraper.Mode != ModeDebug {
		return fmt.Errorf("SCRAPER_MODE must be %q or %q", ModeProduction, ModeDebug)
	}

	if c.Scraper.PageBudget < 1 {
		return fmt.Errorf("SCRAPER_PAGE_BUDGET must be at least 1")
	}

	if c.Scraper.ConcurrentLimit < 1 || c.Scraper.ConcurrentLimit > 5 {
		return fmt.Errorf("SCRAPER_CONCURRENT_LIMIT must be between 1 and 5")
	}

	if len(c.Scraper.UserAgents) == 0 {
		return fmt.Errorf("SCRAPER_USER_AGENTS must not be empty")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_URL must not be empty")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}
