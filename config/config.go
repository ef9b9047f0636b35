package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Feed      FeedConfig
	Search    SearchConfig
	Store     StoreConfig
	Archive   ArchiveConfig
	Scheduler SchedulerConfig
	Proxy     ProxyConfig
	Log       LogConfig
	APIAddr   string

	DedupeThreshold float64
	SearchesDir     string
	Searches        []*SavedSearch
}

type FeedConfig struct {
	BaseURL      string
	Token        string
	PageSize     int
	MaxPerSecond int
	MaxPerHour   int
	Statuses     []string
}

type SearchConfig struct {
	BaseURL  string
	APIKey   string
	Interval time.Duration
}

type StoreConfig struct {
	Driver      string // sqlite or postgres
	DBPath      string
	DatabaseURL string
}

type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type ProxyConfig struct {
	URL string
}

type LogConfig struct {
	Path      string
	MaxSizeMB int
	Backups   int
}

// SavedSearch is one query run periodically against the search API.
type SavedSearch struct {
	Name        string   `yaml:"name"`
	Cities      []string `yaml:"cities"`
	PostalCodes []string `yaml:"postal_codes"`
	MinPrice    float64  `yaml:"min_price"`
	MaxPrice    float64  `yaml:"max_price"`
	MinBeds     int      `yaml:"min_beds"`
	Statuses    []string `yaml:"statuses"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Feed: FeedConfig{
			BaseURL:      os.Getenv("FEED_BASE_URL"),
			Token:        os.Getenv("FEED_TOKEN"),
			PageSize:     getEnvInt("FEED_PAGE_SIZE", 100),
			MaxPerSecond: getEnvInt("FEED_MAX_PER_SECOND", 2),
			MaxPerHour:   getEnvInt("FEED_MAX_PER_HOUR", 7200),
			Statuses:     getEnvList("FEED_SYNC_STATUSES", []string{"Active", "Active Under Contract", "Pending", "Closed"}),
		},
		Search: SearchConfig{
			BaseURL:  os.Getenv("SEARCH_BASE_URL"),
			APIKey:   os.Getenv("SEARCH_API_KEY"),
			Interval: getEnvDuration("SEARCH_INTERVAL", 0),
		},
		Store: StoreConfig{
			Driver:      getEnv("STORE_DRIVER", "sqlite"),
			DBPath:      getEnv("DB_PATH", "listings.db"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Archive: ArchiveConfig{
			Bucket:          os.Getenv("ARCHIVE_S3_BUCKET"),
			Region:          getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("ARCHIVE_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
			SecretAccessKey: os.Getenv("ARCHIVE_S3_SECRET_KEY"),
		},
		Scheduler: SchedulerConfig{
			Cron:     os.Getenv("SYNC_CRON"),
			Interval: getEnvDuration("SYNC_INTERVAL", 0),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("HTTP_PROXY_URL"),
		},
		Log: LogConfig{
			Path:      getEnv("LOG_PATH", "sync.log"),
			MaxSizeMB: getEnvInt("LOG_MAX_MB", 2),
			Backups:   getEnvInt("LOG_BACKUPS", 1),
		},
		APIAddr:         getEnv("API_ADDR", ":8080"),
		DedupeThreshold: getEnvFloat("DEDUPE_THRESHOLD", 0.85),
		SearchesDir:     getEnv("SEARCHES_DIR", "config/searches"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.loadSavedSearches(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.DedupeThreshold <= 0 || c.DedupeThreshold > 1 {
		return fmt.Errorf("DEDUPE_THRESHOLD must be in (0, 1], got %v", c.DedupeThreshold)
	}
	if c.Feed.PageSize <= 0 {
		return fmt.Errorf("FEED_PAGE_SIZE must be positive")
	}
	return nil
}

func (c *Config) loadSavedSearches() error {
	entries, err := os.ReadDir(c.SearchesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(c.SearchesDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var search SavedSearch
		if err := yaml.Unmarshal(data, &search); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if search.Name == "" {
			search.Name = strings.TrimSuffix(entry.Name(), ext)
		}

		c.Searches = append(c.Searches, &search)
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
