package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const Version = "0.3.0"

// Config holds application configuration
type Config struct {
	// Server configuration
	Host       string
	Port       int
	CORSOrigin string
	StaticDir  string // built client to serve, empty disables

	// Storage configuration
	StorageType string // "sqlite" or "postgres"
	DBPath      string // SQLite database path
	DatabaseURL string // PostgreSQL connection string

	// Cache configuration
	CacheType string // "memory" or "redis"
	CacheTTL  int    // seconds
	CacheSize int
	RedisHost string
	RedisPort int

	// External source configuration
	SourceBaseURL   string
	SourceNamespace string
	SourceTimeout   time.Duration

	// Ingestion configuration
	RootEntityID int64
	PageDelay    time.Duration
	LinkWorkers  int
	AutoIngest   bool

	// Events
	NATSURL     string
	NATSSubject string

	// Debug
	Debug bool
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            3000,
		CORSOrigin:      "*",
		StorageType:     "sqlite",
		DBPath:          "netgraph.db",
		CacheType:       "memory",
		CacheTTL:        30,
		CacheSize:       256,
		RedisHost:       "localhost",
		RedisPort:       6379,
		SourceBaseURL:   "https://littlesis.org/api",
		SourceNamespace: "littlesis",
		SourceTimeout:   30 * time.Second,
		RootEntityID:    36043,
		PageDelay:       200 * time.Millisecond,
		LinkWorkers:     1,
		AutoIngest:      true,
		NATSSubject:     "netgraph.ingest.finished",
		Debug:           false,
	}
}

// LoadDotEnv reads a .env file into the process environment if one exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if val := os.Getenv("HOST"); val != "" {
		cfg.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Port = port
		}
	}
	if val := os.Getenv("CORS_ORIGIN"); val != "" {
		cfg.CORSOrigin = val
	}
	if val := os.Getenv("STATIC_DIR"); val != "" {
		cfg.StaticDir = val
	}
	if val := os.Getenv("STORAGE_TYPE"); val != "" {
		cfg.StorageType = val
	}
	if val := os.Getenv("DB_PATH"); val != "" {
		cfg.DBPath = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		cfg.DatabaseURL = val
	}
	if val := os.Getenv("CACHE_TYPE"); val != "" {
		cfg.CacheType = val
	}
	if val := os.Getenv("CACHE_TTL"); val != "" {
		if ttl, err := strconv.Atoi(val); err == nil {
			cfg.CacheTTL = ttl
		}
	}
	if val := os.Getenv("CACHE_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			cfg.CacheSize = size
		}
	}
	if val := os.Getenv("REDIS_HOST"); val != "" {
		cfg.RedisHost = val
	}
	if val := os.Getenv("REDIS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.RedisPort = port
		}
	}
	if val := os.Getenv("SOURCE_BASE_URL"); val != "" {
		cfg.SourceBaseURL = strings.TrimRight(val, "/")
	}
	if val := os.Getenv("SOURCE_NAMESPACE"); val != "" {
		cfg.SourceNamespace = val
	}
	if val := os.Getenv("SOURCE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.SourceTimeout = d
		}
	}
	if val := os.Getenv("ROOT_ENTITY_ID"); val != "" {
		if id, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.RootEntityID = id
		}
	}
	if val := os.Getenv("PAGE_DELAY_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil && ms >= 0 {
			cfg.PageDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if val := os.Getenv("LINK_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.LinkWorkers = n
		}
	}
	if val := os.Getenv("AUTO_INGEST"); val != "" {
		cfg.AutoIngest = parseBool(val)
	}
	if val := os.Getenv("NATS_URL"); val != "" {
		cfg.NATSURL = val
	}
	if val := os.Getenv("NATS_SUBJECT"); val != "" {
		cfg.NATSSubject = val
	}
	if val := os.Getenv("DEBUG"); val != "" {
		cfg.Debug = parseBool(val)
	}
}

func parseBool(val string) bool {
	val = strings.ToLower(val)
	return val == "true" || val == "1" || val == "yes"
}

// StoreOptions returns the options map storage.NewStore expects for StorageType
func (c *Config) StoreOptions() map[string]interface{} {
	if c.StorageType == "postgres" {
		return map[string]interface{}{
			"database_url": c.DatabaseURL,
		}
	}
	return map[string]interface{}{
		"db_path":      c.DBPath,
		"enable_wal":   true,
		"busy_timeout": 5000,
	}
}
