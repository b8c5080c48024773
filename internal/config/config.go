// Package config loads crawlerd's configuration from a YAML file with
// environment-variable overrides, singleton-cached the way the teacher's
// service configuration works.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"

	"github.com/ocx/cachecrawler/internal/crawler"
)

// =============================================================================
// crawlerd configuration
// =============================================================================

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Crawler CrawlerConfig `yaml:"crawler"`
	Cache   CacheConfig   `yaml:"cache"`
	Redis   RedisConfig   `yaml:"redis"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig is the admin HTTP surface's listen configuration.
type ServerConfig struct {
	Port            string `yaml:"port"`
	Interface       string `yaml:"interface"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// CrawlerConfig mirrors memcached's crawler startup settings
// (lru_crawler_*), distilled to the scheduler's pacing knobs and the
// autostart policy for the background autoexpire sweep.
type CrawlerConfig struct {
	Enabled          bool `yaml:"enabled"`
	SleepMicros      int  `yaml:"sleep_micros"`
	CrawlsPerSleep   int  `yaml:"crawls_per_sleep"`
	Verbose          bool `yaml:"verbose"`
	AutoExpireSec    int  `yaml:"autoexpire_interval_sec"`
}

// CacheConfig is the in-memory reference cache's class layout. Classes
// must be LRU-sublist-tagged ids (crawler.ExpandSizeClass per size class),
// not bare size-class numbers; defaultClasses builds the set this way.
type CacheConfig struct {
	Classes []int `yaml:"classes"`
}

// RedisConfig configures the extstore page-validity backend. Disabled by
// default: entries never set HasExternalHeader() unless a real external
// store is wired in front of this cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance, loading CONFIG_PATH (default
// config.yaml) on first call and applying environment overrides.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file (using defaults)", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("CRAWLERD_PORT", c.Server.Port)
	c.Server.Interface = getEnv("CRAWLERD_INTERFACE", c.Server.Interface)
	if v := getEnvInt("CRAWLERD_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("CRAWLERD_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}

	c.Crawler.Enabled = getEnvBool("CRAWLER_ENABLED", c.Crawler.Enabled)
	if v := getEnvInt("CRAWLER_SLEEP_MICROS", 0); v > 0 {
		c.Crawler.SleepMicros = v
	}
	if v := getEnvInt("CRAWLER_CRAWLS_PER_SLEEP", 0); v > 0 {
		c.Crawler.CrawlsPerSleep = v
	}
	c.Crawler.Verbose = getEnvBool("CRAWLER_VERBOSE", c.Crawler.Verbose)
	if v := getEnvInt("CRAWLER_AUTOEXPIRE_INTERVAL_SEC", 0); v > 0 {
		c.Crawler.AutoExpireSec = v
	}

	c.Redis.Enabled = getEnvBool("EXTSTORE_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("EXTSTORE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("EXTSTORE_REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("EXTSTORE_REDIS_DB", 0); v > 0 {
		c.Redis.DB = v
	}

	c.Metrics.Enabled = getEnvBool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Path = getEnv("METRICS_PATH", c.Metrics.Path)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.JSON = getEnvBool("LOG_JSON", c.Logging.JSON)

	c.applyDefaults()
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8089"
	}
	if c.Server.Interface == "" {
		c.Server.Interface = "0.0.0.0"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if c.Crawler.SleepMicros == 0 {
		c.Crawler.SleepMicros = 500
	}
	if c.Crawler.CrawlsPerSleep == 0 {
		c.Crawler.CrawlsPerSleep = 1000
	}
	if c.Crawler.AutoExpireSec == 0 {
		c.Crawler.AutoExpireSec = 3600
	}
	if len(c.Cache.Classes) == 0 {
		c.Cache.Classes = defaultClasses()
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// defaultClasses offers size classes 1 through 32, each expanded to its four
// LRU-sublist ids (crawler.ExpandSizeClass) so Crawl's explicit-class-id
// submission form resolves against the cache's live cursors.
func defaultClasses() []int {
	classes := make([]int, 0, 32*4)
	for i := 1; i <= 32; i++ {
		classes = append(classes, crawler.ExpandSizeClass(i)...)
	}
	return classes
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
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
