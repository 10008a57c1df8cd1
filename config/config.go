package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type Config struct {
	OutputDir    string
	DBPath       string
	LogLevel     string
	LogFile      string
	Proxy        ProxyConfig
	CallTracking CallTrackingConfig
	Browser      BrowserConfig
	Phones       PhonesConfig
	Scheduler    SchedulerConfig
	Postgres     PostgresConfig
	S3           S3Config
	Listings     ListingsConfig
	Regions      map[string]*Region
}

type ProxyConfig struct {
	URL string
}

type CallTrackingConfig struct {
	URL            string
	DefaultBlockID int64
	MaxAttempts    int
	RetryDelay     time.Duration
	Timeout        time.Duration
}

type BrowserConfig struct {
	Enabled  bool
	Headless bool
	// Activate runs a browser visit before the API strategy to capture a live session.
	Activate bool
}

type PhonesConfig struct {
	MaxPhones      int
	SaveInterval   int
	PauseMin       time.Duration
	PauseMax       time.Duration
	LongPause      time.Duration
	LongPauseEvery int
	AuthorTypes    []string
}

type SchedulerConfig struct {
	Time     string // HH:MM
	Timezone string
}

type PostgresConfig struct {
	DSN string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type ListingsConfig struct {
	MaxPages int
}

// Region describes one searchable location. Loaded from config/regions/*.yaml.
type Region struct {
	Name      string `yaml:"name"`
	RegionID  string `yaml:"region_id"`
	Subdomain string `yaml:"subdomain"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		OutputDir: getEnv("OUTPUT_DIR", "output"),
		DBPath:    getEnv("DB_PATH", "cian_bot.db"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFile:   getEnv("LOG_FILE", "daemon.log"),
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		CallTracking: CallTrackingConfig{
			URL:            getEnv("CALLTRACKING_URL", "https://api.cian.ru/newbuilding-dynamic-calltracking/v1/get-dynamic-phone"),
			DefaultBlockID: int64(getEnvInt("CALLTRACKING_BLOCK_ID", 0)),
			MaxAttempts:    getEnvInt("CALLTRACKING_ATTEMPTS", 6),
			RetryDelay:     getEnvDuration("CALLTRACKING_DELAY", 2*time.Second),
			Timeout:        getEnvDuration("CALLTRACKING_TIMEOUT", 15*time.Second),
		},
		Browser: BrowserConfig{
			Enabled:  getEnvBool("BROWSER_ENABLED", true),
			Headless: getEnvBool("BROWSER_HEADLESS", true),
			Activate: getEnvBool("BROWSER_ACTIVATE", true),
		},
		Phones: PhonesConfig{
			MaxPhones:      getEnvInt("MAX_PHONES", 50),
			SaveInterval:   getEnvInt("SAVE_INTERVAL", 5),
			PauseMin:       getEnvDuration("PAUSE_MIN", time.Second),
			PauseMax:       getEnvDuration("PAUSE_MAX", 5*time.Second),
			LongPause:      getEnvDuration("LONG_PAUSE", 60*time.Second),
			LongPauseEvery: getEnvInt("LONG_PAUSE_EVERY", 10),
			AuthorTypes:    splitList(getEnv("AUTHOR_TYPES", "developer")),
		},
		Scheduler: SchedulerConfig{
			Time:     getEnv("SCHEDULE_TIME", "00:00"),
			Timezone: getEnv("SCHEDULE_TZ", "Europe/Moscow"),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("PG_DSN"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Listings: ListingsConfig{
			MaxPages: getEnvInt("LISTING_PAGES", 0),
		},
		Regions: make(map[string]*Region),
	}

	if err := cfg.loadRegions(getEnv("REGIONS_DIR", "config/regions")); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadRegions(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return eris.Wrapf(err, "read regions dir %s", dir)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "read %s", path)
		}

		var region Region
		if err := yaml.Unmarshal(data, &region); err != nil {
			return eris.Wrapf(err, "parse %s", path)
		}
		if region.Name == "" {
			return eris.Errorf("region in %s has no name", path)
		}

		c.Regions[region.Name] = &region
	}

	return nil
}

// Region returns the configured region by name, or a bare region carrying only the name.
func (c *Config) Region(name string) *Region {
	if r, ok := c.Regions[name]; ok {
		return r
	}
	return &Region{Name: name}
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

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
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

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
