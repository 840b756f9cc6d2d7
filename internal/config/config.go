// Package config loads the runtime configuration: a YAML file for the
// tunables, .env plus environment variables for credentials. Secrets
// never live in the YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/coinpulse/pulsefeed/internal/sched"
	"github.com/coinpulse/pulsefeed/internal/serve"
	"github.com/coinpulse/pulsefeed/internal/store/postgres"
)

// duration accepts "30s" style values in YAML.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", node.Value, err)
	}
	*d = duration(parsed)
	return nil
}

func (d duration) or(fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return time.Duration(d)
}

// fileConfig is the on-disk shape. Durations are written as "10s",
// "5m" and so on.
type fileConfig struct {
	Database struct {
		MaxOpenConns    int      `yaml:"max_open_conns"`
		MaxIdleConns    int      `yaml:"max_idle_conns"`
		ConnMaxLifetime duration `yaml:"conn_max_lifetime"`
		ConnMaxIdleTime duration `yaml:"conn_max_idle_time"`
		QueryTimeout    duration `yaml:"query_timeout"`
	} `yaml:"database"`
	Server struct {
		Addr         string   `yaml:"addr"`
		ReadTimeout  duration `yaml:"read_timeout"`
		WriteTimeout duration `yaml:"write_timeout"`
		IdleTimeout  duration `yaml:"idle_timeout"`
	} `yaml:"server"`
	Intervals struct {
		Twitter  duration `yaml:"twitter"`
		Telegram duration `yaml:"telegram"`
		Reddit   duration `yaml:"reddit"`
		DQM      duration `yaml:"dqm"`
	} `yaml:"intervals"`
	Registry struct {
		AssetsPath  string   `yaml:"assets_path"`
		SourcesPath string   `yaml:"sources_path"`
		RefreshTTL  duration `yaml:"refresh_ttl"`
	} `yaml:"registry"`
	Upstream UpstreamSection `yaml:"upstream"`
	Cache    struct {
		RedisAddr string   `yaml:"redis_addr"`
		RedisDB   int      `yaml:"redis_db"`
		TTL       duration `yaml:"ttl"`
	} `yaml:"cache"`
	StatePath      string `yaml:"state_path"`
	ReportSchedule string `yaml:"report_schedule"`
}

// RegistrySection points at the whitelist files.
type RegistrySection struct {
	AssetsPath  string
	SourcesPath string
	RefreshTTL  time.Duration
}

// UpstreamSection holds the platform endpoints. Tokens come from the
// environment, not from here.
type UpstreamSection struct {
	TwitterBaseURL   string `yaml:"twitter_base_url"`
	RedditBaseURL    string `yaml:"reddit_base_url"`
	TelegramBaseURL  string `yaml:"telegram_base_url"`
	FearGreedBaseURL string `yaml:"feargreed_base_url"`
	LLMBaseURL       string `yaml:"llm_base_url"`
}

// CacheSection configures the optional Redis read cache.
type CacheSection struct {
	RedisAddr string
	RedisDB   int
	TTL       time.Duration
}

// Secrets are environment-only credentials.
type Secrets struct {
	TwitterBearerToken string
	RedditUserAgent    string
	TelegramBridgeKey  string
	TelegramBotToken   string
	TelegramChatID     int64
	LLMAPIKey          string
	RedisPassword      string
	ProxyURL           string
}

// Config is the full runtime configuration.
type Config struct {
	Database       postgres.ConnConfig
	Server         serve.ServerConfig
	Intervals      sched.Intervals
	Registry       RegistrySection
	Upstream       UpstreamSection
	Cache          CacheSection
	StatePath      string
	ReportSchedule string
	Secrets        Secrets
}

// Default returns the configuration used when the file omits a field.
func Default() Config {
	return Config{
		Database:  postgres.DefaultConnConfig(),
		Server:    serve.DefaultServerConfig(),
		Intervals: sched.DefaultIntervals(),
		Registry: RegistrySection{
			AssetsPath:  "config/assets.yaml",
			SourcesPath: "config/sources.yaml",
			RefreshTTL:  5 * time.Minute,
		},
		Upstream: UpstreamSection{
			TwitterBaseURL:   "https://api.twitter.com",
			RedditBaseURL:    "https://www.reddit.com",
			TelegramBaseURL:  "http://127.0.0.1:8181",
			FearGreedBaseURL: "https://api.alternative.me",
		},
		Cache: CacheSection{
			TTL: serve.DefaultCacheTTL,
		},
		StatePath:      "data/state.json",
		ReportSchedule: "0 8 * * *",
	}
}

// Load reads the YAML file at path (missing file means defaults only),
// loads .env if present, and applies environment overrides. The
// result is validated; a bad configuration fails startup.
func Load(path string) (Config, error) {
	// A missing .env is the normal production case.
	_ = godotenv.Load()

	var f fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Run on defaults.
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &f); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg := merge(f)
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// merge lays the file over the defaults, field by field.
func merge(f fileConfig) Config {
	cfg := Default()

	if f.Database.MaxOpenConns != 0 {
		cfg.Database.MaxOpenConns = f.Database.MaxOpenConns
	}
	if f.Database.MaxIdleConns != 0 {
		cfg.Database.MaxIdleConns = f.Database.MaxIdleConns
	}
	cfg.Database.ConnMaxLifetime = f.Database.ConnMaxLifetime.or(cfg.Database.ConnMaxLifetime)
	cfg.Database.ConnMaxIdleTime = f.Database.ConnMaxIdleTime.or(cfg.Database.ConnMaxIdleTime)
	cfg.Database.QueryTimeout = f.Database.QueryTimeout.or(cfg.Database.QueryTimeout)

	if f.Server.Addr != "" {
		cfg.Server.Addr = f.Server.Addr
	}
	cfg.Server.ReadTimeout = f.Server.ReadTimeout.or(cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = f.Server.WriteTimeout.or(cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = f.Server.IdleTimeout.or(cfg.Server.IdleTimeout)

	cfg.Intervals.Twitter = f.Intervals.Twitter.or(cfg.Intervals.Twitter)
	cfg.Intervals.Telegram = f.Intervals.Telegram.or(cfg.Intervals.Telegram)
	cfg.Intervals.Reddit = f.Intervals.Reddit.or(cfg.Intervals.Reddit)
	cfg.Intervals.DQM = f.Intervals.DQM.or(cfg.Intervals.DQM)

	if f.Registry.AssetsPath != "" {
		cfg.Registry.AssetsPath = f.Registry.AssetsPath
	}
	if f.Registry.SourcesPath != "" {
		cfg.Registry.SourcesPath = f.Registry.SourcesPath
	}
	cfg.Registry.RefreshTTL = f.Registry.RefreshTTL.or(cfg.Registry.RefreshTTL)

	if f.Upstream.TwitterBaseURL != "" {
		cfg.Upstream.TwitterBaseURL = f.Upstream.TwitterBaseURL
	}
	if f.Upstream.RedditBaseURL != "" {
		cfg.Upstream.RedditBaseURL = f.Upstream.RedditBaseURL
	}
	if f.Upstream.TelegramBaseURL != "" {
		cfg.Upstream.TelegramBaseURL = f.Upstream.TelegramBaseURL
	}
	if f.Upstream.FearGreedBaseURL != "" {
		cfg.Upstream.FearGreedBaseURL = f.Upstream.FearGreedBaseURL
	}
	if f.Upstream.LLMBaseURL != "" {
		cfg.Upstream.LLMBaseURL = f.Upstream.LLMBaseURL
	}

	if f.Cache.RedisAddr != "" {
		cfg.Cache.RedisAddr = f.Cache.RedisAddr
	}
	cfg.Cache.RedisDB = f.Cache.RedisDB
	cfg.Cache.TTL = f.Cache.TTL.or(cfg.Cache.TTL)

	if f.StatePath != "" {
		cfg.StatePath = f.StatePath
	}
	if f.ReportSchedule != "" {
		cfg.ReportSchedule = f.ReportSchedule
	}
	return cfg
}

// applyEnv reads credentials and environment overrides. Unknown
// variables are ignored.
func applyEnv(cfg *Config) error {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	} else if host := os.Getenv("DB_HOST"); host != "" {
		port := envOr("DB_PORT", "5432")
		name := envOr("DB_NAME", "pulsefeed")
		user := envOr("DB_USER", "pulsefeed")
		pass := os.Getenv("DB_PASSWORD")
		ssl := envOr("DB_SSLMODE", "disable")
		cfg.Database.DSN = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
			host, port, name, user, pass, ssl)
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}

	cfg.Secrets.TwitterBearerToken = os.Getenv("TWITTER_BEARER_TOKEN")
	cfg.Secrets.RedditUserAgent = envOr("REDDIT_USER_AGENT", "pulsefeed/1.0")
	cfg.Secrets.TelegramBridgeKey = os.Getenv("TELEGRAM_BRIDGE_KEY")
	cfg.Secrets.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Secrets.LLMAPIKey = os.Getenv("LLM_API_KEY")
	cfg.Secrets.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.Secrets.ProxyURL = os.Getenv("PROXY_URL")

	if raw := os.Getenv("TELEGRAM_CHANNEL_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHANNEL_ID: %w", err)
		}
		cfg.Secrets.TelegramChatID = id
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database: max_idle_conns cannot exceed max_open_conns")
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("database: query_timeout must be positive")
	}
	for name, d := range map[string]time.Duration{
		"twitter":  c.Intervals.Twitter,
		"telegram": c.Intervals.Telegram,
		"reddit":   c.Intervals.Reddit,
		"dqm":      c.Intervals.DQM,
	} {
		if d < time.Second {
			return fmt.Errorf("intervals: %s must be at least 1s", name)
		}
	}
	if c.Registry.AssetsPath == "" || c.Registry.SourcesPath == "" {
		return fmt.Errorf("registry: assets_path and sources_path are required")
	}
	if c.Secrets.TelegramBotToken != "" && c.Secrets.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}
