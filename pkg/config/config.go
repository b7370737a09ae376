package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/carmandale/SPY-tracker-sub000/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Tracker struct {
		Symbol     string        `yaml:"symbol"`
		Timezone   string        `yaml:"timezone"`
		TickSize   float64       `yaml:"tick_size"`
		JobTimeout time.Duration `yaml:"job_timeout"`
		Schedule   struct {
			Forecast     string `yaml:"forecast"`
			PreMarket    string `yaml:"pre_market"`
			Open         string `yaml:"open"`
			Noon         string `yaml:"noon"`
			MidAfternoon string `yaml:"mid_afternoon"`
			Close        string `yaml:"close"`
			Score        string `yaml:"score"`
		} `yaml:"schedule"`
	} `yaml:"tracker"`
	SQLite struct {
		Path        string        `yaml:"path"`
		BusyTimeout time.Duration `yaml:"busy_timeout"`
	} `yaml:"sqlite"`
	MarketData struct {
		BaseURL        string        `yaml:"base_url"`
		APIKey         string        `yaml:"api_key"`
		Timeout        time.Duration `yaml:"timeout"`
		RetryMax       int           `yaml:"retry_max"`
		RatePerSec     float64       `yaml:"rate_per_sec"`
		RateBurst      int           `yaml:"rate_burst"`
		WebSocketURL   string        `yaml:"websocket_url"`
		StaleAfter     time.Duration `yaml:"stale_after"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"market_data"`
	Forecast struct {
		ServiceURL string        `yaml:"service_url"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"forecast"`
	Audit struct {
		Sink string `yaml:"sink"` // clickhouse, kafka, or log
	} `yaml:"audit"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Cache struct {
		TTL   time.Duration `yaml:"ttl"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables. A .env file next to the binary is picked up if present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("MARKET_DATA_URL"); v != "" {
		c.MarketData.BaseURL = v
	}
	if v := os.Getenv("FORECAST_SERVICE_URL"); v != "" {
		c.Forecast.ServiceURL = v
	}
	if v := os.Getenv("TRACKER_SYMBOL"); v != "" {
		c.Tracker.Symbol = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.SQLite.Path = v
	}
	if v := os.Getenv("AUDIT_SINK"); v != "" {
		c.Audit.Sink = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}

	return c, nil
}

// Validate checks if the configuration is valid. A timezone or schedule
// entry that does not parse is a startup error, not a runtime one.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Tracker.Symbol == "" {
		return fmt.Errorf("tracker.symbol is required")
	}
	if c.Tracker.TickSize <= 0 {
		return fmt.Errorf("tracker.tick_size must be positive")
	}
	if _, err := time.LoadLocation(c.Tracker.Timezone); err != nil {
		return fmt.Errorf("tracker.timezone: %w", err)
	}
	for name, raw := range map[string]string{
		"forecast":      c.Tracker.Schedule.Forecast,
		"pre_market":    c.Tracker.Schedule.PreMarket,
		"open":          c.Tracker.Schedule.Open,
		"noon":          c.Tracker.Schedule.Noon,
		"mid_afternoon": c.Tracker.Schedule.MidAfternoon,
		"close":         c.Tracker.Schedule.Close,
		"score":         c.Tracker.Schedule.Score,
	} {
		if _, err := util.ParseTimeOfDay(raw); err != nil {
			return fmt.Errorf("tracker.schedule.%s: %w", name, err)
		}
	}
	if c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is required")
	}
	switch c.Audit.Sink {
	case "clickhouse", "kafka", "log":
	default:
		return fmt.Errorf("audit.sink must be 'clickhouse', 'kafka' or 'log', got '%s'", c.Audit.Sink)
	}
	if c.Audit.Sink == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when audit.sink is kafka")
	}
	return nil
}

// Location resolves the configured market timezone. Validate has already
// confirmed it parses.
func (c *Config) Location() *time.Location {
	loc, _ := time.LoadLocation(c.Tracker.Timezone)
	return loc
}

// ScheduleTime returns one of the named schedule entries as a TimeOfDay.
func (c *Config) ScheduleTime(raw string) util.TimeOfDay {
	t, _ := util.ParseTimeOfDay(raw)
	return t
}
