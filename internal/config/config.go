package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"healthwatch/internal/logger"
)

const EnvPrefix = "HW"

type Config struct {
	Addr       string           `mapstructure:"addr"`
	InstanceID string           `mapstructure:"instance_id"`
	DB         DBConfig         `mapstructure:"db"`
	Log        logger.Config    `mapstructure:"log"`
	Collection CollectionConfig `mapstructure:"collection"`
	Health     HealthConfig     `mapstructure:"health"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Lease      LeaseConfig      `mapstructure:"lease"`
	Events     EventsConfig     `mapstructure:"events"`
	Docker     DockerConfig     `mapstructure:"docker"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3 or postgres
	DSN    string `mapstructure:"dsn"`
}

type CollectionConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Workers  int           `mapstructure:"workers"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// InlineEvaluation runs health and alert evaluation right after each collection.
	InlineEvaluation bool `mapstructure:"inline_evaluation"`
}

type HealthConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	RecentMetrics     int           `mapstructure:"recent_metrics"`
	LatencyWarningMs  int64         `mapstructure:"latency_warning_ms"`
	LatencyCriticalMs int64         `mapstructure:"latency_critical_ms"`
}

type AlertsConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	RecentMetrics int           `mapstructure:"recent_metrics"`
}

type RetentionConfig struct {
	Days int    `mapstructure:"days"`
	Cron string `mapstructure:"cron"`
}

type LeaseWindow struct {
	AtMost  time.Duration `mapstructure:"at_most"`
	AtLeast time.Duration `mapstructure:"at_least"`
}

type LeaseConfig struct {
	Collection LeaseWindow `mapstructure:"collection"`
	Health     LeaseWindow `mapstructure:"health"`
	Alerts     LeaseWindow `mapstructure:"alerts"`
	Retention  LeaseWindow `mapstructure:"retention"`
}

type EventsConfig struct {
	Buffer  int `mapstructure:"buffer"`
	Workers int `mapstructure:"workers"`
}

type DockerConfig struct {
	Socket string `mapstructure:"socket"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	SendGrid SendGridConfig `mapstructure:"sendgrid"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type SendGridConfig struct {
	APIKey string `mapstructure:"api_key"`
	From   string `mapstructure:"from"`
	To     string `mapstructure:"to"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
	TLS      bool   `mapstructure:"tls"`
}

var defaults = map[string]interface{}{
	"addr":                         ":8080",
	"instance_id":                  "",
	"db.driver":                    "sqlite3",
	"db.dsn":                       "./data/healthwatch.db",
	"log.level":                    "info",
	"log.format":                   "json",
	"log.output":                   "stdout",
	"collection.interval":          "30s",
	"collection.workers":           8,
	"collection.timeout":           "5s",
	"collection.inline_evaluation": true,
	"health.interval":              "60s",
	"health.recent_metrics":        10,
	"health.latency_warning_ms":    1000,
	"health.latency_critical_ms":   3000,
	"alerts.interval":              "60s",
	"alerts.recent_metrics":        10,
	"retention.days":               30,
	"retention.cron":               "0 0 2 * * *",
	"lease.collection.at_most":     "5m",
	"lease.collection.at_least":    "10s",
	"lease.health.at_most":         "5m",
	"lease.health.at_least":        "10s",
	"lease.alerts.at_most":         "5m",
	"lease.alerts.at_least":        "10s",
	"lease.retention.at_most":      "10m",
	"lease.retention.at_least":     "1m",
	"events.buffer":                1000,
	"events.workers":               4,
	"docker.socket":                "",
	"notify.telegram.bot_token":    "",
	"notify.telegram.chat_id":      "",
	"notify.sendgrid.api_key":      "",
	"notify.sendgrid.from":         "",
	"notify.sendgrid.to":           "",
	"notify.smtp.host":             "",
	"notify.smtp.port":             587,
	"notify.smtp.username":         "",
	"notify.smtp.password":         "",
	"notify.smtp.from":             "",
	"notify.smtp.to":               "",
	"notify.smtp.tls":              true,
}

// New returns a viper instance with defaults and HW_ environment overrides applied.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads an optional config file (YAML or TOML by extension) on top of
// defaults and environment, then validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default is the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.InstanceID = defaultInstanceID()
	return cfg
}

func (c *Config) Validate() error {
	if c.DB.Driver != "sqlite3" && c.DB.Driver != "postgres" {
		return fmt.Errorf("db.driver must be sqlite3 or postgres, got %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	for name, d := range map[string]time.Duration{
		"collection.interval": c.Collection.Interval,
		"collection.timeout":  c.Collection.Timeout,
		"health.interval":     c.Health.Interval,
		"alerts.interval":     c.Alerts.Interval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Collection.Workers < 1 {
		return fmt.Errorf("collection.workers must be at least 1")
	}
	if c.Health.RecentMetrics < 1 || c.Alerts.RecentMetrics < 1 {
		return fmt.Errorf("recent_metrics must be at least 1")
	}
	if c.Health.LatencyWarningMs <= 0 || c.Health.LatencyCriticalMs <= c.Health.LatencyWarningMs {
		return fmt.Errorf("latency thresholds must satisfy critical > warning > 0")
	}
	if c.Retention.Days < 1 {
		return fmt.Errorf("retention.days must be at least 1")
	}
	for name, w := range map[string]LeaseWindow{
		"collection": c.Lease.Collection,
		"health":     c.Lease.Health,
		"alerts":     c.Lease.Alerts,
		"retention":  c.Lease.Retention,
	} {
		if w.AtLeast < 0 || w.AtMost <= 0 || w.AtLeast > w.AtMost {
			return fmt.Errorf("lease.%s: need 0 <= at_least <= at_most and at_most > 0", name)
		}
	}
	if c.Events.Buffer < 1 || c.Events.Workers < 1 {
		return fmt.Errorf("events.buffer and events.workers must be at least 1")
	}
	return nil
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "healthwatch"
	}
	return host + "-" + uuid.NewString()[:8]
}
