package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the blog automation system.
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	SerpAPI    SerpAPIConfig    `mapstructure:"serpapi"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Automation AutomationConfig `mapstructure:"automation"`
	Templates  TemplatesConfig  `mapstructure:"templates"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// SerpAPIConfig configures the trending-search content provider.
type SerpAPIConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Region   string        `mapstructure:"region"`
	Category string        `mapstructure:"category"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (s SerpAPIConfig) Validate() error {
	if strings.TrimSpace(s.Region) == "" {
		return fmt.Errorf("serpapi.region is required")
	}
	return nil
}

// GeminiConfig configures the generation provider.
type GeminiConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func (g GeminiConfig) Validate() error {
	if strings.TrimSpace(g.Model) == "" {
		return fmt.Errorf("gemini.model is required")
	}
	return nil
}

// AutomationConfig controls the pipeline cadence and fallbacks.
type AutomationConfig struct {
	CycleCron           string        `mapstructure:"cycle_cron"`    // when to run the full pipeline
	FetchCron           string        `mapstructure:"fetch_cron"`    // when to refresh trending topics
	PublishSweepEvery   time.Duration `mapstructure:"publish_sweep_every"`
	TopicLookback       time.Duration `mapstructure:"topic_lookback"`
	PublishMode         string        `mapstructure:"publish_mode"` // immediate or scheduled
	PublishDelay        time.Duration `mapstructure:"publish_delay"`
	DefaultTopics       []string      `mapstructure:"default_topics"`
	MaxContextArticles  int           `mapstructure:"max_context_articles"`
	BannedKeywords      []string      `mapstructure:"banned_keywords"`
	TopicSelectionLimit int           `mapstructure:"topic_selection_limit"`
}

// Normalize applies defaults for unset automation values.
func (a AutomationConfig) Normalize() AutomationConfig {
	if a.CycleCron == "" {
		a.CycleCron = "@hourly"
	}
	if a.FetchCron == "" {
		a.FetchCron = "@hourly"
	}
	if a.PublishSweepEvery <= 0 {
		a.PublishSweepEvery = 10 * time.Minute
	}
	if a.TopicLookback <= 0 {
		a.TopicLookback = 4 * time.Hour
	}
	if a.PublishMode == "" {
		a.PublishMode = "immediate"
	}
	if a.PublishDelay <= 0 {
		a.PublishDelay = 10 * time.Minute
	}
	if len(a.DefaultTopics) == 0 {
		a.DefaultTopics = []string{
			"how to improve productivity working from home",
			"best budget travel destinations",
			"beginner guide to personal finance",
		}
	}
	if a.TopicSelectionLimit <= 0 {
		a.TopicSelectionLimit = 10
	}
	return a
}

func (a AutomationConfig) Validate() error {
	switch a.PublishMode {
	case "immediate", "scheduled":
	default:
		return fmt.Errorf("automation.publish_mode must be immediate or scheduled, got %q", a.PublishMode)
	}
	return nil
}

// TemplatesConfig locates the template catalog.
type TemplatesConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
	Dir         string `mapstructure:"dir"`
}

func (t TemplatesConfig) Validate() error {
	if strings.TrimSpace(t.CatalogPath) == "" {
		return fmt.Errorf("templates.catalog_path is required")
	}
	return nil
}

// StorageConfig contains storage and persistence settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN assembles a postgres connection string from the configured parts.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

// LoadConfig loads config from file, applying BLOGIFY_* env overrides.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("serpapi.region", "US")
	viper.SetDefault("serpapi.timeout", "30s")
	viper.SetDefault("gemini.model", "gemini-1.5-pro")
	viper.SetDefault("gemini.temperature", 0.7)
	viper.SetDefault("gemini.max_output_tokens", 8192)
	viper.SetDefault("gemini.timeout", "90s")
	viper.SetDefault("templates.catalog_path", "templates/catalog.json")
	viper.SetDefault("templates.dir", "templates")

	if path == "" {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("BLOGIFY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	config.Automation = config.Automation.Normalize()

	if err := config.SerpAPI.Validate(); err != nil {
		return nil, err
	}
	if err := config.Gemini.Validate(); err != nil {
		return nil, err
	}
	if err := config.Automation.Validate(); err != nil {
		return nil, err
	}
	if err := config.Templates.Validate(); err != nil {
		return nil, err
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		return nil, err
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
