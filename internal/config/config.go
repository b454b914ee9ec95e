// Package config handles configuration loading for riskwatch.
// It supports YAML config files, a local .env file, and environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. RISKWATCH_SOURCE_STRATEGY.
const EnvPrefix = "RISKWATCH"

// Source strategies understood by the source registry.
const (
	StrategyNaver = "naver"
	StrategyRSS   = "rss"
)

// Config represents the complete application configuration.
type Config struct {
	Keywords  []string        `mapstructure:"keywords"  yaml:"keywords"`
	Timezone  string          `mapstructure:"timezone"  yaml:"timezone"`
	Severity  SeverityConfig  `mapstructure:"severity"  yaml:"severity"`
	Source    SourceConfig    `mapstructure:"source"    yaml:"source"`
	Collector CollectorConfig `mapstructure:"collector" yaml:"collector"`
	Fallback  FallbackConfig  `mapstructure:"fallback"  yaml:"fallback"`
	Report    ReportConfig    `mapstructure:"report"    yaml:"report"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// SeverityConfig holds the trigger lists. RED is always evaluated before AMBER.
type SeverityConfig struct {
	Red   []string `mapstructure:"red"   yaml:"red"`
	Amber []string `mapstructure:"amber" yaml:"amber"`
}

// SourceConfig selects and tunes the upstream news source.
type SourceConfig struct {
	Strategy  string        `mapstructure:"strategy"   yaml:"strategy"` // "naver" or "rss"
	Timeout   time.Duration `mapstructure:"timeout"    yaml:"timeout"`  // per request
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	Naver     NaverConfig   `mapstructure:"naver"      yaml:"naver"`
	RSS       RSSConfig     `mapstructure:"rss"        yaml:"rss"`
}

// NaverConfig describes the search listing page and its markup.
type NaverConfig struct {
	URLTemplate   string `mapstructure:"url_template"   yaml:"url_template"` // %s = escaped keyword
	ItemSelector  string `mapstructure:"item_selector"  yaml:"item_selector"`
	TitleSelector string `mapstructure:"title_selector" yaml:"title_selector"`
	DateSelector  string `mapstructure:"date_selector"  yaml:"date_selector"`
}

// RSSConfig describes a keyword search feed.
type RSSConfig struct {
	URLTemplate string `mapstructure:"url_template" yaml:"url_template"` // %s = escaped keyword
}

// CollectorConfig tunes the aggregation run.
type CollectorConfig struct {
	PerKeywordCap int           `mapstructure:"per_keyword_cap" yaml:"per_keyword_cap"`
	Concurrency   int           `mapstructure:"concurrency"     yaml:"concurrency"`
	Pause         time.Duration `mapstructure:"pause"           yaml:"pause"`    // spacing between query starts
	Deadline      time.Duration `mapstructure:"deadline"        yaml:"deadline"` // whole run
}

// FallbackConfig shapes the synthetic data used when every source fails.
type FallbackConfig struct {
	Keyword    string `mapstructure:"keyword"     yaml:"keyword"`
	Title      string `mapstructure:"title"       yaml:"title"`
	PerKeyword bool   `mapstructure:"per_keyword" yaml:"per_keyword"`
}

// ReportConfig controls the emitted artifact.
type ReportConfig struct {
	Output string `mapstructure:"output" yaml:"output"`
	Title  string `mapstructure:"title"  yaml:"title"`
}

// APIConfig holds the preview server settings.
type APIConfig struct {
	Host     string        `mapstructure:"host"      yaml:"host"`
	Port     int           `mapstructure:"port"      yaml:"port"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "console" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/riskwatch.yaml
//  2. ~/.riskwatch/riskwatch.yaml
//  3. /etc/riskwatch/riskwatch.yaml
//
// A .env file in the working directory is loaded first; variables already
// set in the environment win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigName("riskwatch")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".riskwatch"))
	v.AddConfigPath("/etc/riskwatch")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults + env vars.
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

// Default returns the built-in configuration without consulting files or
// the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// Defaults are static; failing here is a programming error.
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Keywords = trimAll(cfg.Keywords)
	return &cfg, nil
}

// setDefaults mirrors the original deployment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("keywords", []string{"KT텔레캅", "SK쉴더스", "에스원", "보안 사고", "해킹", "개인정보 유출", "산업 재해"})
	v.SetDefault("timezone", "Asia/Seoul")

	v.SetDefault("severity.red", []string{"사망", "유출", "해킹", "화재", "구속"})
	v.SetDefault("severity.amber", []string{"주의", "오류", "점검", "취약"})

	v.SetDefault("source.strategy", StrategyNaver)
	v.SetDefault("source.timeout", "10s")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	v.SetDefault("source.naver.url_template", "https://search.naver.com/search.naver?where=news&query=%s&sort=1")
	v.SetDefault("source.naver.item_selector", "div.news_area")
	v.SetDefault("source.naver.title_selector", "a.news_tit")
	v.SetDefault("source.naver.date_selector", "span.info")
	v.SetDefault("source.rss.url_template", "https://news.google.com/rss/search?q=%s&hl=ko&gl=KR&ceid=KR:ko")

	v.SetDefault("collector.per_keyword_cap", 3)
	v.SetDefault("collector.concurrency", 1)
	v.SetDefault("collector.pause", "500ms")
	v.SetDefault("collector.deadline", "2m")

	v.SetDefault("fallback.keyword", "시스템")
	v.SetDefault("fallback.title", "데이터 수집 실패")
	v.SetDefault("fallback.per_keyword", false)

	v.SetDefault("report.output", "index.html")
	v.SetDefault("report.title", "Security Daily Watch")

	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cache_ttl", "5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate checks the invariants the pipeline relies on.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Keywords) == 0 {
		errs = append(errs, errors.New("keywords: at least one keyword is required"))
	}
	if c.Collector.PerKeywordCap < 1 {
		errs = append(errs, fmt.Errorf("collector.per_keyword_cap: must be >= 1, got %d", c.Collector.PerKeywordCap))
	}
	if c.Collector.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("collector.concurrency: must be >= 1, got %d", c.Collector.Concurrency))
	}
	if c.Collector.Pause < 0 {
		errs = append(errs, errors.New("collector.pause: must not be negative"))
	}
	if c.Collector.Deadline <= 0 {
		errs = append(errs, errors.New("collector.deadline: must be positive"))
	}
	if c.Source.Timeout <= 0 {
		errs = append(errs, errors.New("source.timeout: must be positive"))
	}
	switch c.Source.Strategy {
	case StrategyNaver:
		if !strings.Contains(c.Source.Naver.URLTemplate, "%s") {
			errs = append(errs, errors.New("source.naver.url_template: must contain %s"))
		}
		if c.Source.Naver.TitleSelector == "" {
			errs = append(errs, errors.New("source.naver.title_selector: required"))
		}
	case StrategyRSS:
		if !strings.Contains(c.Source.RSS.URLTemplate, "%s") {
			errs = append(errs, errors.New("source.rss.url_template: must contain %s"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.strategy: unknown strategy %q", c.Source.Strategy))
	}
	if strings.TrimSpace(c.Fallback.Title) == "" {
		errs = append(errs, errors.New("fallback.title: required"))
	}
	if strings.TrimSpace(c.Fallback.Keyword) == "" && !c.Fallback.PerKeyword {
		errs = append(errs, errors.New("fallback.keyword: required unless fallback.per_keyword is set"))
	}
	return errors.Join(errs...)
}

// durationKeys name the fields rendered as "10s" rather than nanoseconds.
var durationKeys = map[string]bool{"timeout": true, "pause": true, "deadline": true, "cache_ttl": true}

// Dump renders the configuration as YAML, including any changes made to c
// after loading. The output loads back through LoadFromFile.
func (c *Config) Dump() ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	humanizeDurations(&doc)
	return yaml.Marshal(&doc)
}

func humanizeDurations(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if !durationKeys[key.Value] || val.Kind != yaml.ScalarNode {
				continue
			}
			if ns, err := strconv.ParseInt(val.Value, 10, 64); err == nil {
				val.SetString(time.Duration(ns).String())
			}
		}
	}
	for _, child := range n.Content {
		humanizeDurations(child)
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
