package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FetchConcurrent = "concurrent"
	FetchSequential = "sequential"

	SinkStore = "store"
	SinkPrint = "print"

	ClassifierHF  = "hf"
	ClassifierLLM = "llm"
)

type Config struct {
	AppPort string `yaml:"app_port"`

	// 全局访问密码（Basic Auth），为空则不启用
	BasicAuthUser string `yaml:"basic_auth_user"`
	BasicAuthPass string `yaml:"basic_auth_pass"`

	// DBDSN 为文件路径时使用 sqlite；以 postgres:// 或 host= 开头时使用 PostgreSQL
	DBDSN     string `yaml:"db_dsn"`
	RedisAddr string `yaml:"redis_addr"`

	CronSpec string `yaml:"cron_spec"`

	SiteBaseURL  string        `yaml:"site_base_url"`
	PageCount    int           `yaml:"page_count"`
	FetchMode    string        `yaml:"fetch_mode"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Sink         string        `yaml:"sink"`
	SkipInvalid  bool          `yaml:"skip_invalid"`

	Classifier string    `yaml:"classifier"`
	HF         HFConfig  `yaml:"hf"`
	LLM        LLMConfig `yaml:"llm"`

	Log LogConfig `yaml:"log"`
}

// HFConfig Hugging Face Inference API 兼容的分类服务
type HFConfig struct {
	APIURL string `yaml:"api_url"`
	Token  string `yaml:"token"`
	Model  string `yaml:"model"`
}

// LLMConfig OpenAI 协议兼容的大模型配置
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	RPM     int    `yaml:"rpm"`
	QPS     int    `yaml:"qps"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load 先读取环境变量（带默认值），如设置了 CONFIG_FILE 再用 YAML 覆盖
func Load() (*Config, error) {
	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		BasicAuthUser: getEnv("APP_BASIC_USER", ""),
		BasicAuthPass: getEnv("APP_BASIC_PASS", ""),
		DBDSN:         getEnv("DB_DSN", "sentiment.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		CronSpec:      getEnv("CRON_SPEC", "0 * * * *"),
		SiteBaseURL:   getEnv("SITE_BASE_URL", "https://oilprice.com"),
		PageCount:     getEnvInt("PAGE_COUNT", 10),
		FetchMode:     getEnv("FETCH_MODE", FetchConcurrent),
		FetchTimeout:  getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		Sink:          getEnv("SINK", SinkStore),
		SkipInvalid:   getEnvBool("SKIP_INVALID", false),
		Classifier:    getEnv("CLASSIFIER", ClassifierHF),
		HF: HFConfig{
			APIURL: getEnv("HF_API_URL", "https://api-inference.huggingface.co/models"),
			Token:  getEnv("HF_API_TOKEN", ""),
			Model:  getEnv("HF_MODEL", "mrm8488/distilroberta-finetuned-financial-news-sentiment-analysis"),
		},
		LLM: LLMConfig{
			BaseURL: getEnv("LLM_BASE_URL", ""),
			APIKey:  getEnv("LLM_API_KEY", ""),
			Model:   getEnv("LLM_MODEL", ""),
			RPM:     getEnvInt("LLM_RPM", 60),
			QPS:     getEnvInt("LLM_QPS", 1),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查取值范围，错误配置在启动时直接失败
func (c *Config) Validate() error {
	if c.PageCount < 1 {
		return fmt.Errorf("config: page count must be positive, got %d", c.PageCount)
	}
	switch c.FetchMode {
	case FetchConcurrent, FetchSequential:
	default:
		return fmt.Errorf("config: unknown fetch mode %q", c.FetchMode)
	}
	switch c.Sink {
	case SinkStore, SinkPrint:
	default:
		return fmt.Errorf("config: unknown sink %q", c.Sink)
	}
	switch c.Classifier {
	case ClassifierHF, ClassifierLLM:
	default:
		return fmt.Errorf("config: unknown classifier %q", c.Classifier)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
