package config

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env              string           `mapstructure:"env"`
	LogLevel         string           `mapstructure:"log_level"`
	LogType          string           `mapstructure:"log_type"`
	ServiceName      string           `mapstructure:"service_name"`
	Port             string           `mapstructure:"port"`
	Version          string           `mapstructure:"version"`
	ValidatorSetting *ValidatorConfig `mapstructure:"validator"`
	FetcherSettings  *FetcherConfig   `mapstructure:"fetcher"`
	ArchiveSettings  *ArchiveConfig   `mapstructure:"archive"`
	AuthSettings     *AuthConfig      `mapstructure:"auth"`
	ThrottleSettings *ThrottleConfig  `mapstructure:"throttle"`
	CacheSettings    *CacheConfig     `mapstructure:"cache"`
	DbSettings       *DatabaseConfig  `mapstructure:"database"`
	KafkaSettings    *KafkaConfig     `mapstructure:"kafka"`
	S3Settings       *S3Config        `mapstructure:"s3"`
}

type ValidatorConfig struct {
	MaxURLLength int `mapstructure:"max_url_length"`
}

type FetcherConfig struct {
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxBodySize          int           `mapstructure:"max_body_size"`
	UserAgent            string        `mapstructure:"user_agent"`
	ResolveBeforeConnect bool          `mapstructure:"resolve_before_connect"` // DNS rebinding guard
}

type ArchiveConfig struct {
	Dir               string        `mapstructure:"dir"`
	WorkDir           string        `mapstructure:"work_dir"`
	Storage           string        `mapstructure:"storage"` // local or s3
	ToolPath          string        `mapstructure:"tool_path"`
	ToolTimeout       time.Duration `mapstructure:"tool_timeout"`
	Extension         string        `mapstructure:"extension"`
	PassphraseLength  int           `mapstructure:"passphrase_length"`
	PassphraseCharset string        `mapstructure:"passphrase_charset"`
}

type AuthConfig struct {
	JwtSecret  string `mapstructure:"jwt_secret"`
	CookieName string `mapstructure:"cookie_name"`
}

type ThrottleConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

type CacheConfig struct {
	Servers string `mapstructure:"servers"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type KafkaConfig struct {
	Producer *ProducerConfig `mapstructure:"producer"`
}

type ProducerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	WriteTopicName string        `mapstructure:"write_topic_name"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequiredAsks   int           `mapstructure:"required_acks"`
	Async          bool          `mapstructure:"async"`
}

type S3Config struct {
	AwsAccessKey    string `mapstructure:"aws_access_key"`
	AwsSecretKey    string `mapstructure:"aws_secret_key"`
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

// MinPassphraseLength is the floor applied to any configured passphrase length.
const MinPassphraseLength = 8

func MustLoad() *Config {
	cfg, err := Load(path.Join(".", "config.yaml"))
	if err != nil {
		slog.Error("can't initialize config.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return cfg
}

// Load reads the yaml file at filePath. Environment variables override file values,
// e.g. FETCHER_TIMEOUT=10s overrides fetcher.timeout.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_type", "text")
	v.SetDefault("service_name", "url-scrape-archiver")
	v.SetDefault("port", "5000")

	v.SetDefault("validator.max_url_length", 2048)

	v.SetDefault("fetcher.timeout", 5*time.Second)
	v.SetDefault("fetcher.max_body_size", 10*1024*1024)
	v.SetDefault("fetcher.user_agent", "url-scrape-archiver")
	v.SetDefault("fetcher.resolve_before_connect", true)

	v.SetDefault("archive.dir", "./files")
	v.SetDefault("archive.work_dir", "./files/.staging")
	v.SetDefault("archive.storage", "local")
	v.SetDefault("archive.tool_path", "7z")
	v.SetDefault("archive.tool_timeout", 30*time.Second)
	v.SetDefault("archive.extension", ".zip")
	v.SetDefault("archive.passphrase_length", 16)
	v.SetDefault("archive.passphrase_charset", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.cookie_name", "token")

	v.SetDefault("throttle.max_requests", 30)
	v.SetDefault("throttle.window", time.Minute)

	v.SetDefault("cache.servers", "")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", "3306")
	v.SetDefault("kafka.producer.enabled", false)
	v.SetDefault("kafka.producer.batch_size", 10)
	v.SetDefault("kafka.producer.batch_timeout", time.Second)
	v.SetDefault("kafka.producer.write_timeout", 10*time.Second)

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.key_prefix", "artifacts")
}

func (c *Config) validate() error {
	if c.AuthSettings.JwtSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.ArchiveSettings.PassphraseLength < MinPassphraseLength {
		return fmt.Errorf("archive.passphrase_length must be at least %d", MinPassphraseLength)
	}
	if len(c.ArchiveSettings.PassphraseCharset) < 2 {
		return fmt.Errorf("archive.passphrase_charset must contain at least 2 characters")
	}
	if !strings.HasPrefix(c.ArchiveSettings.Extension, ".") {
		return fmt.Errorf("archive.extension must start with a dot")
	}
	switch c.ArchiveSettings.Storage {
	case "local", "s3":
	default:
		return fmt.Errorf("unsupported archive.storage %q", c.ArchiveSettings.Storage)
	}

	return nil
}
