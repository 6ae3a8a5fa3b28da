package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/umanagarjuna/go-content-cache/internal/content/domain"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	JSONAPI JSONAPIConfig `mapstructure:"jsonapi"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Purge   PurgeConfig   `mapstructure:"purge"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type JSONAPIConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	Coalesce bool          `mapstructure:"coalesce"`
}

type PurgeConfig struct {
	Token string `mapstructure:"token"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// legacyEnv maps keys onto the variable names of the original deployment.
var legacyEnv = map[string]string{
	"jsonapi.base_url": "JSONAPI_BASE_URL",
	"jsonapi.username": "JSONAPI_USERNAME",
	"jsonapi.password": "JSONAPI_PASSWORD",
	"redis.host":       "WEBSITE_REDIS_HOST",
	"redis.port":       "WEBSITE_REDIS_PORT",
	"redis.password":   "WEBSITE_REDIS_PASSWORD",
	"purge.token":      "WEBSITE_CACHE_PURGE_TOKEN",
}

// Load reads configuration from an optional YAML file and the environment.
// An empty path searches ./configs and the working directory for
// config.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("CONTENT_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "CONTENT_SERVICE_"+envKey(key), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	err := v.Unmarshal(&config, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls", false)
	v.SetDefault("redis.timeout", "3s")
	v.SetDefault("jsonapi.timeout", "10s")
	v.SetDefault("cache.ttl", "168h")
	v.SetDefault("cache.coalesce", true)
	v.SetDefault("purge.token", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "content.cache.purged")
	v.SetDefault("log.development", false)
}

func envKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.JSONAPI.BaseURL == "" {
		return domain.Validation("jsonapi.base_url", "is required")
	}
	u, err := url.Parse(c.JSONAPI.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.Validation("jsonapi.base_url", "must be an absolute http(s) URL")
	}
	if c.Cache.TTL < 0 {
		return domain.Validation("cache.ttl", "must not be negative")
	}
	if c.Redis.Port <= 0 {
		return domain.Validation("redis.port", "must be positive")
	}
	return nil
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
