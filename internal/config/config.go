package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env        string           `yaml:"env"`
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Redis      RedisConfig      `yaml:"redis"`
	Bot        BotConfig        `yaml:"bot"`
	Moderation ModerationConfig `yaml:"moderation"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BotConfig struct {
	Token         string        `yaml:"token"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	NoticeTTL     time.Duration `yaml:"notice_ttl"`
}

// ModerationConfig holds the system-wide defaults applied to chats that have
// no explicitly stored policy.
type ModerationConfig struct {
	LinkFilterEnabled    bool          `yaml:"link_filter_enabled"`
	ForwardFilterEnabled bool          `yaml:"forward_filter_enabled"`
	ViolationThreshold   int           `yaml:"violation_threshold"`
	MuteDuration         time.Duration `yaml:"mute_duration"`
	ViolationTTL         time.Duration `yaml:"violation_ttl"`
}

func Default() Config {
	return Config{
		Env: "dev",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		},
		Log: LogConfig{Level: "debug"},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Bot: BotConfig{
			Token:         "",
			SweepInterval: time.Minute,
			NoticeTTL:     30 * time.Second,
		},
		Moderation: ModerationConfig{
			LinkFilterEnabled:    true,
			ForwardFilterEnabled: false,
			ViolationThreshold:   3,
			MuteDuration:         30 * time.Minute,
			ViolationTTL:         7 * 24 * time.Hour,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Moderation.ViolationThreshold < 1 {
		return Config{}, fmt.Errorf("violation threshold must be >= 1, got %d", cfg.Moderation.ViolationThreshold)
	}
	if cfg.Moderation.MuteDuration < time.Second {
		return Config{}, fmt.Errorf("mute duration must be >= 1s, got %s", cfg.Moderation.MuteDuration)
	}

	return cfg, nil
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Env = v
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if err := overrideDuration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return err
	}
	if err := overrideDuration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return err
	}
	if err := overrideDuration("HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if err := overrideInt("REDIS_DB", &cfg.Redis.DB); err != nil {
		return err
	}

	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if err := overrideDuration("BOT_SWEEP_INTERVAL", &cfg.Bot.SweepInterval); err != nil {
		return err
	}
	if err := overrideDuration("BOT_NOTICE_TTL", &cfg.Bot.NoticeTTL); err != nil {
		return err
	}

	if err := overrideBool("MOD_LINK_FILTER", &cfg.Moderation.LinkFilterEnabled); err != nil {
		return err
	}
	if err := overrideBool("MOD_FORWARD_FILTER", &cfg.Moderation.ForwardFilterEnabled); err != nil {
		return err
	}
	if err := overrideInt("MOD_VIOLATION_THRESHOLD", &cfg.Moderation.ViolationThreshold); err != nil {
		return err
	}
	if err := overrideDuration("MOD_MUTE_DURATION", &cfg.Moderation.MuteDuration); err != nil {
		return err
	}
	if err := overrideDuration("MOD_VIOLATION_TTL", &cfg.Moderation.ViolationTTL); err != nil {
		return err
	}

	return nil
}

func overrideDuration(key string, target *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s duration: %w", key, err)
	}
	*target = d
	return nil
}

func overrideInt(key string, target *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s int: %w", key, err)
	}
	*target = n
	return nil
}

func overrideBool(key string, target *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s bool: %w", key, err)
	}
	*target = b
	return nil
}
