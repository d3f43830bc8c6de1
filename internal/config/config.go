// Package config handles application configuration management using Viper
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/raykavin/rsdash/pkg/core"
	"github.com/raykavin/rsdash/pkg/refresh"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"github.com/xhit/go-str2duration/v2"
)

// EnvPrefix prefixes every environment variable, e.g. RSDASH_BACKEND_URL
const EnvPrefix = "RSDASH"

// Constants for configuration
const (
	DefaultBackendURL  = "http://localhost:8000"
	DefaultTimeout     = "30s"
	DefaultCacheTTL    = "1d"
	DefaultHistoryPath = "./rsdash.db"
	DefaultPort        = 8080
)

// AppConfig holds the application configuration
type AppConfig struct {
	Backend     BackendConfig
	DefaultYear string
	Policy      refresh.Policy
	Cache       CacheConfig
	History     HistoryConfig
	Server      ServerConfig
	Telegram    TelegramConfig
	Mail        MailConfig
}

// BackendConfig describes the service answering the update route
type BackendConfig struct {
	URL     string
	Timeout time.Duration
	Retries int
}

// CacheConfig configures the payload cache; an empty path keeps it in memory
type CacheConfig struct {
	Enabled bool
	Path    string
	TTL     time.Duration
}

// HistoryConfig configures the refresh history database
type HistoryConfig struct {
	Enabled bool
	Path    string
}

// ServerConfig configures the dashboard server
type ServerConfig struct {
	Port  int
	Debug bool
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled bool
	Token   string
	Users   []int
}

// MailConfig holds email notification configuration
type MailConfig struct {
	Enabled       bool
	Host          string
	Port          int
	From          string
	To            string
	Password      string
	NotifySuccess bool
}

// Load reads the configuration from the environment and, when path is not
// empty, from the given file. Environment variables take precedence.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return build(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", DefaultBackendURL)
	v.SetDefault("backend.timeout", DefaultTimeout)
	v.SetDefault("backend.retries", 0)
	v.SetDefault("year.default", core.DefaultYear)
	v.SetDefault("refresh.policy", refresh.LatestInvocation.String())
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", DefaultHistoryPath)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.debug", false)
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.notify_success", false)
}

func build(v *viper.Viper) (*AppConfig, error) {
	timeout, err := duration(v, "backend.timeout")
	if err != nil {
		return nil, err
	}

	ttl, err := duration(v, "cache.ttl")
	if err != nil {
		return nil, err
	}

	policy, ok := refresh.ParsePolicy(v.GetString("refresh.policy"))
	if !ok {
		return nil, fmt.Errorf("invalid refresh.policy %q", v.GetString("refresh.policy"))
	}

	users, err := userIDs(v.GetStringSlice("telegram.users"))
	if err != nil {
		return nil, err
	}

	config := &AppConfig{
		Backend: BackendConfig{
			URL:     v.GetString("backend.url"),
			Timeout: timeout,
			Retries: v.GetInt("backend.retries"),
		},
		DefaultYear: core.NormalizeYear(v.GetString("year.default")),
		Policy:      policy,
		Cache: CacheConfig{
			Enabled: v.GetBool("cache.enabled"),
			Path:    v.GetString("cache.path"),
			TTL:     ttl,
		},
		History: HistoryConfig{
			Enabled: v.GetBool("history.enabled"),
			Path:    v.GetString("history.path"),
		},
		Server: ServerConfig{
			Port:  v.GetInt("server.port"),
			Debug: v.GetBool("server.debug"),
		},
		Telegram: TelegramConfig{
			Enabled: v.GetBool("telegram.enabled"),
			Token:   v.GetString("telegram.token"),
			Users:   users,
		},
		Mail: MailConfig{
			Enabled:       v.GetBool("mail.enabled"),
			Host:          v.GetString("mail.host"),
			Port:          v.GetInt("mail.port"),
			From:          v.GetString("mail.from"),
			To:            v.GetString("mail.to"),
			Password:      v.GetString("mail.password"),
			NotifySuccess: v.GetBool("mail.notify_success"),
		},
	}

	if config.Telegram.Enabled && config.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram.token is required when telegram is enabled")
	}

	return config, nil
}

// duration parses values such as 90s, 12h or 1d
func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" || raw == "0" {
		return 0, nil
	}

	value, err := str2duration.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return value, nil
}

// userIDs accepts ids separated by spaces or commas
func userIDs(values []string) ([]int, error) {
	fields := lo.FlatMap(values, func(value string, _ int) []string {
		return strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
	})

	ids := make([]int, 0, len(fields))
	for _, field := range fields {
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram user id %q: %w", field, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Settings returns the core settings derived from the configuration
func (c *AppConfig) Settings() core.Settings {
	return core.Settings{
		BackendURL:  c.Backend.URL,
		DefaultYear: c.DefaultYear,
		Timeout:     c.Backend.Timeout,
		Retries:     c.Backend.Retries,
		Telegram: core.TelegramSettings{
			Enabled: c.Telegram.Enabled,
			Token:   c.Telegram.Token,
			Users:   c.Telegram.Users,
		},
	}
}
