package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nurpe/freight/internal/model"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

type AuthConfig struct {
	AccessSecret string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type ESIConfig struct {
	BaseURL      string
	SSOURL       string
	ClientID     string
	ClientSecret string
}

type DiscordConfig struct {
	WebhookURL      string
	Mentions        []string
	DisableBranding bool
}

type FreightConfig struct {
	OperationMode         model.OperationMode
	SyncGrace             time.Duration
	HoursUntilStaleStatus int
	FetchTimeout          time.Duration
	TokenTimeout          time.Duration
	SyncWorkers           int
	SyncLeaseTTL          time.Duration
	FullRouteNames        bool
	RepricingSettle       time.Duration
	NotifyQueueSize       int
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	ESI         ESIConfig
	Discord     DiscordConfig
	Freight     FreightConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	setDefaults(v)
	_ = v.ReadInConfig()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 7089)
	v.SetDefault("KAFKA_TOPIC", "freight.contract-events")
	v.SetDefault("ESI_BASE_URL", "https://esi.evetech.net/latest")
	v.SetDefault("ESI_SSO_URL", "https://login.eveonline.com/v2/oauth/token")
	v.SetDefault("FREIGHT_OPERATION_MODE", string(model.OperationModeMyAlliance))
	v.SetDefault("FREIGHT_SYNC_GRACE_MINUTES", 30)
	v.SetDefault("FREIGHT_HOURS_UNTIL_STALE_STATUS", 24)
	v.SetDefault("FREIGHT_FETCH_TIMEOUT", "30s")
	v.SetDefault("FREIGHT_TOKEN_TIMEOUT", "10s")
	v.SetDefault("FREIGHT_SYNC_WORKERS", 4)
	v.SetDefault("FREIGHT_SYNC_LEASE_TTL", "10m")
	v.SetDefault("FREIGHT_REPRICING_SETTLE", "2s")
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Kafka: KafkaConfig{
			Brokers: parseList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		ESI: ESIConfig{
			BaseURL:      strings.TrimRight(v.GetString("ESI_BASE_URL"), "/"),
			SSOURL:       v.GetString("ESI_SSO_URL"),
			ClientID:     v.GetString("ESI_CLIENT_ID"),
			ClientSecret: v.GetString("ESI_CLIENT_SECRET"),
		},
		Discord: DiscordConfig{
			WebhookURL:      v.GetString("FREIGHT_DISCORD_WEBHOOK_URL"),
			Mentions:        parseList(v.GetString("FREIGHT_DISCORD_MENTIONS")),
			DisableBranding: v.GetBool("FREIGHT_DISCORD_DISABLE_BRANDING"),
		},
		Freight: FreightConfig{
			OperationMode:         model.OperationMode(strings.TrimSpace(v.GetString("FREIGHT_OPERATION_MODE"))),
			SyncGrace:             time.Duration(v.GetInt("FREIGHT_SYNC_GRACE_MINUTES")) * time.Minute,
			HoursUntilStaleStatus: v.GetInt("FREIGHT_HOURS_UNTIL_STALE_STATUS"),
			FetchTimeout:          v.GetDuration("FREIGHT_FETCH_TIMEOUT"),
			TokenTimeout:          v.GetDuration("FREIGHT_TOKEN_TIMEOUT"),
			SyncWorkers:           v.GetInt("FREIGHT_SYNC_WORKERS"),
			SyncLeaseTTL:          v.GetDuration("FREIGHT_SYNC_LEASE_TTL"),
			FullRouteNames:        v.GetBool("FREIGHT_FULL_ROUTE_NAMES"),
			RepricingSettle:       v.GetDuration("FREIGHT_REPRICING_SETTLE"),
			NotifyQueueSize:       v.GetInt("NOTIFY_QUEUE_SIZE"),
		},
	}

	if cfg.Freight.SyncWorkers <= 0 {
		cfg.Freight.SyncWorkers = 1
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if _, err := model.ParseOperationMode(string(cfg.Freight.OperationMode)); err != nil {
		return fmt.Errorf("FREIGHT_OPERATION_MODE: %w", err)
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
