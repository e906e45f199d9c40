package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type DefaultSetting struct {
	Name              string `mapstructure:"NAME"`
	Description       string `mapstructure:"DESCRIPTION"`
	LoginDaysRequired int    `mapstructure:"LOGIN_DAYS_REQUIRED"`
	TokenAmount       int64  `mapstructure:"TOKEN_AMOUNT"`
	ExpiresAfterDays  int    `mapstructure:"EXPIRES_AFTER_DAYS"`
}

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
		Insecure bool   `mapstructure:"INSECURE"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		Metrics        bool   `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Snowflake struct {
		NodeID int64 `mapstructure:"NODE_ID"`
	} `mapstructure:"SNOWFLAKE"`
	Rewards struct {
		Timezone           string           `mapstructure:"TIMEZONE"`
		ClaimTimeout       time.Duration    `mapstructure:"CLAIM_TIMEOUT"`
		ReconcileAfter     time.Duration    `mapstructure:"RECONCILE_AFTER"`
		ReconcileInterval  time.Duration    `mapstructure:"RECONCILE_INTERVAL"`
		ReconcileBatchSize int              `mapstructure:"RECONCILE_BATCH_SIZE"`
		ExpiryBatchSize    int              `mapstructure:"EXPIRY_BATCH_SIZE"`
		CatalogCacheTTL    time.Duration    `mapstructure:"CATALOG_CACHE_TTL"`
		DefaultSettings    []DefaultSetting `mapstructure:"DEFAULT_SETTINGS"`
	} `mapstructure:"REWARDS"`
	Crediting struct {
		BaseURL           string        `mapstructure:"BASE_URL"`
		APIKey            string        `mapstructure:"API_KEY"`
		Timeout           time.Duration `mapstructure:"TIMEOUT"`
		LookupSupported   bool          `mapstructure:"LOOKUP_SUPPORTED"`
		BreakerMaxRequest uint32        `mapstructure:"BREAKER_MAX_REQUESTS"`
		BreakerInterval   time.Duration `mapstructure:"BREAKER_INTERVAL"`
		BreakerTimeout    time.Duration `mapstructure:"BREAKER_TIMEOUT"`
		FailureThreshold  uint32        `mapstructure:"FAILURE_THRESHOLD"`
	} `mapstructure:"CREDITING"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Consul struct {
		Addr        string `mapstructure:"ADDR"`
		ServiceHost string `mapstructure:"SERVICE_HOST"`
	} `mapstructure:"CONSUL"`
	RateLimit struct {
		ClaimsPerMinute int `mapstructure:"CLAIMS_PER_MINUTE"`
		Burst           int `mapstructure:"BURST"`
	} `mapstructure:"RATE_LIMIT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "smallbiznis-rewards")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.POOL_SIZE", 20)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("SNOWFLAKE.NODE_ID", 1)
	v.SetDefault("REWARDS.TIMEZONE", "UTC")
	v.SetDefault("REWARDS.CLAIM_TIMEOUT", 10*time.Second)
	v.SetDefault("REWARDS.RECONCILE_AFTER", 2*time.Minute)
	v.SetDefault("REWARDS.RECONCILE_INTERVAL", 5*time.Minute)
	v.SetDefault("REWARDS.RECONCILE_BATCH_SIZE", 100)
	v.SetDefault("REWARDS.EXPIRY_BATCH_SIZE", 500)
	v.SetDefault("REWARDS.CATALOG_CACHE_TTL", time.Minute)
	v.SetDefault("CREDITING.TIMEOUT", 8*time.Second)
	v.SetDefault("CREDITING.BREAKER_MAX_REQUESTS", 1)
	v.SetDefault("CREDITING.BREAKER_INTERVAL", time.Minute)
	v.SetDefault("CREDITING.BREAKER_TIMEOUT", 30*time.Second)
	v.SetDefault("CREDITING.FAILURE_THRESHOLD", 5)
	v.SetDefault("RATE_LIMIT.CLAIMS_PER_MINUTE", 30)
	v.SetDefault("RATE_LIMIT.BURST", 5)
}

func LoadConfig(p Params) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		zap.L().Info("config.yaml not found, using environment only")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if p.Vault != nil {
		if err := overlaySecrets(context.Background(), p.Vault, &cfg); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func overlaySecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("database_user", cfg.Database.User)
	cfg.Database.Password = get("database_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Crediting.APIKey = get("crediting_api_key", cfg.Crediting.APIKey)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)
	return nil
}

// Location resolves the timezone used to turn login timestamps into calendar days.
func (c *Config) Location() *time.Location {
	if c == nil || c.Rewards.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Rewards.Timezone)
	if err != nil {
		zap.L().Warn("invalid rewards timezone, falling back to UTC", zap.String("timezone", c.Rewards.Timezone), zap.Error(err))
		return time.UTC
	}
	return loc
}
