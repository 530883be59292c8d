package config

import (
	"time"

	"github.com/wekeepgrowing/billing-engine/pkg/config"
)

type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	JWT       JWTConfig       `yaml:"jwt"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// LoadConfig reads configs/{APP_ENV}/billing.yaml (or CONFIG_PATH) into the
// typed config. Environment variables prefixed with BILLING_ override file
// values, e.g. BILLING_DATABASE_PASSWORD.
func LoadConfig() (*Config, error) {
	v, err := config.Load("billing")
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.Service.Name = v.GetString("service.name")
	cfg.Service.Environment = v.GetString("service.environment")
	cfg.Service.Version = v.GetString("service.version")
	cfg.Service.ClientURL = v.GetString("service.client_url")
	cfg.Service.Stripe.SecretKey = v.GetString("service.stripe.secret_key")
	cfg.Service.Stripe.WebhookSecret = v.GetString("service.stripe.webhook_secret")
	cfg.Service.Stripe.ConnectedWebhookSecret = v.GetString("service.stripe.connected_webhook_secret")
	cfg.Service.Tax.RatesBasisPoints = toRateMap(v.GetStringMap("service.tax.rates_basis_points"))

	cfg.Database.Host = v.GetString("database.host")
	cfg.Database.Port = v.GetInt("database.port")
	cfg.Database.Name = v.GetString("database.name")
	cfg.Database.User = v.GetString("database.user")
	cfg.Database.Password = v.GetString("database.password")
	cfg.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	cfg.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")
	cfg.Database.ConnMaxLifetime = toDuration(v.GetString("database.conn_max_lifetime"), 30*time.Minute)
	cfg.Database.ConnMaxIdleTime = toDuration(v.GetString("database.conn_max_idle_time"), 10*time.Minute)

	cfg.Server.HTTP.Host = v.GetString("server.http.host")
	cfg.Server.HTTP.Port = v.GetInt("server.http.port")
	cfg.Server.GRPC.Host = v.GetString("server.grpc.host")
	cfg.Server.GRPC.Port = v.GetInt("server.grpc.port")

	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")

	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Log.Output = v.GetString("log.output")
	cfg.Log.FilePath = v.GetString("log.file_path")
	cfg.Log.Development = v.GetBool("log.development")

	cfg.JWT.Secret = v.GetString("jwt.secret")

	cfg.Scheduler.BillingRunSpec = v.GetString("scheduler.billing_run_spec")
	cfg.Scheduler.CancellationSpec = v.GetString("scheduler.cancellation_spec")
	cfg.Scheduler.SessionPurgeSpec = v.GetString("scheduler.session_purge_spec")

	return cfg, nil
}

func toDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func toRateMap(raw map[string]interface{}) map[string]int64 {
	if len(raw) == 0 {
		return nil
	}
	rates := make(map[string]int64, len(raw))
	for jurisdiction, value := range raw {
		switch v := value.(type) {
		case int:
			rates[jurisdiction] = int64(v)
		case int64:
			rates[jurisdiction] = v
		case float64:
			rates[jurisdiction] = int64(v)
		}
	}
	return rates
}
