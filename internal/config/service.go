package config

type ServiceConfig struct {
	Name        string       `yaml:"name"`
	Environment string       `yaml:"environment"`
	Version     string       `yaml:"version"`
	ClientURL   string       `yaml:"client_url"`
	Stripe      StripeConfig `yaml:"stripe"`
	Tax         TaxConfig    `yaml:"tax"`
}

type StripeConfig struct {
	SecretKey string `yaml:"secret_key"`
	// WebhookSecret verifies events from the primary endpoint.
	WebhookSecret string `yaml:"webhook_secret"`
	// ConnectedWebhookSecret verifies events delivered for connected
	// accounts; verification falls back to it when the primary secret fails.
	ConnectedWebhookSecret string `yaml:"connected_webhook_secret"`
}

// TaxConfig maps jurisdiction codes to flat tax rates in basis points.
type TaxConfig struct {
	RatesBasisPoints map[string]int64 `yaml:"rates_basis_points"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Output      string `yaml:"output"`
	FilePath    string `yaml:"file_path"`
	Development bool   `yaml:"development"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SchedulerConfig carries the cron expressions for the sweep entrypoints.
type SchedulerConfig struct {
	BillingRunSpec   string `yaml:"billing_run_spec"`
	CancellationSpec string `yaml:"cancellation_spec"`
	SessionPurgeSpec string `yaml:"session_purge_spec"`
}
