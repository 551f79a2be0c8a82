package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"creditledger/internal/domain"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	DatabaseURL       string
	DBMaxConns        int
	RunMigrations     bool
	SupabaseJWTSecret string
	PublicBaseURL     string
	CORSOrigins       []string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIBaseURL    string
	StripePrices        map[domain.PlanID]map[domain.BillingPeriod]string
	TrialPeriodDays     int

	RedisURL        string
	RateLimitPerMin int

	HTTPReadTimeout       time.Duration
	HTTPWriteTimeout      time.Duration
	HTTPIdleTimeout       time.Duration
	WebhookProcessTimeout time.Duration

	WorkerPollInterval time.Duration
	WorkerMaxAttempts  int
	WorkerStaleAfter   time.Duration
	WorkerMetricsAddr  string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		RunMigrations:     getEnvBool("RUN_MIGRATIONS", true),
		SupabaseJWTSecret: os.Getenv("SUPABASE_JWT_SECRET"),
		PublicBaseURL:     strings.TrimRight(getEnv("PUBLIC_BASE_URL", getEnv("NEXT_PUBLIC_VISAGIFY_URL", "https://visagify.com")), "/"),
		CORSOrigins:       splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeAPIBaseURL:    os.Getenv("STRIPE_API_BASE_URL"),
		StripePrices:        loadStripePrices(),
		TrialPeriodDays:     getEnvInt("TRIAL_PERIOD_DAYS", 7),

		RedisURL:        os.Getenv("REDIS_URL"),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		HTTPReadTimeout:       time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:      time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:       time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		WebhookProcessTimeout: time.Second * time.Duration(getEnvInt("WEBHOOK_PROCESS_TIMEOUT_SECONDS", 10)),

		WorkerPollInterval: time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 15)),
		WorkerMaxAttempts:  getEnvInt("WORKER_MAX_ATTEMPTS", 8),
		WorkerStaleAfter:   time.Second * time.Duration(getEnvInt("WORKER_STALE_AFTER_SECONDS", 120)),
		WorkerMetricsAddr:  getEnv("WORKER_METRICS_ADDR", ":9091"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// RequireStripe validates the keys needed to talk to Stripe.
func (c *Config) RequireStripe() error {
	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	return nil
}

// StripePrice returns the configured price id for a plan and period.
func (c *Config) StripePrice(plan domain.PlanID, period domain.BillingPeriod) (string, bool) {
	byPeriod, ok := c.StripePrices[plan]
	if !ok {
		return "", false
	}
	id, ok := byPeriod[period]
	return id, ok && id != ""
}

func loadStripePrices() map[domain.PlanID]map[domain.BillingPeriod]string {
	out := make(map[domain.PlanID]map[domain.BillingPeriod]string)
	for _, plan := range []domain.PlanID{domain.PlanBasic, domain.PlanPro, domain.PlanUltra} {
		byPeriod := make(map[domain.BillingPeriod]string)
		for _, period := range []domain.BillingPeriod{domain.PeriodMonthly, domain.PeriodYearly} {
			key := fmt.Sprintf("STRIPE_PRICE_%s_%s", strings.ToUpper(string(plan)), strings.ToUpper(string(period)))
			if v := strings.TrimSpace(os.Getenv(key)); v != "" {
				byPeriod[period] = v
			}
		}
		out[plan] = byPeriod
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
