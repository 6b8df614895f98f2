// Package config loads application configuration from the environment
// (with .env support), enumerating every tunable the control surface exposes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/oggyb/bulksms/internal/domain/campaign"
)

type Config struct {
	App struct {
		Name string
		Env  string
	}

	API struct {
		Host string
		Port string
	}

	DB struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
		SSLMode  string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	SMS struct {
		ProviderURL string
		ProviderKey string
	}

	Scheduler struct {
		// PollInterval bounds how often the scheduler wakes to re-check
		// its heap even absent a timer fire (defensive against clock
		// changes); the real wake is the dynamic per-fire timer.
		PollInterval time.Duration
	}

	Executor struct {
		MaxParallelSessions int
		CheckpointEvery     int           // recipients
		CheckpointInterval  time.Duration // wall clock
		LeaseTTL            time.Duration
		RetryDrainGrace     time.Duration // §4.7 step 4, default 5min
	}

	Transport struct {
		AckTimeout      time.Duration
		DeliveryTimeout time.Duration // §4.6 DELIVERED_ASSUMED
	}

	Retry struct {
		MaxAttempts int
		BaseDelay   time.Duration
		CapDelay    time.Duration
		Jitter      float64 // ±fraction, default 0.2
	}

	RateLimit PerCategoryLimits

	QuietHours QuietHoursConfig

	Compliance struct {
		// RequireConsentForMarketing toggles §4.3 rule 3. Left as config
		// because the regulator requirement varies by jurisdiction (§9
		// Open Question).
		RequireConsentForMarketing bool
		BlockedPrefixes            []string
	}

	Stats struct {
		PublishInterval time.Duration // §4.6, default 2s, bounded [0.5,4]Hz
	}
}

// CategoryLimits is the §4.2 sliding-window + cooldown configuration for
// one campaign category.
type CategoryLimits struct {
	CooldownPerNumber time.Duration
	PerSecond         int
	PerMinute         int
	PerHour           int
	PerDay            int
}

// PerCategoryLimits maps a Category to its CategoryLimits, §4.2 defaults.
type PerCategoryLimits map[campaign.Category]CategoryLimits

// QuietHoursConfig is a per-category wall-clock window in local time during
// which sends are deferred. Shape only; exact windows are jurisdiction
// config per §9.
type QuietHoursConfig struct {
	Enabled     bool
	StartLocal  string // "HH:MM"
	EndLocal    string // "HH:MM"
	Categories  []campaign.Category
	Location    string // IANA tz name, e.g. "Africa/Nairobi"
}

func New() *Config {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.Name = getEnv("APP_NAME", "bulksms")
	cfg.App.Env = getEnv("APP_ENV", "development")

	cfg.API.Host = getEnv("API_HOST", "0.0.0.0")
	cfg.API.Port = getEnv("API_PORT", "8080")

	cfg.DB.Host = getEnv("DB_HOST", "db")
	cfg.DB.Port = getInt("DB_PORT", 5432)
	cfg.DB.User = getEnv("DB_USER", "root")
	cfg.DB.Password = getEnv("DB_PASSWORD", "123456")
	cfg.DB.Name = getEnv("DB_NAME", "db_bulksms")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "redis:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getInt("REDIS_DB", 0)

	cfg.SMS.ProviderURL = getEnv("SMS_PROVIDER_URL", "")
	cfg.SMS.ProviderKey = getEnv("SMS_PROVIDER_KEY", "")

	cfg.Scheduler.PollInterval = getDuration("SCHEDULER_POLL_INTERVAL", 30*time.Second)

	cfg.Executor.MaxParallelSessions = getInt("EXECUTOR_MAX_PARALLEL_SESSIONS", 1)
	cfg.Executor.CheckpointEvery = getInt("EXECUTOR_CHECKPOINT_EVERY", 50)
	cfg.Executor.CheckpointInterval = getDuration("EXECUTOR_CHECKPOINT_INTERVAL", 250*time.Millisecond)
	cfg.Executor.LeaseTTL = getDuration("EXECUTOR_LEASE_TTL", 60*time.Second)
	cfg.Executor.RetryDrainGrace = getDuration("EXECUTOR_RETRY_DRAIN_GRACE", 5*time.Minute)

	cfg.Transport.AckTimeout = getDuration("TRANSPORT_ACK_TIMEOUT", 30*time.Second)
	cfg.Transport.DeliveryTimeout = getDuration("TRANSPORT_DELIVERY_TIMEOUT", 15*time.Minute)

	cfg.Retry.MaxAttempts = getInt("RETRY_MAX_ATTEMPTS", 5)
	cfg.Retry.BaseDelay = getDuration("RETRY_BASE_MS", 5*time.Second)
	cfg.Retry.CapDelay = getDuration("RETRY_CAP_MS", 5*time.Minute)
	cfg.Retry.Jitter = getFloat("RETRY_JITTER", 0.2)

	cfg.RateLimit = defaultRateLimits()

	cfg.QuietHours = QuietHoursConfig{
		Enabled:    getBool("QUIET_HOURS_ENABLED", false),
		StartLocal: getEnv("QUIET_HOURS_START", "21:00"),
		EndLocal:   getEnv("QUIET_HOURS_END", "08:00"),
		Categories: []campaign.Category{campaign.CategoryMarketing},
		Location:   getEnv("QUIET_HOURS_TZ", "Local"),
	}

	cfg.Compliance.RequireConsentForMarketing = getBool("COMPLIANCE_REQUIRE_CONSENT", false)
	cfg.Compliance.BlockedPrefixes = getList("COMPLIANCE_BLOCKED_PREFIXES", nil)

	cfg.Stats.PublishInterval = getDuration("STATS_PUBLISH_INTERVAL", 2*time.Second)

	return cfg
}

// defaultRateLimits is the §4.2 default table: only MARKETING has spelled-out
// numbers; TRANSACTIONAL/SERVICE get a permissive but still layered default
// so the same code path exercises all four windows.
func defaultRateLimits() PerCategoryLimits {
	return PerCategoryLimits{
		campaign.CategoryMarketing: {
			CooldownPerNumber: 60 * time.Second,
			PerSecond:         1,
			PerMinute:         30,
			PerHour:           500,
			PerDay:            2000,
		},
		campaign.CategoryTransactional: {
			CooldownPerNumber: 10 * time.Second,
			PerSecond:         5,
			PerMinute:         200,
			PerHour:           5000,
			PerDay:            20000,
		},
		campaign.CategoryService: {
			CooldownPerNumber: 10 * time.Second,
			PerSecond:         5,
			PerMinute:         200,
			PerHour:           5000,
			PerDay:            20000,
		},
	}
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getDuration(key string, def time.Duration) time.Duration {
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

func getList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}
