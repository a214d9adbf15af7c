package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidyhome/scheduler/libs/config"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/scheduling"
)

type Config struct {
	ServiceName string
	Port        string
	GRPCPort    string
	DatabaseURL string
	DBMaxConns  int

	JWTSecret   string
	JWKSURL     string
	JWKSCache   time.Duration
	JWTIssuer   string
	JWTAudience string

	KafkaBrokers    string
	OutboxPollEvery time.Duration
	OutboxBatchSize int

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RateLimitPerMin   int
	RateLimitFailOpen bool

	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	RequestTimeout     time.Duration

	Limits scheduling.Limits
}

// Load reads the service configuration from the environment. Unset keys take
// defaults; malformed values are errors.
func Load() (Config, error) {
	var (
		cfg  Config
		errs []error
		err  error
	)
	collect := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	cfg.ServiceName = config.String("SERVICE_NAME", "scheduling-service")
	cfg.Port, err = config.Port("PORT", "8085")
	collect(err)
	cfg.GRPCPort, err = config.Port("GRPC_PORT", "9095")
	collect(err)
	cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL")
	collect(err)
	cfg.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10)
	collect(err)

	cfg.JWTSecret = config.String("JWT_SECRET", "")
	cfg.JWKSURL = config.String("JWKS_URL", "")
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		collect(errors.New("one of JWT_SECRET or JWKS_URL is required"))
	}
	cacheSeconds, err := config.Int("JWKS_CACHE_SECONDS", 300)
	collect(err)
	cfg.JWKSCache = time.Duration(cacheSeconds) * time.Second
	cfg.JWTIssuer = config.String("JWT_ISSUER", "")
	cfg.JWTAudience = config.String("JWT_AUDIENCE", "")

	cfg.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	pollMS, err := config.Int("OUTBOX_POLL_MS", 2000)
	collect(err)
	cfg.OutboxPollEvery = time.Duration(pollMS) * time.Millisecond
	cfg.OutboxBatchSize, err = config.Int("OUTBOX_BATCH_SIZE", 50)
	collect(err)

	cfg.RedisAddr = config.String("REDIS_ADDR", "")
	cfg.RedisPassword = config.String("REDIS_PASSWORD", "")
	cfg.RedisDB, err = config.Int("REDIS_DB", 0)
	collect(err)
	cfg.RateLimitPerMin, err = config.Int("RATE_LIMIT_PER_MINUTE", 120)
	collect(err)
	cfg.RateLimitFailOpen = config.Bool("RATE_LIMIT_FAIL_OPEN", true)

	cfg.CORSAllowedOrigins = config.List("CORS_ALLOWED_ORIGINS", "")
	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	collect(err)
	cfg.BodyLimitBytes = int64(bodyLimit)
	timeoutSeconds, err := config.Int("REQUEST_TIMEOUT_SECONDS", 15)
	collect(err)
	cfg.RequestTimeout = time.Duration(timeoutSeconds) * time.Second

	limits := scheduling.DefaultLimits()
	limits.SlotMinMinutes, err = config.Int("SLOT_MIN_MINUTES", limits.SlotMinMinutes)
	collect(err)
	limits.SlotMaxMinutes, err = config.Int("SLOT_MAX_MINUTES", limits.SlotMaxMinutes)
	collect(err)
	limits.SlotGranularityMinutes, err = config.Int("SLOT_GRANULARITY_MINUTES", limits.SlotGranularityMinutes)
	collect(err)
	rangeDays, err := config.Int("MAX_RANGE_DAYS", int(limits.MaxRange/(24*time.Hour)))
	collect(err)
	limits.MaxRange = time.Duration(rangeDays) * 24 * time.Hour
	cfg.Limits = limits

	if len(errs) == 0 {
		collect(cfg.validate())
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.DBMaxConns < 1:
		return fmt.Errorf("DB_MAX_CONNS must be positive (got %d)", c.DBMaxConns)
	case c.OutboxPollEvery <= 0:
		return errors.New("OUTBOX_POLL_MS must be positive")
	case c.OutboxBatchSize < 1:
		return errors.New("OUTBOX_BATCH_SIZE must be positive")
	case c.RateLimitPerMin < 0:
		return errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	case c.BodyLimitBytes <= 0:
		return errors.New("REQUEST_BODY_LIMIT_BYTES must be positive")
	case c.RequestTimeout <= 0:
		return errors.New("REQUEST_TIMEOUT_SECONDS must be positive")
	}
	l := c.Limits
	if l.SlotGranularityMinutes < 1 || l.SlotMinMinutes < l.SlotGranularityMinutes || l.SlotMaxMinutes < l.SlotMinMinutes {
		return fmt.Errorf("slot limits out of order: min=%d max=%d granularity=%d",
			l.SlotMinMinutes, l.SlotMaxMinutes, l.SlotGranularityMinutes)
	}
	if l.MaxRange < 24*time.Hour {
		return errors.New("MAX_RANGE_DAYS must be at least 1")
	}
	return nil
}
