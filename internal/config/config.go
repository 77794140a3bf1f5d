package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database
	SQLiteDBPath string

	// Reporting
	ReportingCurrency string

	// Validation window and ceilings
	BackdateLimitDays   int
	FutureGraceDays     int
	OutlierCeilingCents int64

	// Compliance
	QuarantineRateThreshold float64

	// Alias and rate tables (JSON files; compiled-in defaults when empty)
	CategoryAliasFile string
	VendorAliasFile   string
	FXRatesFile       string

	// When true, current-dated records may fetch today's rate from the
	// exchange-rate API instead of quarantining on a table miss.
	FXLiveRates bool

	// AMQP (optional; alerts are skipped when URL is empty)
	AMQPURL      string
	AMQPExchange string

	// Ingestion
	FetchConcurrency int
	FetchTimeout     time.Duration
}

func Load() *Config {
	return &Config{
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finrep.db"),

		ReportingCurrency: getEnv("REPORTING_CURRENCY", "USD"),

		BackdateLimitDays:   getEnvInt("BACKDATE_LIMIT_DAYS", 365*5),
		FutureGraceDays:     getEnvInt("FUTURE_GRACE_DAYS", 30),
		OutlierCeilingCents: getEnvInt64("OUTLIER_CEILING_CENTS", 100_000_000),

		QuarantineRateThreshold: getEnvFloat("QUARANTINE_RATE_THRESHOLD", 0.10),

		CategoryAliasFile: getEnv("CATEGORY_ALIAS_FILE", ""),
		VendorAliasFile:   getEnv("VENDOR_ALIAS_FILE", ""),
		FXRatesFile:       getEnv("FX_RATES_FILE", ""),

		FXLiveRates: getEnvBool("FX_LIVE_RATES", false),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finrep"),

		FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 4),
		FetchTimeout:     getEnvDuration("FETCH_TIMEOUT", 2*time.Minute),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" && !strings.HasPrefix(c.SQLiteDBPath, ":memory:") {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	cur := strings.ToUpper(strings.TrimSpace(c.ReportingCurrency))
	if len(cur) != 3 {
		errors = append(errors, fmt.Sprintf("invalid reporting currency '%s': must be a 3-letter ISO code", c.ReportingCurrency))
	}

	if c.BackdateLimitDays < 0 {
		errors = append(errors, fmt.Sprintf("invalid backdate limit %d: must not be negative", c.BackdateLimitDays))
	}
	if c.FutureGraceDays < 0 {
		errors = append(errors, fmt.Sprintf("invalid future grace %d: must not be negative", c.FutureGraceDays))
	}
	if c.OutlierCeilingCents <= 0 {
		errors = append(errors, fmt.Sprintf("invalid outlier ceiling %d: must be positive", c.OutlierCeilingCents))
	}

	if c.QuarantineRateThreshold <= 0 || c.QuarantineRateThreshold > 1 {
		errors = append(errors, fmt.Sprintf("invalid quarantine rate threshold %.2f: must be in (0, 1]", c.QuarantineRateThreshold))
	}

	for _, f := range []struct{ name, path string }{
		{"category alias file", c.CategoryAliasFile},
		{"vendor alias file", c.VendorAliasFile},
		{"FX rates file", c.FXRatesFile},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("%s does not exist: %s", f.name, f.path))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.FetchConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid fetch concurrency %d: must be at least 1", c.FetchConcurrency))
	}
	if c.FetchTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be at least 1 second", c.FetchTimeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
