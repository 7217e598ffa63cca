package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port    string
	GinMode string

	DBDriver    string
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	JWTSecret   string
	CORSOrigins []string

	Broadcast BroadcastConfig

	LoanPeriodDays      int
	LoanFinePerDay      decimal.Decimal
	SubmitRatePerMinute int
	SubmitRateBurst     int

	PendingGuardStrategy string
}

// BroadcastConfig selects and configures the real-time transport.
type BroadcastConfig struct {
	Driver       string
	RedisAddr    string
	RedisDB      int
	RedisChannel string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

// Load reads the configuration from the environment, applying development defaults.
func Load() *Config {
	c := &Config{
		Port:    getenv("PORT", "8080"),
		GinMode: getenv("GIN_MODE", "debug"),

		DBDriver:    strings.ToLower(getenv("DB_DRIVER", DriverPostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      getenv("DB_HOST", "localhost"),
		DBPort:      getenv("DB_PORT", "5432"),
		DBUser:      getenv("DB_USER", "postgres"),
		DBPassword:  getenv("DB_PASSWORD", "postgres"),
		DBName:      getenv("DB_NAME", "postgres"),
		DBSSLMode:   getenv("DB_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		Broadcast: BroadcastConfig{
			Driver:       strings.ToLower(getenv("BROADCAST_DRIVER", "websocket")),
			RedisAddr:    os.Getenv("REDIS_ADDR"),
			RedisDB:      getenvInt("REDIS_DB", 0),
			RedisChannel: getenv("REDIS_CHANNEL", "libraryhub:events"),
		},

		LoanPeriodDays:      getenvInt("LOAN_PERIOD_DAYS", 14),
		LoanFinePerDay:      decimal.NewFromInt(1000),
		SubmitRatePerMinute: getenvInt("SUBMIT_RATE_PER_MINUTE", 10),
		SubmitRateBurst:     getenvInt("SUBMIT_RATE_BURST", 3),

		PendingGuardStrategy: strings.ToLower(getenv("PENDING_GUARD_STRATEGY", "auto")),
	}

	origins := getenv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			c.CORSOrigins = append(c.CORSOrigins, o)
		}
	}

	if v := os.Getenv("LOAN_FINE_PER_DAY"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			c.LoanFinePerDay = d
		}
	}

	if c.JWTSecret == "" && c.GinMode != "release" {
		c.JWTSecret = "default_super_secret_key" // development fallback only
	}
	return c
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverMySQL:
		if c.DatabaseURL == "" {
			if c.DBHost == "" || c.DBPort == "" || c.DBName == "" || c.DBUser == "" {
				return errors.New("missing database config (DB_HOST/DB_PORT/DB_NAME/DB_USER or DATABASE_URL)")
			}
			if _, err := net.LookupPort("tcp", c.DBPort); err != nil {
				return fmt.Errorf("invalid DB_PORT %q: %w", c.DBPort, err)
			}
		}
	case DriverSQLite:
		if c.DatabaseURL == "" && c.DBName == "" {
			return errors.New("missing sqlite database file (DATABASE_URL or DB_NAME)")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in release mode")
	}
	if c.Port == "" {
		return errors.New("missing PORT")
	}
	if c.LoanPeriodDays <= 0 {
		return fmt.Errorf("LOAN_PERIOD_DAYS must be positive, got %d", c.LoanPeriodDays)
	}
	if c.LoanFinePerDay.IsNegative() {
		return errors.New("LOAN_FINE_PER_DAY must not be negative")
	}
	switch c.PendingGuardStrategy {
	case "auto", "partial", "marker":
	default:
		return fmt.Errorf("unsupported PENDING_GUARD_STRATEGY %q", c.PendingGuardStrategy)
	}
	return nil
}

// DSN builds the driver-specific connection string.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	switch c.DBDriver {
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&charset=utf8mb4",
			c.DBUser, c.DBPassword, net.JoinHostPort(c.DBHost, c.DBPort), c.DBName)
	case DriverSQLite:
		return c.DBName
	default:
		return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + net.JoinHostPort(c.DBHost, c.DBPort) + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
	}
}
