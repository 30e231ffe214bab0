package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Auth         AuthConfig
	Geo          GeoConfig
	Detection    DetectionConfig
	Notification NotificationConfig
	Cleanup      CleanupConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

// GeoConfig configures IP geolocation resolution
type GeoConfig struct {
	Provider      string
	ProvidersFile string
	CacheTTL      time.Duration
	HTTPTimeout   time.Duration
	MaxMindDBPath string
	RedisURL      string
}

// DetectionConfig holds process-level defaults. Runtime values in system_settings win.
type DetectionConfig struct {
	RiskThreshold         int
	TrustedDeviceMaxScore int
	MaxConcurrentSessions int
	NormalLoginHours      []int
	AutoBlockThreshold    int
}

// NotificationConfig configures the administrator alert queue and mail relay
type NotificationConfig struct {
	AWSRegion   string
	FromAddress string
	ConsoleURL  string
	Spacing     time.Duration
	QueueSize   int
	SendTimeout time.Duration
}

type CleanupConfig struct {
	Interval             time.Duration
	LoginRecordRetention time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	normalHours, err := parseHourSet(getEnv("NORMAL_LOGIN_HOURS", "8-22"))
	if err != nil {
		return nil, fmt.Errorf("NORMAL_LOGIN_HOURS: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "mailguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
		},
		Geo: GeoConfig{
			Provider:      getEnv("GEO_PROVIDER", "ip-api"),
			ProvidersFile: getEnv("GEO_PROVIDERS_FILE", ""),
			CacheTTL:      getEnvAsDuration("GEO_CACHE_TTL", 24*time.Hour),
			HTTPTimeout:   getEnvAsDuration("GEO_HTTP_TIMEOUT", 5*time.Second),
			MaxMindDBPath: getEnv("GEO_MAXMIND_DB", ""),
			RedisURL:      getEnv("REDIS_URL", ""),
		},
		Detection: DetectionConfig{
			RiskThreshold:         getEnvAsInt("RISK_THRESHOLD", 50),
			TrustedDeviceMaxScore: getEnvAsInt("TRUSTED_DEVICE_MAX_SCORE", 30),
			MaxConcurrentSessions: getEnvAsInt("MAX_CONCURRENT_SESSIONS", 5),
			NormalLoginHours:      normalHours,
			AutoBlockThreshold:    getEnvAsInt("AUTO_BLOCK_THRESHOLD", 80),
		},
		Notification: NotificationConfig{
			AWSRegion:   getEnv("EMAIL_AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
			ConsoleURL:  getEnv("ADMIN_CONSOLE_URL", "http://localhost:3000"),
			Spacing:     getEnvAsDuration("NOTIFY_SPACING", 1*time.Second),
			QueueSize:   getEnvAsInt("NOTIFY_QUEUE_SIZE", 100),
			SendTimeout: getEnvAsDuration("NOTIFY_SEND_TIMEOUT", 10*time.Second),
		},
		Cleanup: CleanupConfig{
			Interval:             getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			LoginRecordRetention: getEnvAsDuration("LOGIN_RECORD_RETENTION", 90*24*time.Hour),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Notification.Spacing < time.Second {
		return nil, fmt.Errorf("NOTIFY_SPACING must be at least 1s (got %s)", cfg.Notification.Spacing)
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseHourSet parses an hour set such as "8-22" or "0-5,22,23" into sorted unique hours.
// Ranges are inclusive.
func ParseHourSet(s string) ([]int, error) {
	return parseHourSet(s)
}

func parseHourSet(s string) ([]int, error) {
	var seen [24]bool
	for _, part := range parseList(s) {
		lo, hi := part, part
		if i := strings.Index(part, "-"); i > 0 {
			lo, hi = part[:i], part[i+1:]
		}
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid hour %q", part)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid hour %q", part)
		}
		if start < 0 || end > 23 || start > end {
			return nil, fmt.Errorf("hour range %q out of bounds", part)
		}
		for h := start; h <= end; h++ {
			seen[h] = true
		}
	}

	hours := make([]int, 0, 24)
	for h, ok := range seen {
		if ok {
			hours = append(hours, h)
		}
	}
	return hours, nil
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow the admin console dev servers
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
