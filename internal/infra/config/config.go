package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL         string
	LogLevel            string
	Environment         string
	Location            *time.Location // TIMEZONE, used for "today" and the cron trigger
	CronSpecDaily       string
	HTTPAddr            string
	DispatchConcurrency int

	DefaultRecipient    string
	OversightRecipients []string
	StaticDirectoryFile string

	MailFromAddress    string
	MailFromName       string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleTokenURL     string
	DashboardURL       string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	SendTimeout      time.Duration
	RunTimeout       time.Duration
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.DefaultRecipient = strings.TrimSpace(os.Getenv("DEFAULT_RECIPIENT"))
	if cfg.DefaultRecipient == "" {
		return nil, fmt.Errorf("DEFAULT_RECIPIENT is not set")
	}

	cfg.MailFromAddress = strings.TrimSpace(os.Getenv("MAIL_FROM_ADDRESS"))
	if cfg.MailFromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is not set")
	}

	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getenv("ENVIRONMENT", "development"))

	tz := getenv("TIMEZONE", "America/Sao_Paulo")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	cfg.CronSpecDaily = getenv("CRON_SPEC_DAILY", "0 8 * * *") // 08:00 every day
	cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")

	if cfg.DispatchConcurrency, err = intVar("DISPATCH_CONCURRENCY", 5); err != nil {
		return nil, err
	}
	if cfg.DispatchConcurrency < 1 {
		return nil, fmt.Errorf("DISPATCH_CONCURRENCY must be at least 1")
	}

	cfg.OversightRecipients = splitList(os.Getenv("OVERSIGHT_RECIPIENTS"))
	cfg.StaticDirectoryFile = os.Getenv("STATIC_DIRECTORY_FILE")

	cfg.MailFromName = getenv("MAIL_FROM_NAME", "Ouvidoria Municipal")
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleTokenURL = getenv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token")
	cfg.DashboardURL = os.Getenv("DASHBOARD_URL")

	if cfg.RetryMaxAttempts, err = intVar("RETRY_MAX_ATTEMPTS", 4); err != nil {
		return nil, err
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.RetryBaseDelay, err = durationVar("RETRY_BASE_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.RetryMaxDelay, err = durationVar("RETRY_MAX_DELAY", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = durationVar("SEND_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = durationVar("RUN_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireDelivery checks the settings only needed by commands that send mail.
func (c *AppConfig) RequireDelivery() error {
	if c.GoogleClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is not set")
	}
	if c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is not set")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intVar(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationVar(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
