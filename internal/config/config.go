package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/samtjhia/SamsStudyTracker/internal/domain"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite|postgres
	DBPath      string `envconfig:"DB_PATH" default:"./data/tracker.db"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	ReportTZ     string        `envconfig:"REPORT_TZ" default:"Local"` // "today" and send times are read in this zone
	SendGap      time.Duration `envconfig:"SEND_GAP" default:"1s"`
	ChartBaseURL string        `envconfig:"CHART_BASE_URL" default:"https://quickchart.io/chart"`

	SMTPHost string `envconfig:"SMTP_HOST"`
	SMTPPort int    `envconfig:"SMTP_PORT" default:"465"`
	SMTPUser string `envconfig:"SMTP_USER"`
	SMTPPass string `envconfig:"SMTP_PASS"`
	SMTPFrom string `envconfig:"SMTP_FROM"`
	SMTPTLS  string `envconfig:"SMTP_TLS" default:"ssl"` // ssl|starttls|none

	HTTPAddr   string `envconfig:"HTTP_ADDR" default:":8080"`
	AdminToken string `envconfig:"ADMIN_TOKEN" required:"true"`

	BotToken    string `envconfig:"BOT_TOKEN"` // empty disables the admin bot
	AdminChatID int64  `envconfig:"ADMIN_CHAT_ID"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"` // json|console
}

// Load reads an optional .env file and then environment variables into Config.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c Config) Validate() error {
	// envconfig accepts a variable that is set but empty.
	if c.AdminToken == "" {
		return errors.New("ADMIN_TOKEN must not be empty")
	}

	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("DB_PATH is required for sqlite")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}

	if _, err := domain.ValidateTZ(c.ReportTZ); err != nil {
		return fmt.Errorf("REPORT_TZ: %w", err)
	}
	if c.SendGap < 0 {
		return errors.New("SEND_GAP must not be negative")
	}

	switch c.SMTPTLS {
	case "ssl", "starttls", "none":
	default:
		return fmt.Errorf("unknown SMTP_TLS %q", c.SMTPTLS)
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" && c.SMTPUser == "" {
		return errors.New("SMTP_FROM or SMTP_USER is required when SMTP_HOST is set")
	}

	if c.BotToken != "" && c.AdminChatID == 0 {
		return errors.New("ADMIN_CHAT_ID is required when BOT_TOKEN is set")
	}
	return nil
}

// Location returns the zone used for day windows and send-time matching.
func (c Config) Location() *time.Location {
	loc, err := domain.ValidateTZ(c.ReportTZ)
	if err != nil {
		return time.Local
	}
	return loc
}

// Sender returns the From address for outgoing reports.
func (c Config) Sender() string {
	if c.SMTPFrom != "" {
		return c.SMTPFrom
	}
	return c.SMTPUser
}
