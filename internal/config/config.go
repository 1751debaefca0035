package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Removal modes for the notification marker.
const (
	RemovalAfterAll  = "after_all"
	RemovalPerThread = "per_thread"
)

// SMTP connection security modes.
const (
	TLSModeImplicit = "implicit"
	TLSModeStartTLS = "starttls"
	TLSModeNone     = "none"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Gmail        GmailConfig        `mapstructure:"gmail"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	Notification NotificationConfig `mapstructure:"notification"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Path     string `mapstructure:"path"`
}

// GmailConfig holds Gmail API and Gmail IMAP configuration
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
	UseIMAP      bool   `mapstructure:"use_imap"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	IMAPUser     string `mapstructure:"imap_user"`
	IMAPPassword string `mapstructure:"imap_password"`
}

// SMTPConfig holds outbound SMTP configuration. When disabled, notifications
// are sent through the Gmail API.
type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	TLSMode  string `mapstructure:"tls_mode"`
}

// NotificationConfig describes what a sweep looks for and what it sends
type NotificationConfig struct {
	Marker          string `mapstructure:"marker"`
	Destination     string `mapstructure:"destination"`
	Subject         string `mapstructure:"subject"`
	Body            string `mapstructure:"body"`
	Signature       string `mapstructure:"signature"`
	RemovalMode     string `mapstructure:"removal_mode"`
	MaxSendAttempts int    `mapstructure:"max_send_attempts"`
	ArchivePath     string `mapstructure:"archive_path"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	IntervalMinutes int  `mapstructure:"interval_minutes"`
	AutoStart       bool `mapstructure:"auto_start"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	v.AutomaticEnv()
	bindEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "label-notifier.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)

	v.SetDefault("gmail.use_imap", false)
	v.SetDefault("gmail.imap_host", "imap.gmail.com")
	v.SetDefault("gmail.imap_port", 993)

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.tls_mode", TLSModeImplicit)

	v.SetDefault("notification.marker", "sendEmailNotification")
	v.SetDefault("notification.subject", "New mail in your inbox")
	v.SetDefault("notification.body", "New mail: ")
	v.SetDefault("notification.removal_mode", RemovalAfterAll)
	v.SetDefault("notification.max_send_attempts", 3)

	v.SetDefault("scheduler.interval_minutes", 5)
	v.SetDefault("scheduler.auto_start", true)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.jwt_secret", "SERVER_JWT_SECRET")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.path", "DB_PATH")

	// Gmail
	v.BindEnv("gmail.client_id", "GMAIL_CLIENT_ID")
	v.BindEnv("gmail.client_secret", "GMAIL_CLIENT_SECRET")
	v.BindEnv("gmail.refresh_token", "GMAIL_REFRESH_TOKEN")
	v.BindEnv("gmail.user_email", "GMAIL_USER_EMAIL")
	v.BindEnv("gmail.use_imap", "GMAIL_USE_IMAP")
	v.BindEnv("gmail.imap_host", "GMAIL_IMAP_HOST")
	v.BindEnv("gmail.imap_port", "GMAIL_IMAP_PORT")
	v.BindEnv("gmail.imap_user", "GMAIL_IMAP_USER")
	v.BindEnv("gmail.imap_password", "GMAIL_IMAP_PASSWORD")

	// SMTP
	v.BindEnv("smtp.enabled", "SMTP_ENABLED")
	v.BindEnv("smtp.host", "SMTP_HOST")
	v.BindEnv("smtp.port", "SMTP_PORT")
	v.BindEnv("smtp.username", "SMTP_USERNAME")
	v.BindEnv("smtp.password", "SMTP_PASSWORD")
	v.BindEnv("smtp.from", "SMTP_FROM")
	v.BindEnv("smtp.tls_mode", "SMTP_TLS_MODE")

	// Notification
	v.BindEnv("notification.marker", "NOTIFY_MARKER")
	v.BindEnv("notification.destination", "NOTIFY_DESTINATION")
	v.BindEnv("notification.subject", "NOTIFY_SUBJECT")
	v.BindEnv("notification.body", "NOTIFY_BODY")
	v.BindEnv("notification.signature", "NOTIFY_SIGNATURE")
	v.BindEnv("notification.removal_mode", "NOTIFY_REMOVAL_MODE")
	v.BindEnv("notification.max_send_attempts", "NOTIFY_MAX_SEND_ATTEMPTS")
	v.BindEnv("notification.archive_path", "NOTIFY_ARCHIVE_PATH")

	// Scheduler
	v.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")
	v.BindEnv("scheduler.auto_start", "SCHEDULER_AUTO_START")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// DefaultSchedule returns the cron spec derived from IntervalMinutes, or an
// empty string when no default trigger should be seeded.
func (c *SchedulerConfig) DefaultSchedule() string {
	if c.IntervalMinutes <= 0 {
		return ""
	}
	return fmt.Sprintf("0 */%d * * * *", c.IntervalMinutes)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	case "mysql":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	usesGmailAPI := !c.Gmail.UseIMAP || !c.SMTP.Enabled
	if usesGmailAPI {
		if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" || c.Gmail.RefreshToken == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required when not using IMAP and SMTP")
		}
	}
	if c.Gmail.UseIMAP {
		if c.Gmail.IMAPUser == "" || c.Gmail.IMAPPassword == "" {
			return fmt.Errorf("IMAP credentials are required when using IMAP")
		}
	}

	if c.SMTP.Enabled {
		if c.SMTP.Host == "" || c.SMTP.Port <= 0 {
			return fmt.Errorf("SMTP host and port are required when SMTP is enabled")
		}
		if c.SMTP.From == "" {
			return fmt.Errorf("SMTP from address is required when SMTP is enabled")
		}
		switch c.SMTP.TLSMode {
		case TLSModeImplicit, TLSModeStartTLS, TLSModeNone:
		default:
			return fmt.Errorf("unsupported SMTP tls_mode %q", c.SMTP.TLSMode)
		}
	}

	if c.Notification.Marker == "" {
		return fmt.Errorf("notification marker is required")
	}
	switch c.Notification.RemovalMode {
	case RemovalAfterAll, RemovalPerThread:
	default:
		return fmt.Errorf("unsupported notification removal_mode %q", c.Notification.RemovalMode)
	}
	if c.Notification.MaxSendAttempts <= 0 {
		return fmt.Errorf("notification max_send_attempts must be greater than 0")
	}

	if c.Scheduler.IntervalMinutes < 0 {
		return fmt.Errorf("scheduler interval must not be negative")
	}

	return nil
}
