package crawler

import (
	"errors"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

const (
	defaultThreads        = 10
	defaultTimeoutMinutes = 120
)

// LogConfig configures the global slog logger, the same shape and
// defaulting the teacher's own mirror.LogConfig uses.
type LogConfig struct {
	Level  string `toml:"level" env:"MIRRORCRAWLER_LOG_LEVEL"`
	Format string `toml:"format" env:"MIRRORCRAWLER_LOG_FORMAT"`
}

// Apply configures slog's default logger based on the configuration.
func (lc *LogConfig) Apply() error {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return errors.New("invalid log level: " + lc.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(lc.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "plain", "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return errors.New("invalid log format: " + lc.Format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// EmailConfig names the mail relay used by the notifier, read out of
// the [email] TOML table.
type EmailConfig struct {
	Enabled      bool   `toml:"enabled" env:"MIRRORCRAWLER_EMAIL_ENABLED"`
	SMTPHost     string `toml:"smtp_host" env:"MIRRORCRAWLER_SMTP_HOST"`
	SMTPPort     int    `toml:"smtp_port" env:"MIRRORCRAWLER_SMTP_PORT"`
	SMTPUsername string `toml:"smtp_username" env:"MIRRORCRAWLER_SMTP_USERNAME"`
	SMTPPassword string `toml:"smtp_password" env:"MIRRORCRAWLER_SMTP_PASSWORD"`
	MailFrom     string `toml:"mail_from" env:"MIRRORCRAWLER_MAIL_FROM"`
	AdminMailTo  string `toml:"admin_mail_to" env:"MIRRORCRAWLER_ADMIN_MAIL_TO"`
	LogDir       string `toml:"logdir" env:"MIRRORCRAWLER_LOGDIR"`
}

// Config is the crawler launcher's TOML configuration, decoded with
// github.com/BurntSushi/toml the same way the teacher's mirror.Config
// is, then overridden field-by-field from the environment.
type Config struct {
	DBURL          string      `toml:"db_url" env:"MIRRORCRAWLER_DB_URL"`
	Threads        int         `toml:"threads" env:"MIRRORCRAWLER_THREADS"`
	TimeoutMinutes int         `toml:"timeout_minutes" env:"MIRRORCRAWLER_TIMEOUT_MINUTES"`
	IncludePrivate bool        `toml:"include_private" env:"MIRRORCRAWLER_INCLUDE_PRIVATE"`
	Categories     []string    `toml:"categories"`
	Log            LogConfig   `toml:"log"`
	Email          EmailConfig `toml:"email"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Threads:        defaultThreads,
		TimeoutMinutes: defaultTimeoutMinutes,
	}
}

// Check validates the configuration, the way mirror.Config.Check does
// for the teacher's own config.
func (c *Config) Check() error {
	if c.DBURL == "" {
		return errors.New("db_url is not set")
	}
	if c.Threads <= 0 {
		return errors.New("threads must be a positive integer")
	}
	if c.TimeoutMinutes <= 0 {
		return errors.New("timeout_minutes must be a positive integer")
	}
	if c.Email.Enabled {
		if c.Email.SMTPHost == "" {
			return errors.New("email.smtp_host is required when email.enabled is true")
		}
		if c.Email.MailFrom == "" || c.Email.AdminMailTo == "" {
			return errors.New("email.mail_from and email.admin_mail_to are required when email.enabled is true")
		}
	}
	return nil
}

// Timeout returns the per-host wall-clock budget as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// ApplyEnvironmentVariables overrides TOML-loaded fields from the
// environment. Must be called after decoding the TOML file.
func (c *Config) ApplyEnvironmentVariables() error {
	return applyEnvToStruct(c)
}

// applyEnvToStruct recursively applies "env"-tagged environment
// variables to v's fields, the same reflection-based walk the
// teacher's mirror.applyEnvToStruct performs.
func applyEnvToStruct(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return errors.New("applyEnvToStruct requires a pointer to struct")
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		if envTag := fieldType.Tag.Get("env"); envTag != "" {
			if err := setFieldFromEnv(field, envTag); err != nil {
				return errors.New("failed to set field " + fieldType.Name + " from environment: " + err.Error())
			}
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(field.Addr().Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

func setFieldFromEnv(field reflect.Value, envVar string) error {
	envValue := os.Getenv(envVar)
	if envValue == "" {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int:
		intVal, err := strconv.Atoi(envValue)
		if err != nil {
			return errors.New("invalid integer value for " + envVar + ": " + envValue)
		}
		field.SetInt(int64(intVal))
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(envValue)
		if err != nil {
			return errors.New("invalid boolean value for " + envVar + ": " + envValue)
		}
		field.SetBool(boolVal)
	default:
		return errors.New("unsupported field type: " + field.Kind().String())
	}
	return nil
}
