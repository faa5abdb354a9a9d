// Package config loads server and crew settings from an optional YAML file
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort        = "8080"
	DefaultConfigFile  = "config.yaml"
	DefaultCrewTimeout = 2 * time.Minute
)

type ServerConfig struct {
	Port            string  `yaml:"port"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	ShutdownTimeout string  `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	DSN         string `yaml:"dsn"`
	BusyTimeout string `yaml:"busy_timeout"`
}

type PracticeConfig struct {
	Name           string `yaml:"name"`
	RescheduleLink string `yaml:"reschedule_link"`
}

type ComplianceConfig struct {
	BusinessStart  string   `yaml:"business_start"`
	BusinessEnd    string   `yaml:"business_end"`
	RevokedConsent []string `yaml:"revoked_consent"`
}

type CrewConfig struct {
	ConfigDir string `yaml:"config_dir"`
	ReportDir string `yaml:"report_dir"`
	Timeout   string `yaml:"timeout"`
	Watch     bool   `yaml:"watch"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != ""
}

type DispatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Storage    StorageConfig    `yaml:"storage"`
	Timezone   string           `yaml:"timezone"`
	Practice   PracticeConfig   `yaml:"practice"`
	Compliance ComplianceConfig `yaml:"compliance"`
	Crew       CrewConfig       `yaml:"crew"`
	LLM        LLMConfig        `yaml:"llm"`
	Twilio     TwilioConfig     `yaml:"twilio"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	PDFFont    string           `yaml:"pdf_font"`
	SecretKey  string           `yaml:"secret_key"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			RateLimitRPS:    5,
			RateLimitBurst:  10,
			ShutdownTimeout: "10s",
		},
		Log:     LogConfig{Level: "info", Format: "console"},
		Storage: StorageConfig{Driver: "memory", Path: "data/recall.db"},
		Practice: PracticeConfig{
			Name: "our office",
		},
		Compliance: ComplianceConfig{BusinessStart: "08:00", BusinessEnd: "20:00"},
		Crew:       CrewConfig{ReportDir: "reports", Timeout: "2m"},
		Dispatch:   DispatchConfig{Enabled: true, Schedule: "@every 5m"},
		Timezone:   "UTC",
	}
}

// Load reads path when it exists, then applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Server.Port)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("STORAGE_PATH", &c.Storage.Path)
	str("DATABASE_URL", &c.Storage.DSN)
	str("TIMEZONE", &c.Timezone)
	str("PRACTICE_NAME", &c.Practice.Name)
	str("RESCHEDULE_LINK", &c.Practice.RescheduleLink)
	str("CREW_CONFIG_DIR", &c.Crew.ConfigDir)
	str("REPORT_DIR", &c.Crew.ReportDir)
	str("CREW_TIMEOUT", &c.Crew.Timeout)
	str("LLM_PROVIDER", &c.LLM.Provider)
	str("MODEL", &c.LLM.Model)
	str("GEMINI_API_KEY", &c.LLM.APIKey)
	str("TWILIO_ACCOUNT_SID", &c.Twilio.AccountSID)
	str("TWILIO_AUTH_TOKEN", &c.Twilio.AuthToken)
	str("TWILIO_FROM_NUMBER", &c.Twilio.FromNumber)
	str("DISPATCH_SCHEDULE", &c.Dispatch.Schedule)
	str("PDF_FONT_PATH", &c.PDFFont)
	str("SECRET_KEY", &c.SecretKey)

	if v, ok := lookup("DISPATCH_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Dispatch.Enabled = b
		}
	}
	if v, ok := lookup("CREW_WATCH"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Crew.Watch = b
		}
	}
}

// Validate checks every field that is parsed later.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.CrewTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ShutdownTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if start, end, err := c.BusinessHours(); err != nil {
		errs = append(errs, err)
	} else if start >= end {
		errs = append(errs, fmt.Errorf("compliance: business_start must be before business_end"))
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "", "memory", "sqlite", "sqlite3":
	case "postgres", "postgresql":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage: postgres driver needs DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, fmt.Errorf("server: rate limits must be >= 0"))
	}
	return errors.Join(errs...)
}

func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) CrewTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("crew.timeout", c.Crew.Timeout, DefaultCrewTimeout)
}

func (c *Config) ShutdownTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("server.shutdown_timeout", c.Server.ShutdownTimeout, 10*time.Second)
}

// BusinessHours returns the delivery window in minutes after midnight.
func (c *Config) BusinessHours() (int, int, error) {
	start, err := parseClock("compliance.business_start", c.Compliance.BusinessStart, 8*60)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClock("compliance.business_end", c.Compliance.BusinessEnd, 20*60)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseClock(path, raw string, def int) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid clock %q", path, raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}
