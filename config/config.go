package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bassamadnan/gmail-ingest/query"
)

// EnvPrefix prefixes environment overrides, e.g. GMAIL_INGEST_EMAIL_KEYWORD.
const EnvPrefix = "GMAIL_INGEST"

type Paths struct {
	AttachmentDir  string `mapstructure:"attachment_dir"`
	OutputCSV      string `mapstructure:"output_csv"`
	LastRunTracker string `mapstructure:"last_run_tracker"`
	JobStats       string `mapstructure:"job_stats"`
}

type Auth struct {
	TokenFile       string `mapstructure:"token_file"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// Email holds the search filters.
type Email struct {
	FromEmail     string `mapstructure:"from_email"`
	Keyword       string `mapstructure:"keyword"`
	HasAttachment bool   `mapstructure:"has_attachment"`
	AfterDate     string `mapstructure:"after_date"`
	BeforeDate    string `mapstructure:"before_date"`
	MaxResults    int64  `mapstructure:"max_results"`
	Incremental   bool   `mapstructure:"incremental"`
}

type Schedule struct {
	Hour   int `mapstructure:"hour"`
	Minute int `mapstructure:"minute"`
}

// Conditions are the resource gate thresholds.
type Conditions struct {
	MinRAMPercentFree    float64 `mapstructure:"min_ram_percent_free"`
	MaxIdleMinutes       int     `mapstructure:"max_idle_minutes"`
	CheckIntervalSeconds int     `mapstructure:"check_interval_seconds"`
	NetworkProbe         string  `mapstructure:"network_probe"`
}

// System configures the process itself and the optional external script.
type System struct {
	ProjectDir   string `mapstructure:"project_dir"`
	ScriptName   string `mapstructure:"script_name"`
	VenvActivate string `mapstructure:"venv_activate"`
	LogFile      string `mapstructure:"log_file"`
}

type Config struct {
	Paths      Paths      `mapstructure:"paths"`
	Auth       Auth       `mapstructure:"auth"`
	Email      Email      `mapstructure:"email"`
	Schedule   Schedule   `mapstructure:"schedule"`
	Conditions Conditions `mapstructure:"conditions"`
	System     System     `mapstructure:"system"`
}

var defaults = map[string]any{
	"paths.attachment_dir":              "data/attachments",
	"paths.output_csv":                  "data/emails.csv",
	"paths.last_run_tracker":            "data/last_run.json",
	"paths.job_stats":                   "data/job_stats.xlsx",
	"auth.token_file":                   "token.json",
	"auth.credentials_file":             "credentials.json",
	"email.from_email":                  "",
	"email.keyword":                     "",
	"email.has_attachment":              false,
	"email.after_date":                  "",
	"email.before_date":                 "",
	"email.max_results":                 100,
	"email.incremental":                 true,
	"schedule.hour":                     9,
	"schedule.minute":                   0,
	"conditions.min_ram_percent_free":   10,
	"conditions.max_idle_minutes":       5,
	"conditions.check_interval_seconds": 600,
	"conditions.network_probe":          "8.8.8.8:53",
	"system.project_dir":                "",
	"system.script_name":                "",
	"system.venv_activate":              "",
	"system.log_file":                   "logs/scheduler.log",
}

// Load reads the YAML file at path. A missing file yields the defaults.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks ranges and required paths.
func (c *Config) Validate() error {
	var errs []error
	if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 {
		errs = append(errs, fmt.Errorf("schedule.hour %d out of range 0-23", c.Schedule.Hour))
	}
	if c.Schedule.Minute < 0 || c.Schedule.Minute > 59 {
		errs = append(errs, fmt.Errorf("schedule.minute %d out of range 0-59", c.Schedule.Minute))
	}
	if c.Email.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("email.max_results must be positive"))
	}
	if c.Conditions.MinRAMPercentFree < 0 || c.Conditions.MinRAMPercentFree > 100 {
		errs = append(errs, fmt.Errorf("conditions.min_ram_percent_free %v out of range 0-100", c.Conditions.MinRAMPercentFree))
	}
	if c.Conditions.MaxIdleMinutes < 0 {
		errs = append(errs, fmt.Errorf("conditions.max_idle_minutes must not be negative"))
	}
	if c.Conditions.NetworkProbe == "" {
		errs = append(errs, fmt.Errorf("conditions.network_probe must be set"))
	} else if _, _, err := net.SplitHostPort(c.Conditions.NetworkProbe); err != nil {
		errs = append(errs, fmt.Errorf("conditions.network_probe %q: %w", c.Conditions.NetworkProbe, err))
	}
	if c.Conditions.CheckIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("conditions.check_interval_seconds must be positive"))
	}
	for key, val := range map[string]string{
		"paths.attachment_dir":   c.Paths.AttachmentDir,
		"paths.output_csv":       c.Paths.OutputCSV,
		"paths.last_run_tracker": c.Paths.LastRunTracker,
		"paths.job_stats":        c.Paths.JobStats,
	} {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	return errors.Join(errs...)
}

// Preferences returns the query filters from the email section.
func (c *Config) Preferences() query.Preferences {
	return query.Preferences{
		From:          c.Email.FromEmail,
		Keyword:       c.Email.Keyword,
		HasAttachment: c.Email.HasAttachment,
		AfterDate:     c.Email.AfterDate,
		BeforeDate:    c.Email.BeforeDate,
		MaxResults:    c.Email.MaxResults,
	}
}

func (c *Config) MaxIdle() time.Duration {
	return time.Duration(c.Conditions.MaxIdleMinutes) * time.Minute
}

func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Conditions.CheckIntervalSeconds) * time.Second
}
