/*
config.go - Process configuration

PURPOSE:
  Loads server, storage, logging and payroll settings from payroll.toml and
  PAYROLL_* environment variables with viper. Effective-dated business
  settings (work days, allowances) are NOT here; they live in the
  system_parameters table so every run can resolve them as of its period.

PRIORITY (highest first):
  1. Environment, e.g. PAYROLL_VAULT_SECRET, PAYROLL_SERVER_PORT
  2. payroll.toml in ., ./config or /etc/payroll (or an explicit path)
  3. Defaults below

SEE ALSO:
  - cmd/server/main.go: consumer
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Log       LogConfig
	Vault     VaultConfig
	Payroll   PayrollConfig
	Tax       TaxConfig
	Catalog   CatalogConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type DatabaseConfig struct {
	Path string // ":memory:" keeps everything in process
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type VaultConfig struct {
	Secret string
}

type PayrollConfig struct {
	AllowStatutoryDefault bool
	BatchConcurrency      int
}

type TaxConfig struct {
	SchedulesFile string // optional; the built-in schedule applies to unlisted years
}

type CatalogConfig struct {
	SeedFile string // optional salary item definitions seeded at startup
}

// SchedulerConfig drives the year-end close job. The previous year is
// closed once the date passes CloseAfterDay of January.
type SchedulerConfig struct {
	Enabled       bool
	Interval      time.Duration
	CloseAfterDay int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("database.path", "./payroll.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("vault.secret", "")
	v.SetDefault("payroll.allow_statutory_default", false)
	v.SetDefault("payroll.batch_concurrency", 4)
	v.SetDefault("tax.schedules_file", "")
	v.SetDefault("catalog.seed_file", "")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("scheduler.close_after_day", 15)
}

// Load reads configuration. path may name a config file explicitly; when
// empty, payroll.toml is searched for and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("payroll")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/payroll")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PAYROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetInt("server.port"),
			ReadTimeout:    v.GetDuration("server.read_timeout"),
			WriteTimeout:   v.GetDuration("server.write_timeout"),
			CORSOrigins:    v.GetStringSlice("server.cors_origins"),
			RateLimitRPS:   v.GetFloat64("server.rate_limit_rps"),
			RateLimitBurst: v.GetInt("server.rate_limit_burst"),
		},
		Database: DatabaseConfig{Path: v.GetString("database.path")},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Vault: VaultConfig{Secret: v.GetString("vault.secret")},
		Payroll: PayrollConfig{
			AllowStatutoryDefault: v.GetBool("payroll.allow_statutory_default"),
			BatchConcurrency:      v.GetInt("payroll.batch_concurrency"),
		},
		Tax:     TaxConfig{SchedulesFile: v.GetString("tax.schedules_file")},
		Catalog: CatalogConfig{SeedFile: v.GetString("catalog.seed_file")},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			Interval:      v.GetDuration("scheduler.interval"),
			CloseAfterDay: v.GetInt("scheduler.close_after_day"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, errors.New("server.rate_limit_rps and server.rate_limit_burst must not be negative"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if len(c.Vault.Secret) < 16 {
		errs = append(errs, errors.New("vault.secret must be at least 16 bytes (set PAYROLL_VAULT_SECRET)"))
	}
	if c.Payroll.BatchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("payroll.batch_concurrency must be at least 1, got %d", c.Payroll.BatchConcurrency))
	}
	if c.Scheduler.Enabled {
		if c.Scheduler.Interval <= 0 {
			errs = append(errs, errors.New("scheduler.interval must be positive"))
		}
		if c.Scheduler.CloseAfterDay < 1 || c.Scheduler.CloseAfterDay > 31 {
			errs = append(errs, fmt.Errorf("scheduler.close_after_day %d is not a day of January", c.Scheduler.CloseAfterDay))
		}
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Server.Port) }
