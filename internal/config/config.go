// Package config provides Viper-based configuration loading for the tick server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/cory-johannsen/splittermond/internal/game/check"
	"github.com/cory-johannsen/splittermond/internal/game/status"
)

// EnvPrefix prefixes every environment override, e.g. SPLITTERMOND_DATABASE_HOST.
const EnvPrefix = "SPLITTERMOND"

// ServerConfig holds listener settings.
type ServerConfig struct {
	// Storage selects the combat repository: "memory" or "postgres".
	Storage  string `mapstructure:"storage"`
	GRPCHost string `mapstructure:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port"`
	// HTTPHost and HTTPPort serve the websocket live feed.
	HTTPHost string `mapstructure:"http_host"`
	HTTPPort int    `mapstructure:"http_port"`
	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PingInterval is how often idle websocket clients are pinged.
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GRPCAddr returns the "host:port" gRPC listen address.
func (s ServerConfig) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", s.GRPCHost, s.GRPCPort)
}

// HTTPAddr returns the "host:port" HTTP listen address.
func (s ServerConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", s.HTTPHost, s.HTTPPort)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// TickBarConfig holds tick-bar view settings.
type TickBarConfig struct {
	// ViewportTicks is the number of ticks a client shows at once.
	ViewportTicks int `mapstructure:"viewport_ticks"`
	// HorizonFloor is the smallest max tick of a schedule.
	HorizonFloor int `mapstructure:"horizon_floor"`
	// HorizonPadding extends the schedule past the latest initiative or effect.
	HorizonPadding int `mapstructure:"horizon_padding"`
}

// Horizon converts the settings into a status.Horizon.
func (t TickBarConfig) Horizon() status.Horizon {
	return status.Horizon{Floor: t.HorizonFloor, Padding: t.HorizonPadding}
}

// RulesConfig holds check-evaluation thresholds.
type RulesConfig struct {
	FumbleThreshold  int `mapstructure:"fumble_threshold"`
	CritThreshold    int `mapstructure:"crit_threshold"`
	CritBonus        int `mapstructure:"crit_bonus"`
	FumblePenalty    int `mapstructure:"fumble_penalty"`
	MaxMessageDegree int `mapstructure:"max_message_degree"`
}

// CheckRules converts the settings into check.Rules.
func (r RulesConfig) CheckRules() check.Rules {
	return check.Rules{
		FumbleThreshold:  r.FumbleThreshold,
		CritThreshold:    r.CritThreshold,
		CritBonus:        r.CritBonus,
		FumblePenalty:    r.FumblePenalty,
		MaxMessageDegree: r.MaxMessageDegree,
	}
}

// ContentConfig locates data files.
type ContentConfig struct {
	// StatusDir holds status-effect definition YAML files.
	StatusDir string `mapstructure:"status_dir"`
	// ScriptDir holds lua_on_trigger scripts.
	ScriptDir string `mapstructure:"script_dir"`
	// LocaleDir overrides the embedded catalogs when non-empty.
	LocaleDir string `mapstructure:"locale_dir"`
	// Locale is the notification language.
	Locale string `mapstructure:"locale"`
	// ScriptInstructionLimit is the Lua opcode budget per hook call.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	TickBar  TickBarConfig  `mapstructure:"tickbar"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Content  ContentConfig  `mapstructure:"content"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateServer(c.Server),
		validateDatabase(c.Server.Storage, c.Database),
		validateLogging(c.Logging),
		validateTickBar(c.TickBar),
		validateRules(c.Rules),
		validateContent(c.Content),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func joined(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "; "))
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Storage != "memory" && s.Storage != "postgres" {
		errs = append(errs, fmt.Sprintf("server.storage must be one of [memory, postgres], got %q", s.Storage))
	}
	if s.GRPCHost == "" {
		errs = append(errs, "server.grpc_host must not be empty")
	}
	if !validPort(s.GRPCPort) {
		errs = append(errs, fmt.Sprintf("server.grpc_port must be 1-65535, got %d", s.GRPCPort))
	}
	if !validPort(s.HTTPPort) {
		errs = append(errs, fmt.Sprintf("server.http_port must be 1-65535, got %d", s.HTTPPort))
	}
	if s.GRPCPort == s.HTTPPort && s.GRPCHost == s.HTTPHost {
		errs = append(errs, "server.grpc_port and server.http_port must differ")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if s.PingInterval <= 0 {
		errs = append(errs, "server.ping_interval must be positive")
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	return joined(errs)
}

func validateDatabase(storage string, d DatabaseConfig) error {
	if storage != "postgres" {
		return nil
	}
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if !validPort(d.Port) {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	return joined(errs)
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateTickBar(t TickBarConfig) error {
	var errs []string
	if t.ViewportTicks < 1 {
		errs = append(errs, fmt.Sprintf("tickbar.viewport_ticks must be >= 1, got %d", t.ViewportTicks))
	}
	if t.HorizonFloor < 0 {
		errs = append(errs, fmt.Sprintf("tickbar.horizon_floor must be >= 0, got %d", t.HorizonFloor))
	}
	if t.HorizonPadding < 0 {
		errs = append(errs, fmt.Sprintf("tickbar.horizon_padding must be >= 0, got %d", t.HorizonPadding))
	}
	return joined(errs)
}

func validateRules(r RulesConfig) error {
	var errs []string
	if r.FumbleThreshold < 2 {
		errs = append(errs, fmt.Sprintf("rules.fumble_threshold must be >= 2, got %d", r.FumbleThreshold))
	}
	if r.CritThreshold <= r.FumbleThreshold || r.CritThreshold > 20 {
		errs = append(errs, fmt.Sprintf("rules.crit_threshold must be in (fumble_threshold, 20], got %d", r.CritThreshold))
	}
	if r.CritBonus < 0 || r.FumblePenalty < 0 {
		errs = append(errs, "rules.crit_bonus and rules.fumble_penalty must not be negative")
	}
	if r.MaxMessageDegree < 1 {
		errs = append(errs, fmt.Sprintf("rules.max_message_degree must be >= 1, got %d", r.MaxMessageDegree))
	}
	return joined(errs)
}

func validateContent(c ContentConfig) error {
	var errs []string
	if c.StatusDir == "" {
		errs = append(errs, "content.status_dir must not be empty")
	}
	if c.Locale == "" {
		errs = append(errs, "content.locale must not be empty")
	}
	if c.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("content.script_instruction_limit must be >= 0, got %d", c.ScriptInstructionLimit))
	}
	return joined(errs)
}

// Load reads an optional .env file, the YAML configuration at path and
// SPLITTERMOND_* environment overrides, then validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadDotEnv exports the variables in the given .env files without overriding
// variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the default settings.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.storage", "memory")
	v.SetDefault("server.grpc_host", "127.0.0.1")
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_host", "127.0.0.1")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.ping_interval", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "splittermond")
	v.SetDefault("database.password", "splittermond")
	v.SetDefault("database.name", "splittermond")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	h := status.DefaultHorizon()
	v.SetDefault("tickbar.viewport_ticks", 20)
	v.SetDefault("tickbar.horizon_floor", h.Floor)
	v.SetDefault("tickbar.horizon_padding", h.Padding)

	r := check.DefaultRules()
	v.SetDefault("rules.fumble_threshold", r.FumbleThreshold)
	v.SetDefault("rules.crit_threshold", r.CritThreshold)
	v.SetDefault("rules.crit_bonus", r.CritBonus)
	v.SetDefault("rules.fumble_penalty", r.FumblePenalty)
	v.SetDefault("rules.max_message_degree", r.MaxMessageDegree)

	v.SetDefault("content.status_dir", "content/status")
	v.SetDefault("content.script_dir", "content/scripts")
	v.SetDefault("content.locale_dir", "")
	v.SetDefault("content.locale", "de-DE")
	v.SetDefault("content.script_instruction_limit", 0)
}
