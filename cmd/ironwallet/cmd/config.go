package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
)

// envPrefix namespaces every environment variable, e.g. IRONWALLET_ADDR.
const envPrefix = "IRONWALLET"

// serverConfig is read from the environment first; flags given on the
// command line win.
type serverConfig struct {
	Addr             string        `envconfig:"ADDR" default:"127.0.0.1:8420" valid:"dialstring,required"`
	DataDir          string        `envconfig:"DATA_DIR" default:"./data" valid:"required"`
	KDFProfile       string        `envconfig:"KDF_PROFILE" default:"moderate" valid:"in(interactive|moderate|sensitive)"`
	ApprovalTimeout  time.Duration `envconfig:"APPROVAL_TIMEOUT" default:"50s"`
	AutoLockInterval time.Duration `envconfig:"AUTOLOCK_INTERVAL" default:"15s"`
	RelayToken       string        `envconfig:"RELAY_TOKEN" valid:"minstringlength(16)"`
	UIToken          string        `envconfig:"UI_TOKEN" valid:"minstringlength(16)"`
	AllowedOrigins   []string      `envconfig:"ALLOWED_ORIGINS" valid:"-"`
	OriginRPS        float64       `envconfig:"ORIGIN_RPS" default:"20"`
	OriginBurst      int           `envconfig:"ORIGIN_BURST" default:"40"`
	TLSCert          string        `envconfig:"TLS_CERT"`
	TLSKey           string        `envconfig:"TLS_KEY"`
	LogFormat        string        `envconfig:"LOG_FORMAT" default:"text" valid:"in(text|json)"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info" valid:"in(debug|info|warn|error)"`
}

func loadServerConfig(fs *pflag.FlagSet) (*serverConfig, error) {
	var cfg serverConfig
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	var err error
	override := func(name string, apply func() error) {
		if err == nil && fs.Changed(name) {
			err = apply()
		}
	}
	override("addr", func() (e error) { cfg.Addr, e = fs.GetString("addr"); return })
	override("data-dir", func() (e error) { cfg.DataDir, e = fs.GetString("data-dir"); return })
	override("kdf-profile", func() (e error) { cfg.KDFProfile, e = fs.GetString("kdf-profile"); return })
	override("approval-timeout", func() (e error) { cfg.ApprovalTimeout, e = fs.GetDuration("approval-timeout"); return })
	override("relay-token", func() (e error) { cfg.RelayToken, e = fs.GetString("relay-token"); return })
	override("ui-token", func() (e error) { cfg.UIToken, e = fs.GetString("ui-token"); return })
	override("allowed-origin", func() (e error) { cfg.AllowedOrigins, e = fs.GetStringSlice("allowed-origin"); return })
	override("tls-cert", func() (e error) { cfg.TLSCert, e = fs.GetString("tls-cert"); return })
	override("tls-key", func() (e error) { cfg.TLSKey, e = fs.GetString("tls-key"); return })
	override("log-format", func() (e error) { cfg.LogFormat, e = fs.GetString("log-format"); return })
	override("log-level", func() (e error) { cfg.LogLevel, e = fs.GetString("log-level"); return })
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *serverConfig) validate() error {
	if _, err := govalidator.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.ApprovalTimeout <= 0 {
		return fmt.Errorf("invalid configuration: approval timeout must be positive")
	}
	if c.AutoLockInterval <= 0 {
		return fmt.Errorf("invalid configuration: auto-lock interval must be positive")
	}
	if c.OriginRPS <= 0 || c.OriginBurst < 1 {
		return fmt.Errorf("invalid configuration: origin rate limit must be positive")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("invalid configuration: tls cert and key must be given together")
	}
	return nil
}

func (c *serverConfig) logger() *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.LogLevel))
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// clientConfig locates a running server for the wallet commands.
type clientConfig struct {
	Server  string `envconfig:"SERVER" default:"http://127.0.0.1:8420" valid:"url,required"`
	UIToken string `envconfig:"UI_TOKEN"`
}

func loadClientConfig(fs *pflag.FlagSet) (*clientConfig, error) {
	var cfg clientConfig
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if fs.Changed("server") {
		cfg.Server, _ = fs.GetString("server")
	}
	if fs.Changed("ui-token") {
		cfg.UIToken, _ = fs.GetString("ui-token")
	}
	if _, err := govalidator.ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
