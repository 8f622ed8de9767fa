// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/ndax-gateway/internal/wire"
)

const (
	defaultWSURL         = "wss://api.ndax.io/WSGateway"
	defaultRESTURL       = "https://api.ndax.io:8443/AP/"
	defaultOMSID         = 1
	defaultPingInterval  = 5 * time.Second
	defaultHTTPTimeout   = 10 * time.Second
	defaultRESTRateLimit = 5.0
	defaultRESTBurst     = 1
	defaultReadLimit     = 2 * 1024 * 1024
	defaultBookDepth     = 10
	defaultLastCount     = 10
	defaultServiceName   = "ndax-gateway"
)

// ExchangeConfig addresses the NDAX gateway and tunes the transport.
type ExchangeConfig struct {
	WSURL         string        `yaml:"wsURL"`
	RESTURL       string        `yaml:"restURL"`
	OMSID         int           `yaml:"omsID"`
	PingInterval  time.Duration `yaml:"pingInterval"`
	HTTPTimeout   time.Duration `yaml:"httpTimeout"`
	RESTRateLimit float64       `yaml:"restRateLimit"`
	RESTBurst     int           `yaml:"restBurst"`
	ReadLimit     int64         `yaml:"readLimit"`
}

func (c *ExchangeConfig) applyDefaults() {
	c.WSURL = strings.TrimSpace(c.WSURL)
	if c.WSURL == "" {
		c.WSURL = defaultWSURL
	}
	c.RESTURL = strings.TrimSpace(c.RESTURL)
	if c.RESTURL == "" {
		c.RESTURL = defaultRESTURL
	}
	if c.OMSID <= 0 {
		c.OMSID = defaultOMSID
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.RESTRateLimit <= 0 {
		c.RESTRateLimit = defaultRESTRateLimit
	}
	if c.RESTBurst <= 0 {
		c.RESTBurst = defaultRESTBurst
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = defaultReadLimit
	}
}

func (c ExchangeConfig) validate() error {
	ws, err := url.Parse(c.WSURL)
	if err != nil {
		return fmt.Errorf("wsURL: %w", err)
	}
	if ws.Scheme != "ws" && ws.Scheme != "wss" {
		return fmt.Errorf("wsURL scheme must be ws or wss")
	}
	rest, err := url.Parse(c.RESTURL)
	if err != nil {
		return fmt.Errorf("restURL: %w", err)
	}
	if rest.Scheme != "http" && rest.Scheme != "https" {
		return fmt.Errorf("restURL scheme must be http or https")
	}
	if c.OMSID <= 0 {
		return fmt.Errorf("omsID must be >0")
	}
	return nil
}

// BookConfig selects the mirrored order book.
type BookConfig struct {
	InstrumentID int64        `yaml:"instrumentID"`
	Depth        int          `yaml:"depth"`
	Layout       *wire.Layout `yaml:"layout"`
	LogUpdates   bool         `yaml:"logUpdates"`
}

// TupleLayout returns the configured layout or wire.DefaultLayout.
func (c BookConfig) TupleLayout() wire.Layout {
	if c.Layout == nil {
		return wire.DefaultLayout
	}
	return *c.Layout
}

// TradesConfig selects the trade streams and where they are recorded.
type TradesConfig struct {
	InstrumentIDs    []int64 `yaml:"instrumentIDs"`
	IncludeLastCount int     `yaml:"includeLastCount"`
	CSVPath          string  `yaml:"csvPath"`
}

// CredentialsConfig points at the optional .env file holding API credentials.
type CredentialsConfig struct {
	EnvFile string `yaml:"envFile"`
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// AppConfig is the unified gateway client configuration sourced from YAML.
type AppConfig struct {
	Environment Environment       `yaml:"environment"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Book        BookConfig        `yaml:"book"`
	Trades      TradesConfig      `yaml:"trades"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// Default returns a configuration subscribing to instrument 1 on the public NDAX gateway.
func Default() AppConfig {
	cfg := AppConfig{
		Environment: EnvDev,
		Book:        BookConfig{InstrumentID: 1, Depth: defaultBookDepth, LogUpdates: true},
		Trades: TradesConfig{
			InstrumentIDs:    []int64{1, 90},
			IncludeLastCount: defaultLastCount,
			CSVPath:          "trades.csv",
		},
		Credentials: CredentialsConfig{EnvFile: ".env"},
	}
	cfg.normalise()
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file.
// Sections missing from the file take their defaults.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	// Fields absent from the file keep their default values.
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadOrDefault loads configPath when set and falls back to Default otherwise.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, error) {
	if strings.TrimSpace(configPath) == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	return Load(ctx, configPath)
}

func (c *AppConfig) normalise() {
	c.Environment = normalizeEnvironment(c.Environment)
	if c.Environment == "" {
		c.Environment = EnvDev
	}
	c.Exchange.applyDefaults()

	if c.Book.Depth <= 0 {
		c.Book.Depth = defaultBookDepth
	}
	if c.Trades.IncludeLastCount < 0 {
		c.Trades.IncludeLastCount = 0
	}
	if len(c.Trades.InstrumentIDs) > 0 {
		seen := make(map[int64]struct{}, len(c.Trades.InstrumentIDs))
		ids := make([]int64, 0, len(c.Trades.InstrumentIDs))
		for _, id := range c.Trades.InstrumentIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		c.Trades.InstrumentIDs = ids
	}
	c.Trades.CSVPath = strings.TrimSpace(c.Trades.CSVPath)
	if c.Trades.CSVPath != "" {
		c.Trades.CSVPath = filepath.Clean(c.Trades.CSVPath)
	}
	c.Credentials.EnvFile = strings.TrimSpace(c.Credentials.EnvFile)

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	if err := c.Exchange.validate(); err != nil {
		return fmt.Errorf("exchange: %w", err)
	}

	if c.Book.InstrumentID <= 0 {
		return fmt.Errorf("book instrumentID must be >0")
	}
	if c.Book.Depth <= 0 {
		return fmt.Errorf("book depth must be >0")
	}
	if err := c.Book.TupleLayout().Validate(); err != nil {
		return fmt.Errorf("book layout: %w", err)
	}

	for _, id := range c.Trades.InstrumentIDs {
		if id <= 0 {
			return fmt.Errorf("trades instrumentIDs must be >0, got %d", id)
		}
	}
	if len(c.Trades.InstrumentIDs) > 0 && c.Trades.CSVPath == "" {
		return fmt.Errorf("trades csvPath required when trade streams are configured")
	}

	if c.Telemetry.EnableMetrics && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry otlpEndpoint required when metrics are enabled")
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
