package ndax

import (
	"strings"
	"time"

	"github.com/coachpo/ndax-gateway/internal/infra/config"
)

type publicMetadata struct {
	venue string
}

var ndaxPublicMetadata = publicMetadata{
	venue: "NDAX",
}

// REST endpoint names appended to the AP base URL.
const (
	endpointAuthenticateUser    = "AuthenticateUser"
	endpointGetUserAccountInfos = "GetUserAccountInfos"
	endpointCancelAllOrders     = "CancelAllOrders"
	endpointGetOpenOrders       = "GetOpenOrders"
	endpointGetAssets           = "Assets"
)

const (
	defaultPingInterval     = 5 * time.Second
	defaultPingTimeout      = 5 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultReadLimit        = 2 * 1024 * 1024
	defaultMaxReconnectWait = 20 * time.Second
	defaultReadyTimeout     = 10 * time.Second
	defaultHTTPTimeout      = 10 * time.Second
	defaultRESTRateLimit    = 5.0
	defaultRESTBurst        = 1
	errorBodyLimit          = 4 << 10
)

// StreamConfig tunes the websocket transport.
type StreamConfig struct {
	URL              string
	PingInterval     time.Duration
	ReadLimit        int64
	MaxReconnectWait time.Duration
	ReadyTimeout     time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	c.URL = strings.TrimSpace(c.URL)
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = defaultReadLimit
	}
	if c.MaxReconnectWait <= 0 {
		c.MaxReconnectWait = defaultMaxReconnectWait
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	return c
}

// RESTConfig tunes the REST client.
type RESTConfig struct {
	BaseURL   string
	OMSID     int
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

func (c RESTConfig) withDefaults() RESTConfig {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.OMSID <= 0 {
		c.OMSID = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultHTTPTimeout
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRESTRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = defaultRESTBurst
	}
	return c
}

// SessionConfig names the streams a Session subscribes to.
type SessionConfig struct {
	OMSID            int
	InstrumentID     int64
	Depth            int
	TradeInstruments []int64
	IncludeLastCount int
	LogUpdates       bool
}

// StreamConfigFrom maps the exchange section of the application config.
func StreamConfigFrom(cfg config.ExchangeConfig) StreamConfig {
	return StreamConfig{
		URL:          cfg.WSURL,
		PingInterval: cfg.PingInterval,
		ReadLimit:    cfg.ReadLimit,
	}
}

// RESTConfigFrom maps the exchange section of the application config.
func RESTConfigFrom(cfg config.ExchangeConfig) RESTConfig {
	return RESTConfig{
		BaseURL:   cfg.RESTURL,
		OMSID:     cfg.OMSID,
		Timeout:   cfg.HTTPTimeout,
		RateLimit: cfg.RESTRateLimit,
		Burst:     cfg.RESTBurst,
	}
}

// SessionConfigFrom maps the book and trades sections of the application config.
func SessionConfigFrom(cfg config.AppConfig) SessionConfig {
	return SessionConfig{
		OMSID:            cfg.Exchange.OMSID,
		InstrumentID:     cfg.Book.InstrumentID,
		Depth:            cfg.Book.Depth,
		TradeInstruments: append([]int64(nil), cfg.Trades.InstrumentIDs...),
		IncludeLastCount: cfg.Trades.IncludeLastCount,
		LogUpdates:       cfg.Book.LogUpdates,
	}
}
