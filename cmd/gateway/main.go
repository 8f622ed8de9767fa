// Command gateway mirrors an NDAX order book, records trades and runs one-shot REST operations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/ndax-gateway/internal/auth"
	"github.com/coachpo/ndax-gateway/internal/infra/adapters/ndax"
	"github.com/coachpo/ndax-gateway/internal/infra/config"
	"github.com/coachpo/ndax-gateway/internal/infra/persistence/csvsink"
	"github.com/coachpo/ndax-gateway/internal/infra/telemetry"
	"github.com/coachpo/ndax-gateway/internal/orderbook"
)

const (
	defaultConfigPath        = "config/app.yaml"
	gatewayLoggerPrefix      = "gateway "
	shutdownTimeout          = 15 * time.Second
	streamShutdownTimeout    = 10 * time.Second
	lifecycleShutdownTimeout = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	errorBufferSize          = 64
)

type restOperation func(*ndax.RESTClient, context.Context) (json.RawMessage, error)

var restOperations = map[string]restOperation{
	"authenticate": (*ndax.RESTClient).AuthenticateUser,
	"account":      (*ndax.RESTClient).GetUserAccountInfos,
	"open-orders":  (*ndax.RESTClient).GetOpenOrders,
	"cancel-all":   (*ndax.RESTClient).CancelAllOrders,
	"assets":       (*ndax.RESTClient).GetAssets,
}

type cliOptions struct {
	configPath string
	restOp     string
}

func main() {
	opts := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newGatewayLogger()

	appCfg, err := config.LoadOrDefault(ctx, resolveConfigPath(opts.configPath))
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Printf("configuration initialised: env=%s, instrument=%d, depth=%d, trade streams=%d",
		appCfg.Environment, appCfg.Book.InstrumentID, appCfg.Book.Depth, len(appCfg.Trades.InstrumentIDs))

	creds, err := config.LoadCredentials(appCfg.Credentials.EnvFile)
	if err != nil {
		logger.Fatalf("load credentials: %v", err)
	}

	if opts.restOp != "" {
		if err := runREST(ctx, os.Stdout, logger, appCfg, creds, opts.restOp); err != nil {
			logger.Fatalf("rest %s: %v", opts.restOp, err)
		}
		return
	}

	telemetryProvider, err := initTelemetry(ctx, logger, appCfg.Environment, appCfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}

	var sink ndax.TradeSink
	var tradesFile *csvsink.Writer
	if len(appCfg.Trades.InstrumentIDs) > 0 {
		tradesFile, err = csvsink.Open(appCfg.Trades.CSVPath)
		if err != nil {
			logger.Fatalf("open trade sink: %v", err)
		}
		sink = tradesFile
		logger.Printf("recording trades to %s", appCfg.Trades.CSVPath)
	}

	replica, err := orderbook.New(appCfg.Book.Depth, orderbook.WithLayout(appCfg.Book.TupleLayout()))
	if err != nil {
		logger.Fatalf("initialise order book: %v", err)
	}
	session, err := ndax.NewSession(ndax.SessionConfigFrom(appCfg), replica, sink, logger)
	if err != nil {
		logger.Fatalf("initialise session: %v", err)
	}

	var lifecycle conc.WaitGroup
	streamErrors := make(chan error, errorBufferSize)
	lifecycle.Go(func() {
		drainErrors(ctx, logger, streamErrors)
	})

	manager := ndax.NewWSManager(ndax.StreamConfigFrom(appCfg.Exchange), session.HandleFrame, logger, streamErrors)
	if err := manager.Subscribe(ctx, session.Subscriptions()...); err != nil {
		logger.Fatalf("register subscriptions: %v", err)
	}
	if err := manager.Start(ctx); err != nil {
		logger.Printf("websocket not connected yet, retrying in background: %v", err)
	}

	logger.Print("gateway started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		stream:     manager,
		mainCancel: cancel,
		lifecycle:  &lifecycle,
		trades:     tradesFile,
		telemetry:  telemetryProvider,
	})
	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() cliOptions {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to application configuration file (default: %s when present)", defaultConfigPath))
	restOp := flag.String("rest", "", "Run one REST operation and exit: "+strings.Join(restOperationNames(), ", "))
	flag.Parse()
	return cliOptions{configPath: *cfgPath, restOp: strings.TrimSpace(*restOp)}
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newGatewayLogger() *log.Logger {
	return log.New(os.Stdout, gatewayLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

// resolveConfigPath prefers the flag, then the default file if it exists; empty means built-in defaults.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	candidate := filepath.Clean(defaultConfigPath)
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

func restOperationNames() []string {
	names := make([]string, 0, len(restOperations))
	for name := range restOperations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runREST(ctx context.Context, out io.Writer, logger *log.Logger, appCfg config.AppConfig, creds auth.Credentials, op string) error {
	call, ok := restOperations[op]
	if !ok {
		return fmt.Errorf("unknown operation %q (want one of %s)", op, strings.Join(restOperationNames(), ", "))
	}

	signer, err := auth.NewSigner(creds, nil)
	if err != nil {
		logger.Printf("credentials unavailable, private calls will fail: %v", err)
	}
	client, err := ndax.NewRESTClient(ndax.RESTConfigFrom(appCfg.Exchange), signer)
	if err != nil {
		return err
	}

	body, err := call(client, ctx)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out, string(body)); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func initTelemetry(ctx context.Context, logger *log.Logger, env config.Environment, cfg config.TelemetryConfig) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	if cfg.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	if cfg.ServiceName != "" {
		telemetryCfg.ServiceName = cfg.ServiceName
	}
	telemetryCfg.Environment = string(env)
	telemetryCfg.OTLPInsecure = cfg.OTLPInsecure
	telemetryCfg.EnableMetrics = cfg.EnableMetrics
	telemetryCfg.Enabled = telemetryCfg.Enabled || cfg.EnableMetrics

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if provider.Enabled() {
		logger.Printf("telemetry initialized: endpoint=%s, service=%s", telemetryCfg.OTLPEndpoint, telemetryCfg.ServiceName)
	} else {
		logger.Printf("telemetry disabled")
	}
	return provider, nil
}

func drainErrors(ctx context.Context, logger *log.Logger, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("stream: %v", err)
			}
		}
	}
}

type gracefulShutdownConfig struct {
	stream     *ndax.WSManager
	mainCancel context.CancelFunc
	lifecycle  *conc.WaitGroup
	trades     *csvsink.Writer
	telemetry  *telemetry.Provider
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}
	waitFor := func(stepCtx context.Context, fn func()) error {
		done := make(chan struct{})
		go func() {
			fn()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-stepCtx.Done():
			return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
		}
	}

	logger.Print("shutdown: cancelling main context")
	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}
	if cfg.stream != nil {
		shutdownStep("closing websocket", streamShutdownTimeout, func(stepCtx context.Context) error {
			return waitFor(stepCtx, cfg.stream.Stop)
		})
	}
	if cfg.lifecycle != nil {
		shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			return waitFor(stepCtx, cfg.lifecycle.Wait)
		})
	}
	if cfg.trades != nil {
		shutdownStep("closing trade sink", lifecycleShutdownTimeout, func(context.Context) error {
			return cfg.trades.Close()
		})
	}
	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.telemetry.Shutdown(stepCtx)
		})
	}
}
