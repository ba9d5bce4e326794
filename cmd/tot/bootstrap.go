package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tradingtot/internal/api"
	"tradingtot/internal/auth"
	"tradingtot/internal/auth/browser"
	"tradingtot/internal/auth/form"
	"tradingtot/internal/broker/brokerobs"
	"tradingtot/internal/broker/trading212"
	"tradingtot/internal/credential"
	"tradingtot/internal/interfaces"
	"tradingtot/internal/logger"
	"tradingtot/internal/store"
	"tradingtot/internal/ticker"
	"tradingtot/internal/trace"
	"tradingtot/internal/tradelog"
	"tradingtot/internal/types"
)

// Session clients are paced so the history probe does not hammer the API
const (
	sessionBurst    = 10
	sessionInterval = 100 * time.Millisecond
)

// app holds everything a command needs for one account
type app struct {
	cfg     *store.Config
	auth    *auth.Authenticator
	broker  interfaces.Broker
	journal *tradelog.Journal
	driver  interfaces.LoginDriver
	zlog    *zap.SugaredLogger
}

// initializeSystem initializes environment, logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old journal files if retention is configured
func compressOldLogs(ctx context.Context, journal *tradelog.Journal) {
	v := os.Getenv("TRADINGTOT_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Ignoring invalid TRADINGTOT_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := journal.CompressOlder(n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

// initializeLoginDriver returns the configured login driver
func initializeLoginDriver(ctx context.Context, cfg *store.Config) (interfaces.LoginDriver, *zap.SugaredLogger, error) {
	switch cfg.Login.Driver {
	case store.LoginDriverForm:
		logger.Info(ctx, "Using HTTP form login driver")
		return form.NewDriver(form.Config{
			BaseURL: cfg.Endpoints.Broker,
			Timeout: cfg.HTTPTimeout,
		}, cfg.Endpoints.Home), nil, nil
	default:
		zlog, err := browser.NewLogger()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize browser logger: %w", err)
		}
		return browser.NewDriver(browser.Config{
			BinaryPath:  cfg.Login.BinaryPath,
			UserAgent:   types.DefaultUserAgent,
			HomeURL:     cfg.Endpoints.Home,
			ShotsDir:    cfg.ShotsDir(),
			Wait:        cfg.Login.Wait,
			ShowBrowser: cfg.Login.ShowBrowser,
			Screenshots: !cfg.Login.NoScreenshots,
		}, zlog), zlog, nil
	}
}

// initializeApp wires the credential cache, authenticator, resolver and
// broker client for one account
func initializeApp(ctx context.Context, cfg *store.Config) (*app, error) {
	driver, zlog, err := initializeLoginDriver(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cache := credential.NewFileCache(cfg.AuthFile())
	providers := []interfaces.CredentialProvider{
		auth.NewCachedCredentialProvider(cache),
		auth.NewInteractiveLoginProvider(driver, cache, cfg.Email, cfg.Password),
	}

	authn := auth.NewAuthenticator(cfg.Endpoints.Broker, providers,
		auth.WithAttempts(cfg.AuthAttempts),
		auth.WithSessionOptions(
			api.WithTimeout(cfg.HTTPTimeout),
			api.WithRateLimit(sessionBurst, sessionInterval),
			api.WithLogging(logger.IsDebugEnabled()),
		),
	)
	transport := auth.NewTransport(authn)

	resolverOpts := []ticker.Option{
		ticker.WithSearchClient(api.NewClient(
			api.WithTimeout(cfg.HTTPTimeout),
			api.WithHeaders(api.BrowserHeaders(types.DefaultUserAgent)),
			api.WithLogging(logger.IsDebugEnabled()),
		)),
	}
	if cfg.Endpoints.Algolia != "" {
		resolverOpts = append(resolverOpts, ticker.WithAlgoliaBase(cfg.Endpoints.Algolia))
	}
	resolver := ticker.NewResolver(transport, cfg.Environment, resolverOpts...)

	client := trading212.New(trading212.Params{
		Transport: transport,
		Resolver:  resolver,
		Currency:  cfg.Currency,
	})

	journal := tradelog.New(cfg.JournalDir())
	compressOldLogs(ctx, journal)

	logger.Info(ctx, "Client initialized",
		"environment", cfg.Environment,
		"login_driver", cfg.Login.Driver,
		"auth_attempts", cfg.AuthAttempts,
		"home", cfg.Home,
	)

	return &app{
		cfg:     cfg,
		auth:    authn,
		broker:  brokerobs.Wrap(client),
		journal: journal,
		driver:  driver,
		zlog:    zlog,
	}, nil
}

func (a *app) Close() {
	if err := a.driver.Close(); err != nil {
		logger.Warn(context.Background(), "Failed to close login driver", "error", err)
	}
	if a.zlog != nil {
		_ = a.zlog.Sync()
	}
}
