package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/textlens/textlens/internal/client"
	"github.com/textlens/textlens/internal/config"
	"github.com/textlens/textlens/internal/connectivity"
	"github.com/textlens/textlens/internal/core/cache"
	"github.com/textlens/textlens/internal/core/store"
	"github.com/textlens/textlens/internal/observability"
	"github.com/textlens/textlens/internal/transport"
)

// app holds the dispatcher components built from one configuration.
type app struct {
	cfg    *config.Config
	kv     store.KV
	cache  *cache.Cache
	client *client.Client
	oracle connectivity.Oracle
	probe  *connectivity.Probe
	logger observability.Logger
}

// newApp opens the store and builds the transport, connectivity oracle and
// client described by cfg.
func newApp(ctx context.Context, cfg *config.Config, logger observability.Logger) (*app, error) {
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	kv, err := store.OpenKV(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	t, err := newTransport(cfg.Backend)
	if err != nil {
		closeKV(kv)
		return nil, err
	}

	a := &app{cfg: cfg, kv: kv, logger: logger}
	a.oracle, a.probe = newOracle(cfg)
	if a.probe != nil {
		a.probe.Logger = logger
	}

	a.cache = cache.New(kv,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithNamespace(cfg.Cache.Namespace),
		cache.WithLogger(logger),
	)
	a.client = client.New(t, a.cache, a.oracle,
		client.WithMaxConcurrent(cfg.Dispatch.MaxConcurrent),
		client.WithLogger(logger),
	)

	logger.Debug("Dispatcher ready",
		zap.String("backend", cfg.Backend.Mode),
		zap.String("store", cfg.Store.Driver),
		zap.String("connectivity", cfg.Connectivity.Mode),
		zap.Int("max_concurrent", cfg.Dispatch.MaxConcurrent))
	return a, nil
}

// Close waits for queued requests and releases the store.
func (a *app) Close(ctx context.Context) error {
	err := a.client.Close(ctx)
	closeKV(a.kv)
	return err
}

// newTransport selects the backend and wraps it with pacing when rate
// limits are configured.
func newTransport(cfg config.BackendConfig) (transport.Transport, error) {
	var t transport.Transport
	switch cfg.Mode {
	case config.BackendMock:
		t = transport.NewMock(cfg.MockDelay)
	case config.BackendHTTP, "":
		h := transport.NewHTTP(cfg.BaseURL, cfg.CSRFToken)
		h.Timeout = cfg.Timeout
		t = h
	default:
		return nil, fmt.Errorf("unsupported backend mode: %s", cfg.Mode)
	}

	if len(cfg.RateLimits) == 0 {
		return t, nil
	}
	paced, err := transport.NewPaced(t, cfg.RateLimits)
	if err != nil {
		return nil, err
	}
	return paced, nil
}

// newOracle returns the connectivity oracle and, when it polls a URL, the
// poller behind it so callers can run it. The mock backend has no URL to poll
// and stays online unless connectivity.probe_url names one.
func newOracle(cfg *config.Config) (connectivity.Oracle, *connectivity.Probe) {
	if cfg.Connectivity.Mode == config.ConnectivityStatic {
		return connectivity.NewStatic(cfg.Connectivity.Online), nil
	}
	if cfg.Backend.Mode == config.BackendMock && strings.TrimSpace(cfg.Connectivity.ProbeURL) == "" {
		return connectivity.NewStatic(true), nil
	}
	probe := connectivity.NewProbe(cfg.ProbeURL(), cfg.Connectivity.ProbeInterval, cfg.Connectivity.ProbeTimeout)
	return probe, probe
}

func closeKV(kv store.KV) {
	if s, ok := kv.(*store.Store); ok {
		_ = s.Close()
	}
}
