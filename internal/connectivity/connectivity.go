// Package connectivity reports whether the backend is reachable.
package connectivity

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/textlens/textlens/internal/observability"
)

// Oracle answers whether the client is online.
type Oracle interface {
	IsOnline() bool
}

// Static is an oracle with a fixed, settable answer.
type Static struct {
	online atomic.Bool
}

// NewStatic returns a Static oracle reporting the given state.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

// IsOnline returns the current setting.
func (s *Static) IsOnline() bool { return s.online.Load() }

// Set changes the reported state.
func (s *Static) Set(online bool) { s.online.Store(online) }

// Probe tracks reachability by polling a URL. Any response below 500 counts
// as online; transport errors and 5xx responses count as offline.
type Probe struct {
	URL        string
	Interval   time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     observability.Logger

	online  atomic.Bool
	checked atomic.Int64
}

// NewProbe returns a probe for url. It reports online until the first check
// says otherwise.
func NewProbe(url string, interval, timeout time.Duration) *Probe {
	p := &Probe{
		URL:      strings.TrimSpace(url),
		Interval: interval,
		Timeout:  timeout,
		Logger:   observability.NopLogger(),
	}
	p.online.Store(true)
	return p
}

// IsOnline returns the result of the most recent check.
func (p *Probe) IsOnline() bool { return p.online.Load() }

// LastChecked returns when the most recent check finished, or zero.
func (p *Probe) LastChecked() time.Time {
	ms := p.checked.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Check probes once and records the result.
func (p *Probe) Check(ctx context.Context) bool {
	online := p.reachable(ctx)
	previous := p.online.Swap(online)
	p.checked.Store(time.Now().UnixMilli())

	if previous != online {
		logger := p.Logger
		if logger == nil {
			logger = observability.NopLogger()
		}
		if online {
			logger.Info("Backend reachable again", zap.String("url", p.URL))
		} else {
			logger.Warn("Backend unreachable, serving from cache", zap.String("url", p.URL))
		}
	}
	return online
}

// Run checks immediately and then every Interval until ctx is done.
func (p *Probe) Run(ctx context.Context) {
	p.Check(ctx)
	if p.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

func (p *Probe) reachable(ctx context.Context) bool {
	if p.URL == "" {
		return true
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false
	}

	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
