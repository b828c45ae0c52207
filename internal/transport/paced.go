package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/textlens/textlens/internal/core"
)

// Paced spaces out outbound requests per endpoint. A request that would
// exceed its endpoint's rate waits for a token instead of failing.
// Endpoints without a configured rate are not paced.
type Paced struct {
	next     Transport
	limiters map[core.Endpoint]*rate.Limiter
}

// NewPaced wraps next with per-endpoint limits in requests per second. Keys
// are endpoint wire names; a "*" key applies to every endpoint without its
// own entry. Non-positive rates are ignored.
func NewPaced(next Transport, limits map[string]float64) (*Paced, error) {
	p := &Paced{next: next, limiters: make(map[core.Endpoint]*rate.Limiter)}

	fallback, hasFallback := limits["*"]
	for name, rps := range limits {
		if name == "*" || rps <= 0 {
			continue
		}
		endpoint, err := core.ParseEndpoint(name)
		if err != nil {
			return nil, fmt.Errorf("rate limit for %q: %w", strings.TrimSpace(name), err)
		}
		p.limiters[endpoint] = newLimiter(rps)
	}

	if hasFallback && fallback > 0 {
		for _, endpoint := range core.Endpoints {
			if _, ok := p.limiters[endpoint]; !ok {
				p.limiters[endpoint] = newLimiter(fallback)
			}
		}
	}
	return p, nil
}

func newLimiter(rps float64) *rate.Limiter {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Send waits for the endpoint's limiter, then forwards to the wrapped
// transport.
func (p *Paced) Send(ctx context.Context, endpoint core.Endpoint, method string, payload core.Payload) (json.RawMessage, error) {
	if limiter, ok := p.limiters[endpoint]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for %s rate limit: %w", endpoint, err)
		}
	}
	return p.next.Send(ctx, endpoint, method, payload)
}

// Limited reports whether endpoint has a configured rate.
func (p *Paced) Limited(endpoint core.Endpoint) bool {
	_, ok := p.limiters[endpoint]
	return ok
}
