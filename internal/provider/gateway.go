package provider

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/zulandar/parley/internal/store"
)

// Gateway routes sends to registered adapters, wrapping each vendor call in
// a per-attempt timeout and retrying transient failures with linear backoff.
type Gateway struct {
	mu        sync.RWMutex
	adapters  map[string]Adapter
	defaultID string

	retries int
	timeout time.Duration
	backoff time.Duration
}

// GatewayOpts holds parameters for creating a Gateway.
type GatewayOpts struct {
	MaxRetries int
	Timeout    time.Duration
	Backoff    time.Duration
}

// NewGateway creates an empty gateway; adapters are added with Register.
func NewGateway(opts GatewayOpts) *Gateway {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 1500 * time.Millisecond
	}
	return &Gateway{
		adapters: map[string]Adapter{},
		retries:  opts.MaxRetries,
		timeout:  opts.Timeout,
		backoff:  opts.Backoff,
	}
}

// Register adds an adapter under its ID. The first registered adapter
// becomes the default; isDefault moves the default explicitly. Registering
// the same ID again replaces the adapter.
func (g *Gateway) Register(adapter Adapter, isDefault bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := adapter.ID()
	g.adapters[id] = adapter
	if isDefault || g.defaultID == "" {
		g.defaultID = id
	}
}

// Registered returns the registered adapter IDs in sorted order.
func (g *Gateway) Registered() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.adapters))
	for id := range g.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultID returns the current default adapter's ID, or "".
func (g *Gateway) DefaultID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.defaultID
}

func (g *Gateway) resolve(providerID string) (Adapter, Result) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id := providerID
	if id == "" {
		id = g.defaultID
	}
	if id == "" {
		return nil, Failure("gateway: no adapters registered")
	}
	adapter, ok := g.adapters[id]
	if !ok {
		ids := make([]string, 0, len(g.adapters))
		for rid := range g.adapters {
			ids = append(ids, rid)
		}
		sort.Strings(ids)
		return nil, Failure("gateway: provider %q not registered (have %v)", id, ids)
	}
	return adapter, Result{}
}

// Send routes message to the named provider, retrying failed attempts up to
// the configured limit. An empty providerID selects the default adapter.
// Each attempt gets its own timeout; attempts are separated by backoff that
// grows linearly with the attempt number.
func (g *Gateway) Send(ctx context.Context, providerID string, userID int64, message string, opts SendOpts) Result {
	adapter, errResult := g.resolve(providerID)
	if adapter == nil {
		return errResult
	}
	return g.withRetry(ctx, adapter.ID(), func(attemptCtx context.Context) Result {
		return adapter.Send(attemptCtx, userID, message, opts)
	})
}

// SendBatch routes a wholesale transcript to the named provider with the
// same retry policy as Send.
func (g *Gateway) SendBatch(ctx context.Context, providerID string, userID int64, msgs []store.Turn) Result {
	adapter, errResult := g.resolve(providerID)
	if adapter == nil {
		return errResult
	}
	return g.withRetry(ctx, adapter.ID(), func(attemptCtx context.Context) Result {
		return adapter.SendBatch(attemptCtx, userID, msgs)
	})
}

func (g *Gateway) withRetry(ctx context.Context, providerID string, call func(context.Context) Result) Result {
	var last Result
	for attempt := 1; attempt <= g.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		last = call(attemptCtx)
		cancel()
		if last.Success {
			return last
		}
		log.Printf("provider: %s attempt %d/%d failed: %s", providerID, attempt, g.retries, last.Err)
		if last.Permanent {
			return last
		}
		if attempt == g.retries {
			break
		}
		select {
		case <-ctx.Done():
			return Failure("gateway: %s: %v", providerID, ctx.Err())
		case <-time.After(g.backoff * time.Duration(attempt)):
		}
	}
	return last
}

// Clear closes the user's conversation with the named provider. Unknown
// providers are a logged no-op.
func (g *Gateway) Clear(ctx context.Context, providerID string, userID int64) {
	adapter, _ := g.resolve(providerID)
	if adapter == nil {
		log.Printf("provider: clear: provider %q not registered", providerID)
		return
	}
	adapter.ClearHistory(ctx, userID)
}

// HistoryLength returns the open conversation length with the named
// provider, or 0 when the provider is unknown.
func (g *Gateway) HistoryLength(ctx context.Context, providerID string, userID int64) int {
	adapter, _ := g.resolve(providerID)
	if adapter == nil {
		return 0
	}
	return adapter.HistoryLength(ctx, userID)
}
