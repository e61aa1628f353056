package provider

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/parley/internal/store"
)

// ---------------------------------------------------------------------------
// Mock adapter
// ---------------------------------------------------------------------------

type mockAdapter struct {
	mu        sync.Mutex
	id        string
	sends     int
	clears    int
	failures  int  // fail the first N sends
	permanent bool // every send fails permanently
	reply     string
}

func (a *mockAdapter) ID() string { return a.id }

func (a *mockAdapter) Send(_ context.Context, _ int64, _ string, _ SendOpts) Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sends++
	if a.permanent {
		return PermanentFailure("%s: unsupported input", a.id)
	}
	if a.sends <= a.failures {
		return Failure("%s: transient fault", a.id)
	}
	return Result{Content: a.reply, Success: true}
}

func (a *mockAdapter) SendBatch(_ context.Context, _ int64, _ []store.Turn) Result {
	return a.Send(context.Background(), 0, "", SendOpts{})
}

func (a *mockAdapter) ClearHistory(_ context.Context, _ int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clears++
}

func (a *mockAdapter) HistoryLength(_ context.Context, _ int64) int { return 0 }

func newTestGateway() *Gateway {
	return NewGateway(GatewayOpts{
		MaxRetries: 3,
		Timeout:    time.Second,
		Backoff:    time.Millisecond,
	})
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func TestRegister_FirstAdapterBecomesDefault(t *testing.T) {
	g := newTestGateway()
	g.Register(&mockAdapter{id: "openai", reply: "a"}, false)
	g.Register(&mockAdapter{id: "gemini", reply: "b"}, false)

	if g.DefaultID() != "openai" {
		t.Errorf("expected openai as default, got %q", g.DefaultID())
	}

	result := g.Send(context.Background(), "", 1, "hi", SendOpts{})
	if !result.Success || result.Content != "a" {
		t.Errorf("default send should hit openai: %+v", result)
	}
}

func TestRegister_ExplicitDefaultWins(t *testing.T) {
	g := newTestGateway()
	g.Register(&mockAdapter{id: "openai", reply: "a"}, false)
	g.Register(&mockAdapter{id: "gemini", reply: "b"}, true)

	if g.DefaultID() != "gemini" {
		t.Errorf("expected gemini as default, got %q", g.DefaultID())
	}
}

func TestSend_UnregisteredProviderNamesAvailable(t *testing.T) {
	g := newTestGateway()
	g.Register(&mockAdapter{id: "openai", reply: "a"}, false)

	result := g.Send(context.Background(), "claude", 1, "hi", SendOpts{})
	if result.Success {
		t.Fatal("expected failure for unregistered provider")
	}
	if !strings.Contains(result.Err, "claude") || !strings.Contains(result.Err, "openai") {
		t.Errorf("error should name the requested and available providers: %q", result.Err)
	}
}

func TestSend_NoAdaptersRegistered(t *testing.T) {
	g := newTestGateway()
	result := g.Send(context.Background(), "", 1, "hi", SendOpts{})
	if result.Success {
		t.Fatal("expected failure with no adapters")
	}
}

// ---------------------------------------------------------------------------
// Retry policy
// ---------------------------------------------------------------------------

func TestSend_RetriesTransientFaults(t *testing.T) {
	g := newTestGateway()
	adapter := &mockAdapter{id: "openai", reply: "ok", failures: 2}
	g.Register(adapter, false)

	result := g.Send(context.Background(), "openai", 1, "hi", SendOpts{})
	if !result.Success {
		t.Fatalf("expected success after retries: %+v", result)
	}
	if adapter.sends != 3 {
		t.Errorf("expected 3 attempts, got %d", adapter.sends)
	}
}

func TestSend_ExhaustedRetriesReturnLastError(t *testing.T) {
	g := newTestGateway()
	adapter := &mockAdapter{id: "openai", failures: 10}
	g.Register(adapter, false)

	result := g.Send(context.Background(), "openai", 1, "hi", SendOpts{})
	if result.Success {
		t.Fatal("expected failure after exhausting retries")
	}
	if adapter.sends != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", adapter.sends)
	}
	if !strings.Contains(result.Err, "transient fault") {
		t.Errorf("expected last error to surface, got %q", result.Err)
	}
}

func TestSend_PermanentFailureIsNotRetried(t *testing.T) {
	g := NewGateway(GatewayOpts{MaxRetries: 5, Timeout: time.Second, Backoff: time.Hour})
	adapter := &mockAdapter{id: "openai", permanent: true}
	g.Register(adapter, false)

	done := make(chan Result, 1)
	go func() { done <- g.Send(context.Background(), "openai", 1, "hi", SendOpts{}) }()

	var result Result
	select {
	case result = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a permanent failure must return without backoff")
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if !result.Permanent || !strings.Contains(result.Err, "unsupported input") {
		t.Errorf("expected the permanent failure to surface, got %+v", result)
	}
	if adapter.sends != 1 {
		t.Errorf("expected a single attempt, got %d", adapter.sends)
	}
}

func TestSend_CanceledContextStopsRetrying(t *testing.T) {
	g := NewGateway(GatewayOpts{MaxRetries: 5, Timeout: time.Second, Backoff: time.Hour})
	adapter := &mockAdapter{id: "openai", failures: 10}
	g.Register(adapter, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan Result, 1)
	go func() { done <- g.Send(ctx, "openai", 1, "hi", SendOpts{}) }()

	select {
	case result := <-done:
		if result.Success {
			t.Error("expected failure on canceled context")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send must not wait out the backoff after cancellation")
	}
}

// ---------------------------------------------------------------------------
// Clear
// ---------------------------------------------------------------------------

func TestClear_DelegatesToAdapter(t *testing.T) {
	g := newTestGateway()
	adapter := &mockAdapter{id: "openai"}
	g.Register(adapter, false)

	g.Clear(context.Background(), "openai", 1)
	if adapter.clears != 1 {
		t.Errorf("expected 1 clear, got %d", adapter.clears)
	}
}

func TestClear_UnregisteredProviderIsNoOp(t *testing.T) {
	g := newTestGateway()
	// Must not panic.
	g.Clear(context.Background(), "claude", 1)
}
