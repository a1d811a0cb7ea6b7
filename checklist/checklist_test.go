package checklist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pocketbase/pocketbase/tests"

	_ "robis-bridge/migrations"
	"robis-bridge/settings"
)

type countingFetcher struct {
	mu    sync.Mutex
	calls int
	keys  []string
}

func (f *countingFetcher) OChecklist(ctx context.Context, apiKey string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keys = append(f.keys, apiKey)
	return []byte("[]"), nil
}

func (f *countingFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestLoopSkipsWithoutAPIKey(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	f := &countingFetcher{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartLoop(ctx, app, f, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()

	if n := f.callCount(); n != 0 {
		t.Fatalf("expected no polls without an API key, got %d", n)
	}
}

func TestLoopPollsWithConfiguredKey(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	if err := settings.Set(app, settings.KeyAPIKey, "key-7"); err != nil {
		t.Fatal(err)
	}

	f := &countingFetcher{}
	ctx, cancel := context.WithCancel(context.Background())

	StartLoop(ctx, app, f, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	n := f.callCount()
	if n < 2 {
		t.Fatalf("expected repeated polls, got %d", n)
	}
	f.mu.Lock()
	key := f.keys[0]
	f.mu.Unlock()
	if key != "key-7" {
		t.Fatalf("expected configured key, got %q", key)
	}
	after := f.callCount()
	time.Sleep(30 * time.Millisecond)
	if f.callCount() != after {
		t.Fatal("loop kept polling after cancellation")
	}
}
