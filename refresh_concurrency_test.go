package authsync

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRefreshConcurrencySingleFlight(t *testing.T) {
	var refreshes atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	m := newTestManager(t, mux)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			results <- m.Refresh(context.Background())
		}()
	}
	wg.Wait()
	close(results)

	for ok := range results {
		if !ok {
			t.Fatal("a refresh caller observed failure on a successful refresh")
		}
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected exactly one network refresh, got %d", got)
	}
	if m.Metrics().Get(MetricRefreshShared) == 0 {
		t.Fatal("expected shared-refresh metric to move")
	}
}

func TestRefreshFailureSharedByAllCallers(t *testing.T) {
	var refreshes atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		time.Sleep(30 * time.Millisecond)
		w.WriteHeader(http.StatusUnauthorized)
	})
	m := newTestManager(t, mux)

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			results <- m.Refresh(context.Background())
		}()
	}
	wg.Wait()
	close(results)

	for ok := range results {
		if ok {
			t.Fatal("a caller observed success on a rejected refresh")
		}
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected exactly one network refresh, got %d", got)
	}
}

func TestRefreshNeverTouchesSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	m := newTestManager(t, mux)

	if !m.Refresh(context.Background()) {
		t.Fatal("refresh failed")
	}
	if m.Session() != nil {
		t.Fatal("refresh must not install a session")
	}
}

func TestRefreshSurvivesWinnerCancellation(t *testing.T) {
	var refreshes atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	m := newTestManager(t, mux)

	winnerCtx, cancel := context.WithCancel(context.Background())
	winner := make(chan bool, 1)
	go func() { winner <- m.Refresh(winnerCtx) }()

	time.Sleep(30 * time.Millisecond)
	joiner := make(chan bool, 1)
	go func() { joiner <- m.Refresh(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if !<-winner {
		t.Fatal("winner observed failure after its own cancellation")
	}
	if !<-joiner {
		t.Fatal("joiner failed because the winner cancelled")
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected one network refresh, got %d", got)
	}
}
