package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/client"
	"github.com/boddenberg/pf-ledger-go/internal/infra/resilience"
)

var testCfg = resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond}

func TestFetchYear_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2030" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"hijri_month":10,"hijri_day":1,"date":"2030-02-05"}]`))
	}))
	defer srv.Close()

	c := client.NewHijriTableClient(srv.Client(), srv.URL+"/", resilience.NewCircuitBreaker("t1"), testCfg)
	entries, err := c.FetchYear(context.Background(), 2030)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Year != 2030 || entries[0].Date != "2030-02-05" {
		t.Errorf("unexpected entry %+v", entries[0])
	}
}

func TestFetchYear_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := client.NewHijriTableClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("t2"), testCfg)
	if _, err := c.FetchYear(context.Background(), 2031); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestFetchYear_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := client.NewHijriTableClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("t3"), testCfg)
	_, err := c.FetchYear(context.Background(), 2099)

	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected a single call, got %d", got)
	}
}

func TestFetchYear_ExhaustedRetriesWrapExternalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := client.NewHijriTableClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("t4"), testCfg)
	_, err := c.FetchYear(context.Background(), 2032)

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected external service error, got %v", err)
	}
}
