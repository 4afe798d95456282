package eodhd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/simokitafresh/database-sub001/internal/models"
)

func fastRetry(attempts int) RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = attempts
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	return p
}

func newTestClient(serverURL string, attempts int) *Client {
	return NewClient("test-key",
		WithBaseURL(serverURL),
		WithRateLimit(1000),
		WithRetryPolicy(fastRetry(attempts)),
	)
}

func TestGetEOD_ParsesBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("api_token"); got != "test-key" {
			t.Errorf("api_token = %q", got)
		}
		if got := r.URL.Query().Get("period"); got != "d" {
			t.Errorf("period = %q", got)
		}
		fmt.Fprint(w, `[
			{"date":"2024-01-02","open":100,"high":105,"low":99,"close":104,"adjusted_close":104,"volume":1000},
			{"date":"2024-01-03","open":104,"high":106,"low":103,"close":105,"adjusted_close":105,"volume":1200}
		]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	bars, err := c.GetEOD(context.Background(), "AAPL", mustDate("2024-01-02"), mustDate("2024-01-03"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if !bars[0].Date.Equal(mustDate("2024-01-02")) || bars[0].Close != 104 {
		t.Errorf("first bar: %+v", bars[0])
	}
}

func TestGetEOD_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[{"date":"2024-01-02","open":100,"high":105,"low":99,"close":104,"adjusted_close":104,"volume":1000}]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 4)
	bars, err := c.GetEOD(context.Background(), "AAPL", mustDate("2024-01-02"), mustDate("2024-01-02"))
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if len(bars) != 1 {
		t.Errorf("got %d bars, want 1", len(bars))
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("server saw %d requests, want 3", n)
	}
}

func TestGetEOD_DoesNotRetryNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 4)
	_, err := c.GetEOD(context.Background(), "ZZZZ", mustDate("2024-01-02"), mustDate("2024-01-05"))
	if err == nil {
		t.Fatal("expected error")
	}

	var fe *models.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error type %T, want *models.FetchError", err)
	}
	if fe.Kind != models.FetchNotFound {
		t.Errorf("kind = %s, want %s", fe.Kind, models.FetchNotFound)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("server saw %d requests, want 1 (no retry on 404)", n)
	}
}

func TestGetEOD_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	if _, err := c.GetEOD(context.Background(), "AAPL", mustDate("2024-01-02"), mustDate("2024-01-02")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("server saw %d requests, want 2", n)
	}
}

func TestGetEOD_ExhaustedRetriesReturnClassifiedError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	_, err := c.GetEOD(context.Background(), "AAPL", mustDate("2024-01-02"), mustDate("2024-01-02"))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	var fe *models.FetchError
	if !errors.As(err, &fe) || fe.Kind != models.FetchTransient {
		t.Errorf("want transient FetchError, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("server saw %d requests, want 3", n)
	}
}

func TestGetEOD_SkipsUnparseableDates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"date":"2024-01-02","open":100,"high":105,"low":99,"close":104,"adjusted_close":104,"volume":1000},
			{"date":"not-a-date","open":1,"high":1,"low":1,"close":1,"adjusted_close":1,"volume":1}
		]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	bars, err := c.GetEOD(context.Background(), "AAPL", mustDate("2024-01-02"), mustDate("2024-01-02"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 1 {
		t.Errorf("got %d bars, want 1", len(bars))
	}
}

func TestClassify(t *testing.T) {
	c := NewClient("k")
	tests := []struct {
		status int
		want   models.FetchErrorKind
	}{
		{404, models.FetchNotFound},
		{429, models.FetchTransient},
		{408, models.FetchTransient},
		{500, models.FetchTransient},
		{503, models.FetchTransient},
		{400, models.FetchPermanent},
		{403, models.FetchPermanent},
	}
	for _, tt := range tests {
		fe := c.classify("AAPL", &APIError{StatusCode: tt.status, Endpoint: "/eod/AAPL"})
		if fe.Kind != tt.want {
			t.Errorf("classify(%d) = %s, want %s", tt.status, fe.Kind, tt.want)
		}
	}

	if fe := c.classify("AAPL", context.DeadlineExceeded); fe.Kind != models.FetchTransient {
		t.Errorf("deadline classified as %s, want transient", fe.Kind)
	}
}

func mustDate(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}
