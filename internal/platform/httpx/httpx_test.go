package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"429", &StatusError{Service: "x", StatusCode: 429}, true},
		{"503", &StatusError{Service: "x", StatusCode: 503}, true},
		{"400", &StatusError{Service: "x", StatusCode: 400}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryableError(tc.err); got != tc.want {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
}

func TestRetryAfterDurationCapped(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "60")
	if got := RetryAfterDuration(resp, time.Second, 5*time.Second); got != 5*time.Second {
		t.Fatalf("want cap 5s, got %s", got)
	}
	if got := RetryAfterDuration(nil, 2*time.Second, 0); got != 2*time.Second {
		t.Fatalf("want fallback 2s, got %s", got)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	calls := 0
	retries := 0
	err := Do(context.Background(), RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		OnRetry:        func(int, time.Duration, error) { retries++ },
	}, func(ctx context.Context) (*http.Response, error) {
		calls++
		if calls < 3 {
			return nil, &StatusError{Service: "test", StatusCode: 502}
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Fatalf("calls=%d retries=%d", calls, retries)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), RetryPolicy{MaxRetries: 5, InitialBackoff: time.Millisecond}, func(ctx context.Context) (*http.Response, error) {
		calls++
		return nil, &StatusError{Service: "test", StatusCode: 401}
	})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 401 {
		t.Fatalf("want 401 StatusError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error retried: calls=%d", calls)
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, func(ctx context.Context) (*http.Response, error) {
		calls++
		return nil, &StatusError{Service: "test", StatusCode: 500}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 3 {
		t.Fatalf("want 3 attempts, got %d", calls)
	}
}
