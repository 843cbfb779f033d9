package exporter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rgonek/confluence-space-export/internal/confluence"
)

func TestClassifyFetchByStatus(t *testing.T) {
	cases := []struct {
		status    int
		message   string
		wantClass string
		wantKind  string
		retryable bool
	}{
		{401, "unauthorized", FetchPermissionDenied, KindAuthentication, false},
		{403, "forbidden", FetchPermissionDenied, KindAuthorization, false},
		{403, "space is restricted", FetchRestrictedSpace, KindAuthorization, false},
		{404, "no such content", FetchNotFound, KindNotFound, false},
		{404, "content has been archived", FetchArchived, KindNotFound, false},
		{410, "gone", FetchDeleted, KindNotFound, false},
		{429, "slow down", FetchTransient, KindRateLimit, true},
		{500, "server error", FetchTransient, KindNetwork, true},
		{503, "unavailable", FetchTransient, KindNetwork, true},
		{400, "bad request", FetchAPIError, KindUnknown, true},
	}
	for _, tc := range cases {
		err := &confluence.APIError{StatusCode: tc.status, Message: tc.message}
		class, pe := classifyFetch("100", err)
		if class != tc.wantClass {
			t.Errorf("status %d %q: class = %s, want %s", tc.status, tc.message, class, tc.wantClass)
		}
		if pe.Kind != tc.wantKind {
			t.Errorf("status %d %q: kind = %s, want %s", tc.status, tc.message, pe.Kind, tc.wantKind)
		}
		if pe.Retryable != tc.retryable {
			t.Errorf("status %d %q: retryable = %v, want %v", tc.status, tc.message, pe.Retryable, tc.retryable)
		}
		if pe.PageID != "100" {
			t.Errorf("page ID = %q", pe.PageID)
		}
	}
}

func TestClassifyFetchRateLimitCarriesRetryAfter(t *testing.T) {
	err := &confluence.APIError{StatusCode: 429, RetryAfter: 9 * time.Second}
	_, pe := classifyFetch("100", err)
	if pe.RetryIn != 9*time.Second {
		t.Fatalf("retry in = %s", pe.RetryIn)
	}
}

func TestClassifyFetchTimeout(t *testing.T) {
	class, pe := classifyFetch("100", context.DeadlineExceeded)
	if class != FetchTransient || pe.Kind != KindTimeout || !pe.Retryable {
		t.Fatalf("class = %s, kind = %s, retryable = %v", class, pe.Kind, pe.Retryable)
	}
}

func TestClassifyFetchUnknown(t *testing.T) {
	class, pe := classifyFetch("100", errors.New("something odd"))
	if class != FetchAPIError || pe.Kind != KindUnknown || !pe.Retryable {
		t.Fatalf("class = %s, kind = %s, retryable = %v", class, pe.Kind, pe.Retryable)
	}
}

func TestFetchPageWithRetryRetriesAPIError(t *testing.T) {
	api := newFakeAPI()
	api.errs["100"] = &confluence.APIError{StatusCode: 400, Message: "bad request"}
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	_, class, perr := fetchPageWithRetry(context.Background(), api, "100", cfg)
	if class != FetchAPIError || perr == nil {
		t.Fatalf("class = %s, err = %v", class, perr)
	}
	if got := len(api.fetchedIDs()); got != 3 {
		t.Fatalf("fetch attempts = %d, want initial call plus 2 retries", got)
	}
}

func TestBackoffDelayPrefersRetryAfter(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second}

	if got := cfg.backoffDelay(0, 2*time.Second); got != 2*time.Second {
		t.Fatalf("delay = %s, want the server's Retry-After", got)
	}
	// Retry-After is clamped to MaxDelay.
	if got := cfg.backoffDelay(0, time.Minute); got != 5*time.Second {
		t.Fatalf("delay = %s, want clamp at MaxDelay", got)
	}
}

func TestBackoffDelayGrowsAndClamps(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	first := cfg.backoffDelay(0, 0)
	if first < 100*time.Millisecond || first > time.Second {
		t.Fatalf("first delay = %s", first)
	}
	if got := cfg.backoffDelay(9, 0); got != time.Second {
		t.Fatalf("late delay = %s, want MaxDelay", got)
	}
}

func TestThresholdsExceeded(t *testing.T) {
	th := Thresholds{
		MaxPageFailures:                0,
		MaxAttachmentFailures:          2,
		MaxAttachmentFailurePercentage: 50,
		AllowRestrictedPages:           true,
	}

	if th.Exceeded(0, 5, 0, 0) {
		t.Fatal("restricted pages counted despite AllowRestrictedPages")
	}
	if !th.Exceeded(1, 0, 0, 0) {
		t.Fatal("page failure over the limit not flagged")
	}
	if !th.Exceeded(0, 0, 3, 10) {
		t.Fatal("attachment failure count over the limit not flagged")
	}
	if !th.Exceeded(0, 0, 2, 3) {
		t.Fatal("attachment failure percentage over the limit not flagged")
	}
	if th.Exceeded(0, 0, 1, 10) {
		t.Fatal("run within all thresholds flagged")
	}

	strict := th
	strict.AllowRestrictedPages = false
	if !strict.Exceeded(0, 1, 0, 0) {
		t.Fatal("restricted page not counted with AllowRestrictedPages=false")
	}
}
