package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forumly/forumcore/internal/domain/faults"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: faults.ErrInvalidAmount, want: http.StatusBadRequest},
		{err: faults.ErrMissingFeedback, want: http.StatusBadRequest},
		{err: faults.ErrForbidden, want: http.StatusForbidden},
		{err: faults.ErrCommentNotFound, want: http.StatusNotFound},
		{err: faults.ErrAlreadyReported, want: http.StatusConflict},
		{err: fmt.Errorf("%w: boom", faults.ErrReconciliationPending), want: http.StatusAccepted},
		{err: faults.ErrTimeout, want: http.StatusGatewayTimeout},
		{err: faults.ErrGatewayUnavailable, want: http.StatusBadGateway},
		{err: faults.NewGatewayError(faults.ErrPaymentDeclined, "declined", nil), want: http.StatusPaymentRequired},
		{err: &faults.RateLimitError{RetryAfterSec: 3}, want: http.StatusTooManyRequests},
		{err: fmt.Errorf("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestWriteFaultKeepsGatewayMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteFault(rr, faults.NewGatewayError(faults.ErrPaymentDeclined, "Your card was declined.", nil))

	var payload APIError
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Message != "Your card was declined." {
		t.Fatalf("unexpected message: %q", payload.Message)
	}
	if payload.Code != faults.Code(faults.ErrPaymentDeclined) {
		t.Fatalf("unexpected code: %q", payload.Code)
	}
}

func TestWriteFaultRateLimit(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteFault(rr, &faults.RateLimitError{RetryAfterSec: 9})

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusTooManyRequests)
	}
	if got := rr.Header().Get("Retry-After"); got != "9" {
		t.Fatalf("unexpected Retry-After header: %q", got)
	}
	var payload RateLimitError
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.RetryAfterSec != 9 {
		t.Fatalf("unexpected retry after: %d", payload.RetryAfterSec)
	}
}
