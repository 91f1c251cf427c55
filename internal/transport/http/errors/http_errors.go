package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/forumly/forumcore/internal/domain/faults"
)

type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type RateLimitError struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	RetryAfterSec int64  `json:"retry_after_sec"`
}

func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteFault maps a faults error to its HTTP status and a {code, message} body.
func WriteFault(w http.ResponseWriter, err error) {
	var rateErr *faults.RateLimitError
	if stderrors.As(err, &rateErr) {
		w.Header().Set("Retry-After", strconv.FormatInt(rateErr.RetryAfterSec, 10))
		Write(w, http.StatusTooManyRequests, RateLimitError{
			Code:          faults.Code(err),
			Message:       "too many requests",
			RetryAfterSec: rateErr.RetryAfterSec,
		})
		return
	}

	status := Status(err)
	message := faults.UserMessage(err)
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	Write(w, status, APIError{Code: faults.Code(err), Message: message})
}

func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, faults.ErrReconciliation):
		return http.StatusAccepted
	case stderrors.Is(err, faults.ErrRateLimited):
		return http.StatusTooManyRequests
	case stderrors.Is(err, faults.ErrValidation):
		return http.StatusBadRequest
	case stderrors.Is(err, faults.ErrAuthorization):
		return http.StatusForbidden
	case stderrors.Is(err, faults.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, faults.ErrConflict):
		return http.StatusConflict
	case stderrors.Is(err, faults.ErrTimeout):
		return http.StatusGatewayTimeout
	case stderrors.Is(err, faults.ErrGatewayUnavailable):
		return http.StatusBadGateway
	case stderrors.Is(err, faults.ErrGateway):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
