package apierror

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrConflict         ErrorCode = "CONFLICT"
	ErrBadRequest       ErrorCode = "BAD_REQUEST"
	ErrInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	ErrNotEligible      ErrorCode = "NOT_ELIGIBLE"
	ErrUnavailable      ErrorCode = "UNAVAILABLE"
	ErrInternalServer   ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CapacityDetails carries the structured payload for CAPACITY_EXCEEDED
// errors so callers can render a meaningful message.
type CapacityDetails struct {
	Count     int64 `json:"count"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// EligibilityDetails carries the structured payload for NOT_ELIGIBLE
// errors raised while a contact or sending domain is still warming up.
type EligibilityDetails struct {
	DaysRemaining int    `json:"days_remaining"`
	Reason        string `json:"reason"`
}

func NewCapacityError(count, limit int64) APIError {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return APIError{
		Code:    ErrCapacityExceeded,
		Message: fmt.Sprintf("daily send limit reached (%d/%d)", count, limit),
		Details: CapacityDetails{Count: count, Limit: limit, Remaining: remaining},
	}
}

func NewNotEligibleError(reason string, daysRemaining int) APIError {
	return APIError{
		Code:    ErrNotEligible,
		Message: fmt.Sprintf("%s: %d day(s) remaining", reason, daysRemaining),
		Details: EligibilityDetails{DaysRemaining: daysRemaining, Reason: reason},
	}
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict:
			return http.StatusConflict
		case ErrInvalidInput, ErrBadRequest:
			return http.StatusBadRequest
		case ErrCapacityExceeded:
			return http.StatusTooManyRequests
		case ErrNotEligible:
			return http.StatusForbidden
		case ErrUnavailable:
			return http.StatusServiceUnavailable
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
