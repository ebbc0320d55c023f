// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies geocoding failures.
type ErrorType int

const (
	// ErrorTypeUnknown is any failure not covered below.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit means the provider asked us to slow down.
	ErrorTypeRateLimit
	// ErrorTypeQuotaExceeded means the quota is exhausted or the key was denied.
	ErrorTypeQuotaExceeded
	// ErrorTypeTimeout means the call or the rate limiter wait timed out.
	ErrorTypeTimeout
	// ErrorTypeNotFound means the address could not be resolved.
	ErrorTypeNotFound
	// ErrorTypeInvalidRequest means the provider rejected the request.
	ErrorTypeInvalidRequest
	// ErrorTypeNetworkError means the provider could not be reached.
	ErrorTypeNetworkError
)

var errorTypeNames = map[ErrorType]string{
	ErrorTypeRateLimit:      "rate_limit",
	ErrorTypeQuotaExceeded:  "quota_exceeded",
	ErrorTypeTimeout:        "timeout",
	ErrorTypeNotFound:       "not_found",
	ErrorTypeInvalidRequest: "invalid_request",
	ErrorTypeNetworkError:   "network_error",
}

func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}

	return "unknown"
}

// GeocodingError is the failure reported by every Provider.
type GeocodingError struct {
	Type ErrorType
	// Status is the provider status code (e.g. ZERO_RESULTS), if any.
	Status  string
	Message string
	Err     error
}

func (e *GeocodingError) Error() string {
	if e.Err == nil {
		return e.Message
	}

	return e.Message + ": " + e.Err.Error()
}

func (e *GeocodingError) Unwrap() error { return e.Err }

func asGeocodingError(err error) (*GeocodingError, bool) {
	var ge *GeocodingError
	ok := errors.As(err, &ge)

	return ge, ok
}

// mentions reports whether the lowercased message of err contains any of the
// fragments. Used for errors that did not come from a Provider.
func mentions(err error, fragments ...string) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}

	return false
}

// StatusOf returns the provider status code carried by err, or the error type
// name when the provider gave none.
func StatusOf(err error) string {
	ge, ok := asGeocodingError(err)
	switch {
	case !ok:
		return ErrorTypeUnknown.String()
	case ge.Status != "":
		return ge.Status
	default:
		return ge.Type.String()
	}
}

// IsNotFoundError reports whether the address could not be resolved.
func IsNotFoundError(err error) bool {
	ge, ok := asGeocodingError(err)

	return ok && ge.Type == ErrorTypeNotFound
}

// IsRateLimitError reports whether err is due to a rate limit.
func IsRateLimitError(err error) bool {
	if ge, ok := asGeocodingError(err); ok {
		return ge.Type == ErrorTypeRateLimit
	}

	return mentions(err, "rate limit", "too many requests", "429")
}

// IsQuotaExceededError reports whether err is due to an exhausted quota.
func IsQuotaExceededError(err error) bool {
	if ge, ok := asGeocodingError(err); ok {
		return ge.Type == ErrorTypeQuotaExceeded
	}

	return mentions(err, "over_query_limit", "quota exceeded")
}

// IsTimeoutError reports whether err is a timeout.
func IsTimeoutError(err error) bool {
	if ge, ok := asGeocodingError(err); ok && ge.Type == ErrorTypeTimeout {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) || mentions(err, "timeout", "deadline exceeded")
}

// ClassifyHTTPError maps an unexpected HTTP status to a GeocodingError. A
// non empty body is kept, abbreviated, in the message.
func ClassifyHTTPError(statusCode int, body string) *GeocodingError {
	ge := &GeocodingError{Type: ErrorTypeUnknown, Message: fmt.Sprintf("HTTP error %d", statusCode)}

	switch statusCode {
	case http.StatusTooManyRequests:
		ge.Type, ge.Message = ErrorTypeRateLimit, "rate limit reached"
	case http.StatusForbidden:
		ge.Type, ge.Message = ErrorTypeQuotaExceeded, "quota exceeded or access denied"
	case http.StatusBadRequest:
		ge.Type, ge.Message = ErrorTypeInvalidRequest, "invalid request"
	case http.StatusNotFound:
		ge.Type, ge.Message = ErrorTypeNotFound, "location not found"
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		ge.Type, ge.Message = ErrorTypeNetworkError, fmt.Sprintf("service unavailable (status %d)", statusCode)
	}

	if body = strings.TrimSpace(body); body != "" {
		const maxBody = 200
		if len(body) > maxBody {
			body = body[:maxBody] + "…"
		}

		ge.Message += ": " + body
	}

	return ge
}

// classifyTransportError wraps an error returned by http.Client.Do.
func classifyTransportError(err error) *GeocodingError {
	if IsTimeoutError(err) {
		return &GeocodingError{Type: ErrorTypeTimeout, Message: "geocoding request timed out", Err: err}
	}

	return &GeocodingError{Type: ErrorTypeNetworkError, Message: "geocoding request failed", Err: err}
}
