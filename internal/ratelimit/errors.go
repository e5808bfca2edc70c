package ratelimit

import (
	"errors"
	"net"
	"net/http"

	"github.com/google/go-github/v57/github"
)

// IsQuotaExceeded reports whether err is GitHub telling us to slow down:
// a primary or secondary rate limit, a 429, or a 403 that carries rate
// limit headers.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}

	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var arle *github.AbuseRateLimitError
	if errors.As(err, &arle) {
		return true
	}

	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		switch er.Response.StatusCode {
		case http.StatusTooManyRequests:
			return true
		case http.StatusForbidden:
			// Forbidden can be a rate limit. Rate headers present means we
			// got rate info back.
			return er.Response.Header.Get("X-Ratelimit-Remaining") == "0"
		}
	}

	return false
}

// IsRetryable reports whether err is worth retrying at all: quota errors,
// server errors, and network-level failures. Domain errors (bad request,
// unauthorized, not found, validation) are permanent and never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsQuotaExceeded(err) {
		return true
	}

	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		statusCode := er.Response.StatusCode
		switch statusCode {
		case http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		case http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity:
			return false
		default:
			return statusCode >= 500 && statusCode < 600
		}
	}

	// Timeouts, connection resets and the like surface as net errors
	// (url.Error implements net.Error) and are transient.
	var netErr net.Error
	return errors.As(err, &netErr)
}
