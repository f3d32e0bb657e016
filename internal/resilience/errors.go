package resilience

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// TransientError marks an error as safe to retry.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. StatusCode is 0 when not from HTTP.
func Transient(err error, statusCode int) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err, StatusCode: statusCode}
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"i/o timeout",
	"tls handshake timeout",
	"temporary failure in name resolution",
	"server closed idle connection",
	// sqlite write contention
	"database is locked",
	"sqlite_busy",
}

// IsTransient reports whether err is worth retrying: an explicit
// TransientError, a network timeout, a dropped connection, or a busy database.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
func IsTransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
