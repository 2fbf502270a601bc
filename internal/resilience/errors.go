package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Class buckets a failure for the backoff policy. Fetch-side errors carry a
// class via the typed errors below; anything unclassified is treated as
// transient so it gets the bounded retry path rather than an instant abort.
type Class int

const (
	// ClassTransient covers timeouts, resets, and 5xx responses that are
	// expected to succeed on retry against the same session.
	ClassTransient Class = iota
	// ClassBlocked covers anti-bot rejections; retrying is only useful after
	// the session is rebuilt from scratch.
	ClassBlocked
	// ClassNotFound covers permanently missing resources. Never retried.
	ClassNotFound
	// ClassIntegrity covers records violating a relational expectation,
	// such as a snapshot without its parent announcement.
	ClassIntegrity
	// ClassPersistence covers database write failures after rollback.
	ClassPersistence
)

// String returns a log-friendly name for the class.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassBlocked:
		return "blocked"
	case ClassNotFound:
		return "not_found"
	case ClassIntegrity:
		return "integrity"
	case ClassPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// TransientError wraps an error that is safe to retry (e.g., 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// BlockedError marks an anti-bot rejection: HTTP 403/429/503 or a challenge
// payload where structured data was expected.
type BlockedError struct {
	Err        error
	StatusCode int
}

func (e *BlockedError) Error() string {
	return e.Err.Error()
}

func (e *BlockedError) Unwrap() error {
	return e.Err
}

// NewBlockedError wraps an error as an upstream block.
func NewBlockedError(err error, statusCode int) *BlockedError {
	return &BlockedError{Err: err, StatusCode: statusCode}
}

// NotFoundError marks a permanently missing upstream resource.
type NotFoundError struct {
	Err error
	URL string
}

func (e *NotFoundError) Error() string {
	return e.Err.Error()
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// NewNotFoundError wraps an error as a permanent not-found.
func NewNotFoundError(err error, url string) *NotFoundError {
	return &NotFoundError{Err: err, URL: url}
}

// IntegrityError marks a record that fails a relational expectation.
type IntegrityError struct {
	Err error
}

func (e *IntegrityError) Error() string {
	return e.Err.Error()
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// NewIntegrityError wraps an error as a relational integrity failure.
func NewIntegrityError(err error) *IntegrityError {
	return &IntegrityError{Err: err}
}

// PersistenceError marks a database write failure; the enclosing batch has
// already been rolled back when this surfaces.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps an error as a failed database write.
func NewPersistenceError(err error) *PersistenceError {
	return &PersistenceError{Err: err}
}

// Classify maps an error chain onto a failure class. Typed errors win over
// heuristics; unclassified errors default to transient.
func Classify(err error) Class {
	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return ClassNotFound
	}
	var be *BlockedError
	if errors.As(err, &be) {
		return ClassBlocked
	}
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return ClassIntegrity
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return ClassPersistence
	}
	return ClassTransient
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check for explicit TransientError in chain.
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// Check for network-level transient errors.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection reset / refused / DNS.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsBlockedHTTPStatus returns true if the HTTP status code is one the
// exchanges serve when rejecting automated traffic.
func IsBlockedHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 403, 429, 503:
		return true
	default:
		return false
	}
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		500, // Internal Server Error
		502, // Bad Gateway
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
