package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"syscall"

	"github.com/systmms/secretxfer/internal/credential"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

// Class is the retry classification of a failure.
type Class int

const (
	// ClassFatal failures are never retried. Unknown errors are fatal.
	ClassFatal Class = iota

	// ClassTransient failures are eligible for retry.
	ClassTransient

	// ClassNotFound means the secret does not exist. Never retried.
	ClassNotFound
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassNotFound:
		return "not_found"
	default:
		return "fatal"
	}
}

// DefaultTransientStatuses are the HTTP-equivalent statuses treated as transient.
var DefaultTransientStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Classifier maps store and credential failures to a Class.
type Classifier struct {
	transient         map[int]struct{}
	retryAuthFailures bool
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithTransientStatuses replaces the set of statuses treated as transient.
func WithTransientStatuses(codes ...int) ClassifierOption {
	return func(c *Classifier) {
		c.transient = make(map[int]struct{}, len(codes))
		for _, code := range codes {
			c.transient[code] = struct{}{}
		}
	}
}

// WithRetryAuthFailures controls whether authentication failures with a
// transient status are retried. Enabled by default.
func WithRetryAuthFailures(enabled bool) ClassifierOption {
	return func(c *Classifier) {
		c.retryAuthFailures = enabled
	}
}

// NewClassifier creates a classifier with the default transient statuses.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{retryAuthFailures: true}
	WithTransientStatuses(DefaultTransientStatuses...)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify determines how err should be handled. err must be non-nil.
func (c *Classifier) Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}

	var authErr *credential.AuthenticationError
	if errors.As(err, &authErr) {
		if c.retryAuthFailures && c.isTransientStatus(authErr.StatusCode) {
			return ClassTransient
		}
		return ClassFatal
	}

	if secretstore.IsNotFound(err) {
		return ClassNotFound
	}

	if status := secretstore.StatusFrom(err); status != 0 {
		switch {
		case status == http.StatusNotFound:
			return ClassNotFound
		case c.isTransientStatus(status):
			return ClassTransient
		default:
			return ClassFatal
		}
	}

	if errors.Is(err, context.Canceled) {
		return ClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// http.Client timeouts also match DeadlineExceeded but arrive as *url.Error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return ClassTransient
		}
		return ClassFatal
	}

	if isNetworkError(err) {
		return ClassTransient
	}

	return ClassFatal
}

func (c *Classifier) isTransientStatus(status int) bool {
	_, ok := c.transient[status]
	return ok
}

// isNetworkError checks for failures that never reached the store.
func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.ENETUNREACH,
		syscall.EHOSTUNREACH,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
