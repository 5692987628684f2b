// Package storeerr classifies backend failures so callers can tell a
// retryable outage from a misconfigured backend.
package storeerr

import (
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"net/url"
)

var (
	ErrTransient     = errors.New("transient store failure")
	ErrConfiguration = errors.New("store configuration error")
	ErrDuplicate     = errors.New("duplicate key")
)

type classified struct {
	class error
	err   error
}

func (e *classified) Error() string { return e.err.Error() }

func (e *classified) Unwrap() []error { return []error{e.class, e.err} }

// Transient marks err as worth retrying.
func Transient(err error) error { return mark(ErrTransient, err) }

// Configuration marks err as a permanent backend misconfiguration.
func Configuration(err error) error { return mark(ErrConfiguration, err) }

// Duplicate marks err as a unique-key violation.
func Duplicate(err error) error { return mark(ErrDuplicate, err) }

func mark(class, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, class) {
		return err
	}
	return &classified{class: class, err: err}
}

// IsTransient reports whether err is marked transient or is a network-level
// failure (connection refused/reset, timeouts, truncated responses).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrDuplicate) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }

func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }
