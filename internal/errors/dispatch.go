package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks against dispatch failures.
var (
	ErrOfflineNoCache  = stderrors.New("offline and no cached data is available")
	ErrNetwork         = stderrors.New("network request failed")
	ErrCacheCorruption = stderrors.New("cache entry is corrupted")
	ErrUnknownEndpoint = stderrors.New("unknown endpoint")
)

// OfflineNoCacheError is returned when the client is offline and the cache
// has no usable entry for the request.
type OfflineNoCacheError struct {
	Endpoint string
	Key      string
}

// NewOfflineNoCacheError builds an OfflineNoCacheError.
func NewOfflineNoCacheError(endpoint, key string) *OfflineNoCacheError {
	return &OfflineNoCacheError{Endpoint: endpoint, Key: key}
}

func (e *OfflineNoCacheError) Error() string {
	return fmt.Sprintf("%s: you are offline and no cached data is available", e.Endpoint)
}

func (e *OfflineNoCacheError) Is(target error) bool { return target == ErrOfflineNoCache }

// NetworkError reports a failed transport attempt. StatusCode is zero when
// no response was received.
type NetworkError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

// NewNetworkError builds a NetworkError.
func NewNetworkError(endpoint string, statusCode int, message string, err error) *NetworkError {
	return &NetworkError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Message:    strings.TrimSpace(message),
		Err:        err,
	}
}

func (e *NetworkError) Error() string {
	var b strings.Builder
	b.WriteString(e.Endpoint)
	b.WriteString(": api error")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable reports whether a caller-side retry could plausibly succeed.
func (e *NetworkError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// CacheCorruptionError reports a stored cache entry that could not be decoded.
type CacheCorruptionError struct {
	Key string
	Err error
}

// NewCacheCorruptionError builds a CacheCorruptionError.
func NewCacheCorruptionError(key string, err error) *CacheCorruptionError {
	return &CacheCorruptionError{Key: key, Err: err}
}

func (e *CacheCorruptionError) Error() string {
	return fmt.Sprintf("cache entry %q is corrupted: %v", e.Key, e.Err)
}

func (e *CacheCorruptionError) Is(target error) bool { return target == ErrCacheCorruption }

func (e *CacheCorruptionError) Unwrap() error { return e.Err }

// UnknownEndpointError is returned for requests built for an unsupported
// operation.
type UnknownEndpointError struct {
	Endpoint string
}

// NewUnknownEndpointError builds an UnknownEndpointError.
func NewUnknownEndpointError(endpoint string) *UnknownEndpointError {
	return &UnknownEndpointError{Endpoint: endpoint}
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("unknown endpoint %q", e.Endpoint)
}

func (e *UnknownEndpointError) Is(target error) bool { return target == ErrUnknownEndpoint }
