package controller

import "errors"

// Sentinel errors carried in Result.Err.
var (
	// ErrPortClosed indicates the TCP pre-check failed.
	ErrPortClosed = errors.New("controller: proxy port not accessible")

	// ErrTimeout indicates the HTTP call exceeded its deadline.
	ErrTimeout = errors.New("controller: request timed out")

	// ErrUnexpectedStatus indicates a non-success HTTP status code.
	ErrUnexpectedStatus = errors.New("controller: unexpected status code")

	// ErrNotFound indicates the proxy answered 404 to a start request.
	ErrNotFound = errors.New("controller: proxy service not found")
)
