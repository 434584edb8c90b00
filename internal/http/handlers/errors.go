// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes provide
// clients with a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly
//     noted.
//   - Generic codes (bad_request, not_found, conflict...) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (cross_tenant, thread_closed...) are reserved for
//     business rules that a status code alone cannot convey.
//   - All error responses must include both an HTTP status and one of these
//     codes.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeCrossTenant  = "cross_tenant"
	ErrCodeThreadClosed = "thread_closed"
	ErrCodeNoMedia      = "no_media"
	ErrCodeSendFailed   = "send_failed"
	ErrCodeListFailed   = "list_failed"
	ErrCodeBadSignature = "bad_signature"
	ErrCodeExpiredURL   = "expired_url"
)
