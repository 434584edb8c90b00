// Package services implements the messaging pipeline: contact/thread
// resolution, the message status lifecycle, media relay, tenant isolation,
// and the webhook dispatcher. This file centralizes common service-level
// error values so they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into HTTP status codes is done at the handler layer.
package services

import "errors"

var (
	// ErrAccountNotFound indicates no gateway account is configured for the
	// instance name a webhook arrived on.
	ErrAccountNotFound = errors.New("account not found")

	// ErrThreadNotFound indicates the requested thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrMessageNotFound indicates the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrThreadClosed is returned when an outbound send targets a closed
	// thread.
	ErrThreadClosed = errors.New("thread is closed")

	// ErrEmptyBody is returned when an outbound send carries no text.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrCrossTenant is the fail-closed rejection for any reference to a
	// record owned by another tenant. It is surfaced as access-denied and
	// logged as a security event; another tenant's data is never returned.
	ErrCrossTenant = errors.New("cross-tenant access denied")

	// ErrNoMedia indicates a message has no stored media to re-sign.
	ErrNoMedia = errors.New("message has no stored media")

	// ErrInvalidPhone indicates a chat identity that yields no usable
	// phone number after normalization.
	ErrInvalidPhone = errors.New("invalid phone identity")
)
