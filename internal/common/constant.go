// Package common contains shared constants and helpers used across
// imgkeeper components.
package common

// AuthorizationHeaderName carries the bearer credential on outbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix is prepended to the token in the Authorization header.
const BearerPrefix = "Bearer "

// RequestIDHeaderName carries a per-call correlation id.
const RequestIDHeaderName = "X-Request-ID"

// Durable storage keys used by the session store.
const (
	StorageKeyToken        = "token"
	StorageKeyIsAdmin      = "is_admin"
	StorageKeyPendingEmail = "pending_email"
)
