// Package api is the HTTP transport for the image-hosting REST API.
//
// # Overview
//
// Client is the transport-agnostic contract used by the services, the
// session-aware image cache and the CLI. HTTPClient implements it over
// net/http: JSON bodies, a multipart upload, bearer-token injection from a
// TokenSource and a fresh X-Request-ID on every call.
//
// # Error Handling
//
// Every non-2xx response and every transport failure is mapped once, in
// mapError, to an *Error whose Kind is one of ErrUnavailable,
// ErrUnauthorized, ErrRejected or ErrServerFault; callers match with
// errors.Is. Context cancellation is returned unchanged.
//
// A 401 additionally invokes the UnauthorizedHandler with the token that was
// sent. The session store uses it to drop the credential exactly once, no
// matter how many requests fail concurrently.
//
// No call applies its own timeout or retries.
package api
