package auth

import "errors"

// Admission errors. Handlers map these to HTTP statuses; everything else
// coming out of Admit is treated as a generic internal failure.
var (
	// ErrUnauthenticated covers missing, unknown and revoked credentials
	// alike, so callers cannot probe which keys exist.
	ErrUnauthenticated = errors.New("missing or invalid API key")

	// ErrQuotaExceeded means the key's monthly token budget is spent.
	ErrQuotaExceeded = errors.New("monthly token limit reached")

	// ErrRateLimited means the key exceeded its per-minute request limit.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrStoreUnavailable means the key store could not be reached during
	// admission. The request must fail rather than be admitted unverified.
	ErrStoreUnavailable = errors.New("key store unavailable")
)
