// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across platform, repository and store layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary sign-in lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (email taken, entry already featured,
	// object already stored under that path).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates input rejected before any remote call.
	ErrValidation = errors.New("validation")
)

// Storage listing errors that represent expected states rather than faults.
var (
	// ErrBucketNotFound indicates the bucket has not been provisioned.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrPermissionDenied indicates the access policy rejected the operation.
	ErrPermissionDenied = errors.New("permission denied by security policy")

	// ErrInvalidToken indicates a missing, expired or revoked session token.
	ErrInvalidToken = errors.New("invalid token")
)

// ErrVoteInFlight is returned when a vote toggle is requested while another one is pending.
var ErrVoteInFlight = errors.New("vote already in progress")

// IsExpectedAbsence reports whether err is one of the storage errors that
// callers downgrade to an empty result.
func IsExpectedAbsence(err error) bool {
	return errors.Is(err, ErrBucketNotFound) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrInvalidToken)
}
