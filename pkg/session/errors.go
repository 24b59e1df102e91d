package session

import "errors"

// ErrInvalidToken is returned when a token is missing, malformed, expired,
// or signed with the wrong secret. Verification fails closed: all of those
// cases look identical to the caller.
var ErrInvalidToken = errors.New("invalid or expired token")

// ErrReuseDetected is returned when a refresh token passes signature and
// expiry checks but no longer matches the persisted value, i.e. it was
// already rotated out. Callers should log this distinctly.
var ErrReuseDetected = errors.New("refresh token reused after rotation")

// ErrNoSubject is returned by Store implementations when no record exists
// for the given subject id.
var ErrNoSubject = errors.New("subject not found")
