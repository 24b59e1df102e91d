package session

// Store reads and writes the single current refresh token persisted on a
// subject record. Implementations must touch only that field.
type Store interface {
	// CurrentRefreshToken returns the persisted refresh token for the
	// subject, or "" when none is stored (logged out / revoked). Returns
	// ErrNoSubject when the subject record does not exist.
	CurrentRefreshToken(subjectID uint) (string, error)

	// SetCurrentRefreshToken overwrites the persisted refresh token.
	// An empty token clears it (persisted as null).
	SetCurrentRefreshToken(subjectID uint, token string) error

	// ReplaceCurrentRefreshToken swaps the persisted token from old to
	// replacement only if the stored value still equals old. Returns
	// swapped=false (and no error) when the value changed underneath,
	// which is how a lost rotation race is detected.
	ReplaceCurrentRefreshToken(subjectID uint, old, replacement string) (swapped bool, err error)
}
