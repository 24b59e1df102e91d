// Package session implements the token lifecycle for cookie-based
// authentication: issuing paired access/refresh JWTs, statelessly
// verifying access tokens, and rotating refresh tokens on use so each one
// is valid exactly once.
package session

import (
	"errors"
	"fmt"
	"time"
)

// Config carries the two independent signing configurations. Secrets are
// injected here at construction; the package never reads the environment.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Pair is one issued access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Service issues, verifies, rotates and revokes token pairs against a
// Store holding the single live refresh token per subject.
type Service struct {
	cfg   Config
	store Store
}

// New validates the configuration and returns a ready Service.
func New(cfg Config, store Store) (*Service, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("session: both signing secrets are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("session: token TTLs must be positive")
	}
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	return &Service{cfg: cfg, store: store}, nil
}

// Issue mints a fresh pair for the subject and persists the refresh half,
// overwriting any previously stored refresh token. If persistence fails no
// tokens are returned.
func (s *Service) Issue(subjectID uint) (Pair, error) {
	pair, err := s.mint(subjectID)
	if err != nil {
		return Pair{}, err
	}
	if err := s.store.SetCurrentRefreshToken(subjectID, pair.RefreshToken); err != nil {
		return Pair{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return pair, nil
}

// Verify checks an access token and returns the subject id it was issued
// for. Purely cryptographic: the store is never consulted.
func (s *Service) Verify(accessToken string) (uint, error) {
	if accessToken == "" {
		return 0, ErrInvalidToken
	}
	return verifyToken(accessToken, s.cfg.AccessSecret)
}

// Rotate exchanges a refresh token for a brand-new pair. The supplied
// token must verify against the refresh secret AND match the persisted
// value exactly; the replacement is written with a conditional swap so two
// concurrent calls with the same token cannot both succeed. A mismatch
// against a still-valid signature is reported as ErrReuseDetected.
func (s *Service) Rotate(refreshToken string) (Pair, error) {
	if refreshToken == "" {
		return Pair{}, ErrInvalidToken
	}
	subjectID, err := verifyToken(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return Pair{}, ErrInvalidToken
	}

	current, err := s.store.CurrentRefreshToken(subjectID)
	if err != nil {
		if errors.Is(err, ErrNoSubject) {
			return Pair{}, ErrInvalidToken
		}
		return Pair{}, fmt.Errorf("load refresh token: %w", err)
	}
	if current == "" {
		// revoked or never issued: nothing to match against
		return Pair{}, ErrInvalidToken
	}
	if current != refreshToken {
		return Pair{}, fmt.Errorf("subject %d: %w", subjectID, ErrReuseDetected)
	}

	pair, err := s.mint(subjectID)
	if err != nil {
		return Pair{}, err
	}
	swapped, err := s.store.ReplaceCurrentRefreshToken(subjectID, refreshToken, pair.RefreshToken)
	if err != nil {
		return Pair{}, fmt.Errorf("persist rotated token: %w", err)
	}
	if !swapped {
		// a concurrent rotation won the race between load and swap
		return Pair{}, fmt.Errorf("subject %d: %w", subjectID, ErrReuseDetected)
	}
	return pair, nil
}

// Revoke clears the persisted refresh token for the subject (logout). Any
// previously issued refresh token stops rotating; outstanding access
// tokens simply run out their TTL.
func (s *Service) Revoke(subjectID uint) error {
	if err := s.store.SetCurrentRefreshToken(subjectID, ""); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

func (s *Service) mint(subjectID uint) (Pair, error) {
	access, err := signToken(subjectID, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := signToken(subjectID, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}
