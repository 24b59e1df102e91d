package session

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store with the same compare-and-swap behavior
// as the database adapter.
type memStore struct {
	mu     sync.Mutex
	tokens map[uint]string // subjects present in the map exist; "" means cleared
	fail   error           // when set, every call returns it
}

func newMemStore(subjectIDs ...uint) *memStore {
	m := &memStore{tokens: make(map[uint]string)}
	for _, id := range subjectIDs {
		m.tokens[id] = ""
	}
	return m
}

func (m *memStore) CurrentRefreshToken(subjectID uint) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	tok, ok := m.tokens[subjectID]
	if !ok {
		return "", ErrNoSubject
	}
	return tok, nil
}

func (m *memStore) SetCurrentRefreshToken(subjectID uint, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if _, ok := m.tokens[subjectID]; !ok {
		return ErrNoSubject
	}
	m.tokens[subjectID] = token
	return nil
}

func (m *memStore) ReplaceCurrentRefreshToken(subjectID uint, old, replacement string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, m.fail
	}
	if m.tokens[subjectID] != old {
		return false, nil
	}
	m.tokens[subjectID] = replacement
	return true, nil
}

func testConfig() Config {
	return Config{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	}
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := New(testConfig(), store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestNewRejectsBadConfig(t *testing.T) {
	store := newMemStore(1)
	cases := []Config{
		{RefreshSecret: []byte("r"), AccessTTL: time.Minute, RefreshTTL: time.Hour},
		{AccessSecret: []byte("a"), AccessTTL: time.Minute, RefreshTTL: time.Hour},
		{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), RefreshTTL: time.Hour},
		{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), AccessTTL: time.Minute},
	}
	for i, cfg := range cases {
		if _, err := New(cfg, store); err == nil {
			t.Errorf("case %d: expected error for config %+v", i, cfg)
		}
	}
	if _, err := New(testConfig(), nil); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestIssueThenVerify(t *testing.T) {
	store := newMemStore(42)
	svc := newTestService(t, store)

	pair, err := svc.Issue(42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("empty token in pair: %+v", pair)
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
	id, err := svc.Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id != 42 {
		t.Fatalf("Verify subject = %d, want 42", id)
	}
	if got, _ := store.CurrentRefreshToken(42); got != pair.RefreshToken {
		t.Fatal("issued refresh token was not persisted")
	}
}

func TestIssueOverwritesPreviousRefreshToken(t *testing.T) {
	store := newMemStore(1)
	svc := newTestService(t, store)

	first, err := svc.Issue(1)
	if err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	if _, err := svc.Issue(1); err != nil {
		t.Fatalf("second Issue: %v", err)
	}
	if _, err := svc.Rotate(first.RefreshToken); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("rotate with overwritten token: got %v, want ErrReuseDetected", err)
	}
}

func TestIssueStorageFailureReturnsNoTokens(t *testing.T) {
	store := newMemStore(1)
	store.fail = errors.New("connection refused")
	svc := newTestService(t, store)

	pair, err := svc.Issue(1)
	if err == nil {
		t.Fatal("expected error when persistence fails")
	}
	if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrReuseDetected) {
		t.Fatalf("storage failure must not look like a credential failure: %v", err)
	}
	if pair.AccessToken != "" || pair.RefreshToken != "" {
		t.Fatalf("tokens leaked despite persistence failure: %+v", pair)
	}
}

func TestVerifyRejectsMissingAndForeignTokens(t *testing.T) {
	store := newMemStore(1)
	svc := newTestService(t, store)
	pair, err := svc.Issue(1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := svc.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: got %v", err)
	}
	if _, err := svc.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: got %v", err)
	}
	// a refresh token is signed with the other secret and must not pass
	if _, err := svc.Verify(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access token: got %v", err)
	}

	// well-formed token signed with the wrong secret
	foreign, err := signToken(1, []byte("some-other-secret"), time.Minute)
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	if _, err := svc.Verify(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong-secret token accepted: got %v", err)
	}
}

func TestVerifyRejectsExpiredAccessToken(t *testing.T) {
	store := newMemStore(1)
	svc := newTestService(t, store)

	expired, err := signToken(1, testConfig().AccessSecret, -time.Minute)
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	if _, err := svc.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: got %v", err)
	}
}

func TestRotateIsSingleUse(t *testing.T) {
	store := newMemStore(7)
	svc := newTestService(t, store)

	first, err := svc.Issue(7)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, err := svc.Rotate(first.RefreshToken)
	if err != nil {
		t.Fatalf("first Rotate: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}
	if id, err := svc.Verify(second.AccessToken); err != nil || id != 7 {
		t.Fatalf("rotated access token: id=%d err=%v", id, err)
	}

	// the original token was rotated out and must now be flagged as reuse
	if _, err := svc.Rotate(first.RefreshToken); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("stale rotate: got %v, want ErrReuseDetected", err)
	}

	// the replacement chain keeps working
	third, err := svc.Rotate(second.RefreshToken)
	if err != nil {
		t.Fatalf("chained Rotate: %v", err)
	}
	if third.RefreshToken == second.RefreshToken {
		t.Fatal("chained rotation returned the same refresh token")
	}
}

func TestRotateRejectsBadTokens(t *testing.T) {
	store := newMemStore(1)
	svc := newTestService(t, store)
	pair, err := svc.Issue(1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := svc.Rotate(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: got %v", err)
	}
	// access tokens are signed with the access secret; the rotator must
	// refuse them
	if _, err := svc.Rotate(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token accepted for rotation: got %v", err)
	}

	expired, err := signToken(1, testConfig().RefreshSecret, -time.Minute)
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	if _, err := svc.Rotate(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired refresh token: got %v, want ErrInvalidToken", err)
	}
}

func TestRotateUnknownSubject(t *testing.T) {
	store := newMemStore() // no subjects at all
	svc := newTestService(t, store)

	// signature verifies but the account is gone
	tok, err := signToken(99, testConfig().RefreshSecret, time.Hour)
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	if _, err := svc.Rotate(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("deleted-subject rotate: got %v, want ErrInvalidToken", err)
	}
}

func TestRotateAfterRevoke(t *testing.T) {
	store := newMemStore(5)
	svc := newTestService(t, store)

	pair, err := svc.Issue(5)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Revoke(5); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	// nothing persisted to match: invalid, not reuse
	if _, err := svc.Rotate(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("post-revoke rotate: got %v, want ErrInvalidToken", err)
	}
}

func TestRotateStorageFailure(t *testing.T) {
	store := newMemStore(1)
	svc := newTestService(t, store)
	pair, err := svc.Issue(1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	store.fail = errors.New("connection refused")
	_, err = svc.Rotate(pair.RefreshToken)
	if err == nil {
		t.Fatal("expected error when load fails")
	}
	if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrReuseDetected) {
		t.Fatalf("storage failure must not look like a credential failure: %v", err)
	}
}

func TestConcurrentRotateExactlyOneSuccess(t *testing.T) {
	store := newMemStore(3)
	svc := newTestService(t, store)

	pair, err := svc.Issue(3)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Rotate(pair.RefreshToken)
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for i, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrReuseDetected) || errors.Is(err, ErrInvalidToken):
			// lost the race
		default:
			t.Fatalf("worker %d: unexpected error %v", i, err)
		}
	}
	if successes != 1 {
		t.Fatalf("concurrent rotations: %d successes, want exactly 1", successes)
	}
}
