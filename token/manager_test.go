package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/veloxts/veloxauth/revocation"
)

const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T, store revocation.Store, loader UserLoader) *Manager {
	t.Helper()

	m, err := NewManager(Config{Secret: testSecret}, store, loader)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewManager(Config{Secret: "too-short"}, nil, nil); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
}

func TestNewManagerClampsAccessTTL(t *testing.T) {
	m, err := NewManager(Config{Secret: testSecret, AccessTTL: time.Second}, nil, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if m.AccessTTL() != time.Minute {
		t.Fatalf("expected access TTL clamped to 1m, got %v", m.AccessTTL())
	}
}

func TestCreatePairRoundTrip(t *testing.T) {
	m := newTestManager(t, nil, nil)
	user := User{ID: "u1", Email: "u1@example.com"}

	pair, err := m.CreatePair(user, map[string]any{"plan": "pro"})
	if err != nil {
		t.Fatalf("CreatePair failed: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Fatalf("expected Bearer, got %q", pair.TokenType)
	}
	if pair.ExpiresIn != int64(m.AccessTTL().Seconds()) {
		t.Fatalf("expected ExpiresIn %d, got %d", int64(m.AccessTTL().Seconds()), pair.ExpiresIn)
	}

	access := m.Decode(pair.AccessToken)
	if access == nil {
		t.Fatal("Decode returned nil for valid access token")
	}
	if access.Subject != "u1" || access.TokenType != TypeAccess {
		t.Fatalf("unexpected access claims: %+v", access)
	}
	if access.Email != "u1@example.com" {
		t.Fatalf("unexpected email claim: %q", access.Email)
	}
	if access.Extra["plan"] != "pro" {
		t.Fatalf("extra claim not carried: %+v", access.Extra)
	}

	refresh := m.Decode(pair.RefreshToken)
	if refresh == nil || refresh.TokenType != TypeRefresh {
		t.Fatalf("unexpected refresh claims: %+v", refresh)
	}
	if access.ID == "" || refresh.ID == "" || access.ID == refresh.ID {
		t.Fatalf("expected distinct non-empty jti values, got %q and %q", access.ID, refresh.ID)
	}
	if !access.ExpiresAt.After(access.IssuedAt) {
		t.Fatalf("expected exp > iat, got iat=%v exp=%v", access.IssuedAt, access.ExpiresAt)
	}
}

func TestUniqueJTIAcrossPairs(t *testing.T) {
	m := newTestManager(t, nil, nil)
	user := User{ID: "u1"}

	seen := make(map[string]bool)
	for i := 0; i < 16; i++ {
		pair, err := m.CreatePair(user, nil)
		if err != nil {
			t.Fatalf("CreatePair failed: %v", err)
		}
		for _, tok := range []string{pair.AccessToken, pair.RefreshToken} {
			jti := m.Decode(tok).ID
			if seen[jti] {
				t.Fatalf("duplicate jti %q", jti)
			}
			seen[jti] = true
		}
	}
}

func TestVerifyTypeConfusionRejected(t *testing.T) {
	m := newTestManager(t, nil, nil)
	pair, err := m.CreatePair(User{ID: "u1"}, nil)
	if err != nil {
		t.Fatalf("CreatePair failed: %v", err)
	}

	if _, err := m.Verify(pair.RefreshToken, TypeAccess); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("refresh-as-access: expected ErrWrongTokenType, got %v", err)
	}
	if _, err := m.Verify(pair.AccessToken, TypeRefresh); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("access-as-refresh: expected ErrWrongTokenType, got %v", err)
	}
	if _, err := m.Verify(pair.AccessToken, TypeAccess); err != nil {
		t.Fatalf("valid access token rejected: %v", err)
	}
}

func TestVerifyWrongTypeMessageNamesExpectedType(t *testing.T) {
	m := newTestManager(t, nil, nil)
	pair, _ := m.CreatePair(User{ID: "u1"}, nil)

	_, err := m.Verify(pair.AccessToken, TypeRefresh)
	if err == nil || !strings.Contains(err.Error(), "refresh") {
		t.Fatalf("expected error naming refresh type, got %v", err)
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	m := newTestManager(t, nil, nil)
	pair, _ := m.CreatePair(User{ID: "u1"}, nil)

	tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "xx"
	if _, err := m.Verify(tampered, TypeAccess); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	if _, err := m.Verify("not-a-token", TypeAccess); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("malformed token: expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	m := newTestManager(t, nil, nil)
	pair, _ := m.CreatePair(User{ID: "u1"}, nil)

	m.now = func() time.Time { return time.Now().Add(2 * m.AccessTTL()) }
	if _, err := m.Verify(pair.AccessToken, TypeAccess); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestGetSessionFailClosed(t *testing.T) {
	store := revocation.NewMemoryStore()
	m := newTestManager(t, store, nil)
	pair, _ := m.CreatePair(User{ID: "u1", Email: "u1@example.com"}, nil)
	ctx := context.Background()

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", "bogus"} {
		if s := m.GetSession(ctx, header); s != nil {
			t.Fatalf("header %q: expected no session", header)
		}
	}

	if s := m.GetSession(ctx, "Bearer "+pair.RefreshToken); s != nil {
		t.Fatal("refresh token resolved as a session")
	}

	s := m.GetSession(ctx, "Bearer "+pair.AccessToken)
	if s == nil {
		t.Fatal("valid access token did not resolve")
	}
	if s.User.ID != "u1" || s.Claims.TokenType != TypeAccess {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestGetSessionRevocationSticky(t *testing.T) {
	store := revocation.NewMemoryStore()
	m := newTestManager(t, store, nil)
	pair, _ := m.CreatePair(User{ID: "u1"}, nil)
	ctx := context.Background()

	jti := m.Decode(pair.AccessToken).ID
	if err := store.Revoke(ctx, jti); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if s := m.GetSession(ctx, "Bearer "+pair.AccessToken); s != nil {
			t.Fatal("revoked token resolved as a session")
		}
	}

	// The refresh token's jti is a separate credential and stays valid.
	if _, err := m.Refresh(ctx, pair.RefreshToken, nil); err != nil {
		t.Fatalf("refresh token should survive access-token revocation: %v", err)
	}
}

func TestGetSessionUserLoader(t *testing.T) {
	loaded := User{ID: "u1", Email: "fresh@example.com"}
	loader := func(ctx context.Context, sub string) (*User, error) {
		if sub != "u1" {
			return nil, nil
		}
		return &loaded, nil
	}

	m := newTestManager(t, nil, loader)
	ctx := context.Background()

	pair, _ := m.CreatePair(User{ID: "u1", Email: "stale@example.com"}, nil)
	s := m.GetSession(ctx, "Bearer "+pair.AccessToken)
	if s == nil || s.User.Email != "fresh@example.com" {
		t.Fatalf("expected hydrated user, got %+v", s)
	}

	// Loader returning nil fails the session closed.
	gone, _ := m.CreatePair(User{ID: "u2"}, nil)
	if s := m.GetSession(ctx, "Bearer "+gone.AccessToken); s != nil {
		t.Fatal("expected no session when loader returns nil")
	}
}

func TestGetSessionLoaderErrorFailsClosed(t *testing.T) {
	loader := func(context.Context, string) (*User, error) {
		return nil, errors.New("backend down")
	}
	m := newTestManager(t, nil, loader)

	pair, _ := m.CreatePair(User{ID: "u1"}, nil)
	if s := m.GetSession(context.Background(), "Bearer "+pair.AccessToken); s != nil {
		t.Fatal("expected no session when loader errors")
	}
}

func TestRefreshIssuesNewPairWithoutRevokingOld(t *testing.T) {
	m := newTestManager(t, revocation.NewMemoryStore(), nil)
	ctx := context.Background()

	pair, _ := m.CreatePair(User{ID: "u1", Email: "u1@example.com"}, nil)

	next, err := m.Refresh(ctx, pair.RefreshToken, nil)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.AccessToken == pair.AccessToken || next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh did not issue new tokens")
	}

	// Single-use refresh tokens are the caller's policy, not ours.
	if _, err := m.Refresh(ctx, pair.RefreshToken, nil); err != nil {
		t.Fatalf("old refresh token unexpectedly rejected: %v", err)
	}
}

func TestRefreshRevokedTokenSurfacesErrRevoked(t *testing.T) {
	store := revocation.NewMemoryStore()
	m := newTestManager(t, store, nil)
	ctx := context.Background()

	pair, _ := m.CreatePair(User{ID: "u1"}, nil)

	claims := m.Decode(pair.RefreshToken)
	if claims == nil || claims.ID == "" {
		t.Fatal("could not decode refresh token jti")
	}
	if err := store.Revoke(ctx, claims.ID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := m.Refresh(ctx, pair.RefreshToken, nil); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	m := newTestManager(t, nil, nil)
	pair, _ := m.CreatePair(User{ID: "u1"}, nil)

	if _, err := m.Refresh(context.Background(), pair.AccessToken, nil); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestDecodeMalformedReturnsNil(t *testing.T) {
	m := newTestManager(t, nil, nil)
	for _, in := range []string{"", "a", "a.b", "a.b.c", "!!!.@@@.###"} {
		if c := m.Decode(in); c != nil {
			t.Fatalf("Decode(%q) expected nil, got %+v", in, c)
		}
	}
}
