package veloxauth

import (
	"errors"
	"testing"
	"time"

	"github.com/veloxts/veloxauth/ratelimit"
)

func TestDefaultConfigPolicies(t *testing.T) {
	cfg := defaultConfig()

	login, ok := cfg.RateLimit.Policies[OpLogin]
	if !ok {
		t.Fatal("expected a default login policy")
	}
	if login.MaxAttempts != 5 {
		t.Fatalf("expected 5 login attempts, got %d", login.MaxAttempts)
	}
	if !login.ProgressiveBackoff {
		t.Fatal("expected progressive backoff on login")
	}

	for _, op := range []Operation{OpRegister, OpPasswordReset, OpRefresh} {
		if _, ok := cfg.RateLimit.Policies[op]; !ok {
			t.Fatalf("expected a default policy for %q", op)
		}
	}
}

func TestValidateConfigRejectsNegativeSweepInterval(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateLimit.SweepInterval = -time.Second

	if err := validateConfig(cfg); !errors.Is(err, ErrInvalidSweepInterval) {
		t.Fatalf("expected ErrInvalidSweepInterval, got %v", err)
	}
}

func TestCloneConfigIsolatesPolicies(t *testing.T) {
	original := defaultConfig()
	clone := cloneConfig(original)

	clone.RateLimit.Policies[OpLogin] = ratelimit.Policy{MaxAttempts: 1}

	if original.RateLimit.Policies[OpLogin].MaxAttempts == 1 {
		t.Fatal("clone mutation leaked into the original policy map")
	}
}

func TestCloneConfigIsolatesCsrfSlices(t *testing.T) {
	original := defaultConfig()
	original.Csrf.ExcludePaths = []string{"/webhooks/github"}
	original.Csrf.AllowedOrigins = []string{"https://app.example.com"}

	clone := cloneConfig(original)
	clone.Csrf.ExcludePaths[0] = "/other"
	clone.Csrf.AllowedOrigins[0] = "https://evil.example.com"

	if original.Csrf.ExcludePaths[0] != "/webhooks/github" {
		t.Fatal("clone mutation leaked into ExcludePaths")
	}
	if original.Csrf.AllowedOrigins[0] != "https://app.example.com" {
		t.Fatal("clone mutation leaked into AllowedOrigins")
	}
}
