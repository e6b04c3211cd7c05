package identity

import (
	"context"
	"testing"
	"time"
)

func TestResolveExternal(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("creates verified user and links", func(t *testing.T) {
		s := NewMemoryStore()
		u, created, err := ResolveExternal(ctx, s, ExternalIdentity{
			Provider: "github", AccountID: "42", Email: "New@X.com",
		}, now)
		if err != nil {
			t.Fatalf("ResolveExternal: %v", err)
		}
		if !created || !u.EmailVerified || u.HasPassword() {
			t.Fatalf("unexpected user: created=%v %+v", created, u)
		}
		if u.FirstName != "new" {
			t.Fatalf("expected first name from email local part, got %q", u.FirstName)
		}

		again, created, err := ResolveExternal(ctx, s, ExternalIdentity{Provider: "GitHub", AccountID: "42"}, now)
		if err != nil || created || again.ID != u.ID {
			t.Fatalf("second resolve should find linked user: %v %v %+v", err, created, again)
		}
	})

	t.Run("links existing email", func(t *testing.T) {
		s := NewMemoryStore()
		existing, _ := s.CreateUser(ctx, CreateUserInput{FirstName: "A", Email: "a@x.com"})

		u, created, err := ResolveExternal(ctx, s, ExternalIdentity{
			Provider: "google", AccountID: "g-7", Email: "A@X.COM", FirstName: "Other",
		}, now)
		if err != nil {
			t.Fatalf("ResolveExternal: %v", err)
		}
		if created || u.ID != existing.ID {
			t.Fatalf("expected existing user, got created=%v %+v", created, u)
		}
		if _, err := s.GetByExternal(ctx, "google", "g-7"); err != nil {
			t.Fatalf("expected link, got %v", err)
		}
	})

	t.Run("rejects incomplete identity", func(t *testing.T) {
		s := NewMemoryStore()
		if _, _, err := ResolveExternal(ctx, s, ExternalIdentity{Provider: "google"}, now); !IsInvalidInput(err) {
			t.Fatalf("expected invalid input, got %v", err)
		}
		if _, _, err := ResolveExternal(ctx, s, ExternalIdentity{Provider: "google", AccountID: "1"}, now); !IsInvalidInput(err) {
			t.Fatalf("expected invalid input for missing email, got %v", err)
		}
	})
}

func TestNormalize(t *testing.T) {
	if got := NormalizePhone("+1 (555) 010-2030"); got != "15550102030" {
		t.Fatalf("NormalizePhone=%q", got)
	}
	if got := NormalizeCountryCode("91"); got != "+91" {
		t.Fatalf("NormalizeCountryCode=%q", got)
	}
	if got := NormalizeCountryCode("abc"); got != "" {
		t.Fatalf("NormalizeCountryCode(abc)=%q", got)
	}
	if got := NormalizeEmail("  Foo@Bar.COM "); got != "foo@bar.com" {
		t.Fatalf("NormalizeEmail=%q", got)
	}
}
