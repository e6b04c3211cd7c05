package token

import (
	"strings"
	"testing"
)

func TestSecret(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "missing", raw: "   ", wantErr: ErrSecretMissing},
		{name: "short", raw: "too-short", wantErr: ErrSecretTooShort},
		{name: "ok", raw: "  " + strings.Repeat("k", MinSecretBytes) + "  ", wantErr: nil},
	}

	for _, tc := range cases {
		b, err := Secret(tc.raw, MinSecretBytes)
		if err != tc.wantErr {
			t.Fatalf("%s: err=%v want=%v", tc.name, err, tc.wantErr)
		}
		if err == nil && len(b) != MinSecretBytes {
			t.Fatalf("%s: expected trimmed secret, got %d bytes", tc.name, len(b))
		}
	}
}

func TestFingerprint(t *testing.T) {
	if got := Fingerprint("", nil); got != "" {
		t.Fatalf("expected empty fingerprint, got %q", got)
	}

	a := Fingerprint("token-a", nil)
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", a)
	}
	if a != Fingerprint("token-a", nil) {
		t.Fatalf("fingerprint must be stable")
	}
	if a == Fingerprint("token-b", nil) {
		t.Fatalf("distinct tokens should not collide")
	}
	if a == Fingerprint("token-a", []byte("key")) {
		t.Fatalf("keyed fingerprint should differ from plain sha256")
	}
	if !strings.HasPrefix(HashSHA256Hex("token-a"), a) {
		t.Fatalf("unkeyed fingerprint should prefix the sha256 digest")
	}
}
