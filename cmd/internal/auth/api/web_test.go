package api

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remote     string
		xff        string
		realIP     string
		trustProxy bool
		want       string
	}{
		{name: "remote addr", remote: "198.51.100.7:5555", want: "198.51.100.7"},
		{name: "xff ignored without trust", remote: "198.51.100.7:5555", xff: "203.0.113.9", want: "198.51.100.7"},
		{name: "xff first valid entry", remote: "10.0.0.1:1", xff: "junk, 203.0.113.9, 10.0.0.2", trustProxy: true, want: "203.0.113.9"},
		{name: "x-real-ip fallback", remote: "10.0.0.1:1", realIP: "2001:db8::1", trustProxy: true, want: "2001:db8::1"},
		{name: "unparseable remote", remote: "nonsense", want: "<nil>"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remote
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := clientIP(r, tc.trustProxy).String(); got != tc.want {
				t.Fatalf("clientIP=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestSecureStringEqual(t *testing.T) {
	if !secureStringEqual("abc", "abc") {
		t.Fatalf("equal strings reported different")
	}
	if secureStringEqual("", "") {
		t.Fatalf("empty strings must never match")
	}
	if secureStringEqual("abc", "abd") || secureStringEqual("abc", "abcd") {
		t.Fatalf("different strings reported equal")
	}
}

func TestNewOpaqueWebToken_Unique(t *testing.T) {
	a, err := newOpaqueWebToken(32)
	if err != nil {
		t.Fatalf("newOpaqueWebToken: %v", err)
	}
	b, _ := newOpaqueWebToken(32)
	if a == b || len(a) != 43 {
		t.Fatalf("tokens a=%q b=%q", a, b)
	}
}
