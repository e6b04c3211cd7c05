package gate

import "strings"

// DefaultPublicRoutes lists the routes reachable without a session.
func DefaultPublicRoutes() []string {
	return []string{
		"/",
		"/login",
		"/login-otp",
		"/register",
		"/refresh-token",
		"/send-login-otp",
		"/verify-login-otp",
		"/contact",
		"/about",
		"/forgot-password",
		"/reset-password",
		"/auth/google",
		"/auth/google/callback",
		"/auth/github",
		"/auth/github/callback",
		"/static/*",
		"/healthz",
		"/readyz",
		"/metrics",
	}
}

// RouteMatcher is an allow-list of paths: exact matches plus "/prefix/*" wildcards.
// It is immutable after construction.
type RouteMatcher struct {
	exact    map[string]struct{}
	prefixes []string
}

func NewRouteMatcher(patterns ...string) *RouteMatcher {
	m := &RouteMatcher{exact: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			m.prefixes = append(m.prefixes, prefix)
			continue
		}
		m.exact[normalizePath(p)] = struct{}{}
	}
	return m
}

// Allowed reports whether path may be served to an anonymous caller.
func (m *RouteMatcher) Allowed(path string) bool {
	if m == nil {
		return false
	}
	path = normalizePath(path)
	if _, ok := m.exact[path]; ok {
		return true
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// normalizePath drops a trailing slash so "/login/" and "/login" match alike.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			return "/"
		}
	}
	return p
}
