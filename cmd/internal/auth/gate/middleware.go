package gate

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Flash messages shown on the login page after a redirect.
const (
	FlashLoginRequired  = "Please login to continue."
	FlashSessionExpired = "Session expired. Please login again."
)

// Middleware wraps next with the gate. Browser callers that need a session are
// redirected to loginPath; programmatic callers get a JSON error instead.
func (g *Gate) Middleware(cookies Cookies, loginPath string) func(http.Handler) http.Handler {
	if loginPath == "" {
		loginPath = "/login"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Authenticate(r.Context(), r.URL.Path, cookies.Read(r))

			if d.Rotated != nil {
				cookies.SetTokens(w, *d.Rotated)
			}
			if d.ClearCredentials {
				cookies.Clear(w)
			}

			switch d.Outcome {
			case Proceed:
				if d.Identity != nil {
					r = r.WithContext(WithIdentity(r.Context(), *d.Identity))
				}
				next.ServeHTTP(w, r)

			case RedirectLogin:
				if WantsJSON(r) {
					writeGateError(w, http.StatusUnauthorized, "login_required", "authentication required")
					return
				}
				msg := FlashLoginRequired
				if d.Reason == ReasonSessionExpired {
					msg = FlashSessionExpired
				}
				cookies.SetFlash(w, msg)
				http.Redirect(w, r, loginPath, http.StatusSeeOther)

			default:
				w.Header().Set("Retry-After", "5")
				if WantsJSON(r) {
					writeGateError(w, http.StatusServiceUnavailable, "auth_unavailable", "authentication temporarily unavailable")
					return
				}
				http.Error(w, "Service temporarily unavailable. Please retry.", http.StatusServiceUnavailable)
			}
		})
	}
}

// RequireIdentity rejects requests that reached next without an identity.
// It is for handlers mounted on public paths that still need a session.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			writeGateError(w, http.StatusUnauthorized, "login_required", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WantsJSON reports whether the caller is a programmatic client.
func WantsJSON(r *http.Request) bool {
	if _, ok := BearerToken(r); ok {
		return true
	}
	accept := strings.ToLower(r.Header.Get("Accept"))
	if strings.Contains(accept, "application/json") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json") &&
		!strings.Contains(accept, "text/html")
}

func writeGateError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}
