package gate

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"authgate/cmd/internal/auth/session"
)

// Cookies is the browser transport for the token pair and the login flash message.
type Cookies struct {
	AccessName  string
	RefreshName string
	FlashName   string

	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// DefaultCookies returns the cookie names used by the original browser flows.
func DefaultCookies() Cookies {
	return Cookies{
		AccessName:  "access_token",
		RefreshName: "refresh_token",
		FlashName:   "flash",
		Path:        "/",
		Secure:      true,
		SameSite:    http.SameSiteLaxMode,
	}
}

// Read extracts credentials from cookies. A Bearer header overrides the access cookie.
func (c Cookies) Read(r *http.Request) Credentials {
	var cred Credentials
	if r == nil {
		return cred
	}
	cred.Access = c.value(r, c.AccessName)
	cred.Refresh = c.value(r, c.RefreshName)
	if tok, ok := BearerToken(r); ok {
		cred.Access = tok
	}
	return cred
}

// SetTokens persists an issued pair. Each cookie expires with its token.
func (c Cookies) SetTokens(w http.ResponseWriter, issued session.Issued) {
	c.set(w, c.AccessName, issued.AccessToken, issued.AccessExp, true)
	c.set(w, c.RefreshName, issued.RefreshToken, issued.RefreshExp, true)
}

// Clear expires both token cookies.
func (c Cookies) Clear(w http.ResponseWriter) {
	c.expire(w, c.AccessName, true)
	c.expire(w, c.RefreshName, true)
}

// SetFlash stores a one-shot message for the login page.
func (c Cookies) SetFlash(w http.ResponseWriter, msg string) {
	if c.FlashName == "" || msg == "" {
		return
	}
	c.set(w, c.FlashName, url.QueryEscape(msg), time.Now().Add(time.Minute), false)
}

// TakeFlash returns and expires the flash message, if any.
func (c Cookies) TakeFlash(w http.ResponseWriter, r *http.Request) string {
	raw := c.value(r, c.FlashName)
	if raw == "" {
		return ""
	}
	c.expire(w, c.FlashName, false)
	msg, err := url.QueryUnescape(raw)
	if err != nil {
		return ""
	}
	return msg
}

func (c Cookies) value(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(ck.Value)
}

func (c Cookies) set(w http.ResponseWriter, name, value string, exp time.Time, httpOnly bool) {
	if w == nil || name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  exp,
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func (c Cookies) expire(w http.ResponseWriter, name string, httpOnly bool) {
	if w == nil || name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// BearerToken extracts a token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", false
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", false
	}
	return tok, true
}
