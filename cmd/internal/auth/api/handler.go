package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"authgate/cmd/identity"
	"authgate/cmd/internal/auth/gate"
	"authgate/cmd/internal/auth/session"
	"authgate/cmd/security/password"
)

// Handler wires HTTP auth endpoints to the identity store and the session service.
type Handler struct {
	log      *slog.Logger
	auditLog *slog.Logger
	cfg      Config

	users     identity.Store
	sessions  *session.Service
	cookies   gate.Cookies
	passwords password.Config

	otp       OTPVerifier
	providers map[string]IdentityProvider
	limiter   *limiterRegistry

	now       func() time.Time
	dummyHash string
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithCookies overrides gate.DefaultCookies. It must match the cookies the gate reads.
func WithCookies(c gate.Cookies) HandlerOption {
	return func(h *Handler) { h.cookies = c }
}

func WithPasswordConfig(c password.Config) HandlerOption {
	return func(h *Handler) { h.passwords = c }
}

// WithOTPVerifier enables POST /verify-login-otp.
func WithOTPVerifier(v OTPVerifier) HandlerOption {
	return func(h *Handler) {
		if v != nil {
			h.otp = v
		}
	}
}

// WithIdentityProvider registers an OAuth provider under name, e.g. "github".
func WithIdentityProvider(name string, p IdentityProvider) HandlerOption {
	return func(h *Handler) {
		name = identity.NormalizeProvider(name)
		if name == "" || p == nil {
			return
		}
		h.providers[name] = p
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(users identity.Store, sessions *session.Service, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if users == nil {
		return nil, errors.New("auth api: nil identity store")
	}
	if sessions == nil {
		return nil, errors.New("auth api: nil session service")
	}

	cfg = cfg.normalized()
	h := &Handler{
		log:       slog.Default(),
		cfg:       cfg,
		users:     users,
		sessions:  sessions,
		cookies:   gate.DefaultCookies(),
		passwords: password.DefaultConfig(),
		otp:       disabledOTPVerifier{},
		providers: make(map[string]IdentityProvider),
		limiter:   newLimiterRegistry(cfg.LoginRate, cfg.LoginBurst, cfg.LimiterIdleTTL),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.auditLog = h.log.With("component", "audit")

	// Dummy hash for timing-resistant login checks.
	hash, err := h.passwords.Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, err
	}
	h.dummyHash = hash

	return h, nil
}

// Register wires auth routes onto mux. Routes needing a session expect the gate in front.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("POST /refresh-token", h.handleRefresh)
	mux.HandleFunc("POST /logout", h.handleLogout)
	mux.HandleFunc("POST /verify-login-otp", h.handleOTPLogin)
	mux.HandleFunc("GET /auth/{provider}", h.handleOAuthStart)
	mux.HandleFunc("GET /auth/{provider}/callback", h.handleOAuthCallback)

	mux.Handle("POST /logout-all", gate.RequireIdentity(http.HandlerFunc(h.handleLogoutAll)))
	mux.Handle("GET /sessions", gate.RequireIdentity(http.HandlerFunc(h.handleListSessions)))
	mux.Handle("POST /sessions/revoke", gate.RequireIdentity(http.HandlerFunc(h.handleRevokeSession)))
	mux.Handle("GET /me", gate.RequireIdentity(http.HandlerFunc(h.handleMe)))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if !h.allowCredentialAttempt(w, r) {
		return
	}

	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort),
			errors.Is(err, password.ErrPasswordTooLong),
			errors.Is(err, password.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "invalid_password", err.Error())
		default:
			h.log.Error("auth.register.hash.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	ctx := r.Context()
	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		CountryCode:  req.CountryCode,
		Phone:        req.Phone,
		PasswordHash: &hash,
		Now:          h.now(),
	})
	if err != nil {
		var ce identity.ConflictError
		switch {
		case errors.As(err, &ce):
			writeError(w, http.StatusConflict, "conflict", ce.Field+" already registered")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			h.log.Error("auth.register.create_user.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	client := h.client(r)
	h.auditSignup(ctx, "password", u.ID, client.IP, client.UserAgent)
	h.startSession(w, r, "password", u, true)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := identity.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}
	if !h.allowCredentialAttempt(w, r) {
		return
	}

	ctx := r.Context()
	client := h.client(r)

	u, err := h.users.GetByEmail(ctx, email)
	if err != nil && !identity.IsNotFound(err) {
		h.log.Error("auth.login.lookup.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "auth_unavailable", "please retry later")
		return
	}
	if err != nil || !u.HasPassword() {
		// Timing resistance: perform a dummy verify when there is nothing to check against.
		_ = h.passwords.Verify(h.dummyHash, req.Password)
		h.auditLoginFailed(ctx, u.ID, client.IP, client.UserAgent, email, "not_found")
		h.writeInvalidCredentials(w)
		return
	}
	if !h.passwords.Verify(*u.PasswordHash, req.Password) {
		h.auditLoginFailed(ctx, u.ID, client.IP, client.UserAgent, email, "bad_password")
		h.writeInvalidCredentials(w)
		return
	}
	if h.passwords.NeedsRehash(*u.PasswordHash) {
		h.rehash(ctx, u.ID, req.Password)
	}

	h.startSession(w, r, "password", u, false)
}

// rehash upgrades a stored hash to the current cost. Failure only costs a log line.
func (h *Handler) rehash(ctx context.Context, userID, pw string) {
	hash, err := h.passwords.Hash(pw)
	if err == nil {
		err = h.users.SetPasswordHash(ctx, userID, hash, h.now())
	}
	if err != nil {
		h.log.Warn("auth.login.rehash.fail", "user_id", userID, "err", err)
	}
}

func (h *Handler) handleOTPLogin(w http.ResponseWriter, r *http.Request) {
	var req otpLoginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	cc := identity.NormalizeCountryCode(req.CountryCode)
	phone := identity.NormalizePhone(req.Phone)
	code := strings.TrimSpace(req.Code)
	if cc == "" || phone == "" || code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "country_code, phone and code are required")
		return
	}
	if !h.allowCredentialAttempt(w, r) {
		return
	}

	ctx := r.Context()
	client := h.client(r)

	ok, err := h.otp.Verify(ctx, cc, phone, code)
	if err != nil {
		if errors.Is(err, ErrOTPDisabled) {
			writeError(w, http.StatusNotImplemented, "otp_disabled", "otp login not configured")
			return
		}
		h.log.Error("auth.otp.verify.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "auth_unavailable", "please retry later")
		return
	}
	if !ok {
		h.auditLoginFailed(ctx, "", client.IP, client.UserAgent, cc+phone, "bad_otp")
		writeError(w, http.StatusUnauthorized, "invalid_otp", "invalid code")
		return
	}

	u, err := h.users.GetByPhone(ctx, cc, phone)
	if err != nil {
		if identity.IsNotFound(err) {
			h.auditLoginFailed(ctx, "", client.IP, client.UserAgent, cc+phone, "not_found")
			writeError(w, http.StatusUnauthorized, "invalid_otp", "invalid code")
			return
		}
		h.log.Error("auth.otp.lookup.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "auth_unavailable", "please retry later")
		return
	}
	if !u.PhoneVerified {
		if err := h.users.MarkPhoneVerified(ctx, u.ID, h.now()); err != nil {
			h.log.Warn("auth.otp.mark_verified.fail", "user_id", u.ID, "err", err)
		} else {
			u.PhoneVerified = true
		}
	}

	h.startSession(w, r, "otp", u, false)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := h.refreshTokenFrom(w, r)
	if !ok {
		return
	}
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	ctx := r.Context()
	client := h.client(r)

	rot, err := h.sessions.Rotate(ctx, refreshToken)
	if err != nil {
		if !session.IsRetryable(err) {
			h.cookies.Clear(w)
			h.auditRefreshRejected(ctx, client.IP, client.UserAgent, err)
		}
		h.writeSessionError(w, "auth.refresh", err)
		return
	}

	h.auditRefreshSuccess(ctx, rot.Principal.UserID, rot.SessionID, client.IP, client.UserAgent)
	h.cookies.SetTokens(w, rot.Issued)
	writeJSON(w, http.StatusOK, refreshResponse{Session: toSessionResponse(rot.Issued)})
}

// handleLogout revokes the session named by the refresh token, or by the
// caller's identity when no refresh token was sent. Cookies are always cleared.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := h.refreshTokenFrom(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	client := h.client(r)

	var sessionID, userID string
	if p, ok := gate.IdentityFrom(ctx); ok {
		sessionID, userID = p.SessionID, p.UserID
	}
	if refreshToken != "" {
		if sid, err := h.sessions.SessionIDFromRefresh(refreshToken); err == nil {
			sessionID = sid
		}
	}

	h.cookies.Clear(w)
	if sessionID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.sessions.RevokeSession(ctx, sessionID); err != nil {
		h.writeSessionError(w, "auth.logout", err)
		return
	}

	h.auditLogout(ctx, userID, sessionID, client.IP, client.UserAgent)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := gate.IdentityFrom(r.Context())
	ctx := r.Context()
	client := h.client(r)

	n, err := h.sessions.RevokeAllSessions(ctx, p.UserID)
	h.cookies.Clear(w)
	if err != nil {
		h.writeSessionError(w, "auth.logout_all", err)
		return
	}

	h.auditLogoutAll(ctx, p.UserID, n, client.IP, client.UserAgent)
	writeJSON(w, http.StatusOK, logoutAllResponse{Revoked: n})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := gate.IdentityFrom(r.Context())

	list, err := h.sessions.ListSessions(r.Context(), p.UserID)
	if err != nil {
		h.writeSessionError(w, "auth.sessions.list", err)
		return
	}

	resp := sessionsResponse{Sessions: make([]deviceResponse, 0, len(list))}
	for _, s := range list {
		resp.Sessions = append(resp.Sessions, toDeviceResponse(s, p.SessionID))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	var req revokeSessionRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	target := strings.TrimSpace(req.SessionID)
	if target == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	ctx := r.Context()
	p, _ := gate.IdentityFrom(ctx)

	// Only the owner may revoke; foreign and unknown ids look the same.
	list, err := h.sessions.ListSessions(ctx, p.UserID)
	if err != nil {
		h.writeSessionError(w, "auth.sessions.revoke", err)
		return
	}
	owned := false
	for _, s := range list {
		if s.ID == target {
			owned = true
			break
		}
	}
	if !owned {
		writeError(w, http.StatusNotFound, "session_not_found", "session not found")
		return
	}

	if err := h.sessions.RevokeSession(ctx, target); err != nil {
		h.writeSessionError(w, "auth.sessions.revoke", err)
		return
	}
	client := h.client(r)
	h.auditLogout(ctx, p.UserID, target, client.IP, client.UserAgent)

	if target == p.SessionID {
		h.cookies.Clear(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := gate.IdentityFrom(r.Context())

	u, err := h.users.GetByID(r.Context(), p.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "user_not_found", "user not found")
			return
		}
		h.log.Error("auth.me.lookup.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "auth_unavailable", "please retry later")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u), SessionID: p.SessionID})
}

func (h *Handler) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	name := identity.NormalizeProvider(r.PathValue("provider"))
	p, ok := h.providers[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_provider", "unknown identity provider")
		return
	}

	state, err := newOpaqueWebToken(32)
	if err != nil {
		h.log.Error("auth.oauth.state.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	h.setOAuthState(w, state)
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	name := identity.NormalizeProvider(r.PathValue("provider"))
	p, ok := h.providers[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_provider", "unknown identity provider")
		return
	}

	q := r.URL.Query()
	want := h.takeOAuthState(w, r)
	if !secureStringEqual(want, q.Get("state")) {
		writeError(w, http.StatusBadRequest, "invalid_state", "oauth state mismatch")
		return
	}
	code := strings.TrimSpace(q.Get("code"))
	if code == "" || q.Get("error") != "" {
		writeError(w, http.StatusUnauthorized, "oauth_denied", "login was not completed")
		return
	}

	ctx := r.Context()
	client := h.client(r)

	ext, err := p.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, ErrProviderDenied) {
			h.auditLoginFailed(ctx, "", client.IP, client.UserAgent, name, "provider_denied")
			writeError(w, http.StatusUnauthorized, "oauth_denied", "login was not completed")
			return
		}
		h.log.Error("auth.oauth.exchange.fail", "provider", name, "err", err)
		writeError(w, http.StatusBadGateway, "provider_unavailable", "identity provider unavailable")
		return
	}
	ext.Provider = name

	u, created, err := identity.ResolveExternal(ctx, h.users, ext, h.now())
	if err != nil {
		switch {
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_identity", err.Error())
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "conflict", "account already linked")
		default:
			h.log.Error("auth.oauth.resolve.fail", "provider", name, "err", err)
			writeError(w, http.StatusServiceUnavailable, "auth_unavailable", "please retry later")
		}
		return
	}
	if created {
		h.auditSignup(ctx, name, u.ID, client.IP, client.UserAgent)
	}

	if gate.WantsJSON(r) {
		h.startSession(w, r, name, u, created)
		return
	}
	if _, ok := h.createSession(w, r, name, u); ok {
		http.Redirect(w, r, h.cfg.AfterLoginPath, http.StatusSeeOther)
	}
}

// startSession creates a session for u, sets cookies and writes the login response.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, method string, u identity.User, created bool) {
	issued, ok := h.createSession(w, r, method, u)
	if !ok {
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, loginResponse{
		User:    toUserResponse(u),
		Session: toSessionResponse(issued),
		Created: created,
	})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request, method string, u identity.User) (session.Issued, bool) {
	ctx := r.Context()
	client := h.client(r)

	issued, err := h.sessions.CreateSession(ctx, u.ID, client)
	if err != nil {
		h.writeSessionError(w, "auth.login.issue_session", err)
		return session.Issued{}, false
	}

	h.auditLoginSuccess(ctx, method, u.ID, issued.SessionID, client.IP, client.UserAgent)
	h.cookies.SetTokens(w, issued)
	return issued, true
}

// refreshTokenFrom reads the refresh token from an optional JSON body, falling back to the cookie.
func (h *Handler) refreshTokenFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return "", false
		}
	}
	if tok := strings.TrimSpace(req.RefreshToken); tok != "" {
		return tok, true
	}
	return h.cookies.Read(r).Refresh, true
}

func (h *Handler) allowCredentialAttempt(w http.ResponseWriter, r *http.Request) bool {
	client := h.client(r)
	key := "unknown"
	if client.IP != nil {
		key = client.IP.String()
	}
	ok, retryAfter := h.limiter.Allow(key)
	if !ok {
		h.auditLoginRateLimited(r.Context(), client.IP, client.UserAgent, retryAfter)
		writeRateLimited(w, retryAfter)
	}
	return ok
}

func (h *Handler) writeInvalidCredentials(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "invalid_credentials", session.ErrInvalidCredentials.Error())
}

// writeSessionError maps the session error taxonomy onto HTTP. Store outages are
// retryable and never reported as a logged-out state.
func (h *Handler) writeSessionError(w http.ResponseWriter, op string, err error) {
	switch {
	case session.IsRetryable(err):
		h.log.Error(op+".fail", "err", err)
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "auth_unavailable", "authentication temporarily unavailable")
	case errors.Is(err, session.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "session_expired", "session expired")
	case errors.Is(err, session.ErrTokenInvalid),
		errors.Is(err, session.ErrSessionRevoked),
		errors.Is(err, session.ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, "session_not_active", "session not active")
	case errors.Is(err, context.Canceled):
		// Client went away.
	default:
		h.log.Error(op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
