package api

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Audit events are structured log records under the "audit" logger group.

func (h *Handler) auditLoginFailed(ctx context.Context, userID string, ip net.IP, ua, identifier, reason string) {
	h.audit(ctx, "auth.login.failed", userID, "", ip, ua, slog.String("identifier", identifier), slog.String("reason", reason))
}

func (h *Handler) auditLoginSuccess(ctx context.Context, method, userID, sessionID string, ip net.IP, ua string) {
	h.audit(ctx, "auth.login.success", userID, sessionID, ip, ua, slog.String("method", method))
}

func (h *Handler) auditLoginRateLimited(ctx context.Context, ip net.IP, ua string, retryAfter time.Duration) {
	h.audit(ctx, "auth.login.rate_limited", "", "", ip, ua, slog.Int64("retry_after_s", int64(retryAfter.Seconds())))
}

func (h *Handler) auditSignup(ctx context.Context, method, userID string, ip net.IP, ua string) {
	h.audit(ctx, "auth.signup", userID, "", ip, ua, slog.String("method", method))
}

func (h *Handler) auditRefreshSuccess(ctx context.Context, userID, sessionID string, ip net.IP, ua string) {
	h.audit(ctx, "auth.refresh.success", userID, sessionID, ip, ua)
}

func (h *Handler) auditRefreshRejected(ctx context.Context, ip net.IP, ua string, err error) {
	h.audit(ctx, "auth.refresh.rejected", "", "", ip, ua, slog.String("reason", err.Error()))
}

func (h *Handler) auditLogout(ctx context.Context, userID, sessionID string, ip net.IP, ua string) {
	h.audit(ctx, "auth.logout", userID, sessionID, ip, ua)
}

func (h *Handler) auditLogoutAll(ctx context.Context, userID string, revoked int, ip net.IP, ua string) {
	h.audit(ctx, "auth.logout_all", userID, "", ip, ua, slog.Int("revoked", revoked))
}

func (h *Handler) audit(ctx context.Context, action, userID, sessionID string, ip net.IP, ua string, extra ...slog.Attr) {
	if h == nil || h.auditLog == nil {
		return
	}
	attrs := make([]slog.Attr, 0, 5+len(extra))
	attrs = append(attrs, slog.String("action", action))
	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if sessionID != "" {
		attrs = append(attrs, slog.String("session_id", sessionID))
	}
	if ip != nil {
		attrs = append(attrs, slog.String("ip", ip.String()))
	}
	if ua = strings.TrimSpace(ua); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}
	attrs = append(attrs, extra...)
	h.auditLog.LogAttrs(ctx, slog.LevelInfo, action, attrs...)
}
