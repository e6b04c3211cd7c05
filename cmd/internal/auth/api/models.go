package api

import (
	"time"

	"authgate/cmd/identity"
	"authgate/cmd/internal/auth/session"
)

type registerRequest struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	CountryCode *string `json:"country_code"`
	Phone       *string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type otpLoginRequest struct {
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
	Code        string `json:"code"`
}

type revokeSessionRequest struct {
	SessionID string `json:"session_id"`
}

type userResponse struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	DisplayName   string    `json:"display_name"`
	Email         string    `json:"email"`
	CountryCode   *string   `json:"country_code,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	PhoneVerified bool      `json:"phone_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

type sessionResponse struct {
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type loginResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
	Created bool            `json:"created,omitempty"`
}

type refreshResponse struct {
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	User      userResponse `json:"user"`
	SessionID string       `json:"session_id"`
}

type deviceResponse struct {
	SessionID string    `json:"session_id"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used_at"`
	Current   bool      `json:"current"`
}

type sessionsResponse struct {
	Sessions []deviceResponse `json:"sessions"`
}

type logoutAllResponse struct {
	Revoked int `json:"revoked"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		DisplayName:   u.DisplayName(),
		Email:         u.Email,
		CountryCode:   u.CountryCode,
		Phone:         u.Phone,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		CreatedAt:     u.CreatedAt,
	}
}

func toSessionResponse(issued session.Issued) sessionResponse {
	return sessionResponse{
		SessionID:        issued.SessionID,
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExp,
		RefreshToken:     issued.RefreshToken,
		RefreshExpiresAt: issued.RefreshExp,
	}
}

func toDeviceResponse(s session.Session, currentID string) deviceResponse {
	d := deviceResponse{
		SessionID: s.ID,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
		LastUsed:  s.UpdatedAt,
		Current:   s.ID == currentID,
	}
	if len(s.IP) > 0 {
		d.IP = s.IP.String()
	}
	return d
}
