package identity

import (
	"context"
	"strings"
	"time"
)

// User is the canonical account record.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string

	// CountryCode and Phone are set together or not at all.
	CountryCode *string
	Phone       *string

	// PasswordHash is nil for accounts created through an external provider.
	PasswordHash *string

	EmailVerified bool
	PhoneVerified bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName is derived from the live record on every call.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasPassword reports whether the account can log in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// ExternalIdentity is what an OAuth provider hands back after its own verification.
type ExternalIdentity struct {
	Provider  string
	AccountID string
	Email     string
	FirstName string
	LastName  string
}

// CreateUserInput describes a new account. Email is required.
type CreateUserInput struct {
	FirstName    string
	LastName     string
	Email        string
	CountryCode  *string
	Phone        *string
	PasswordHash *string

	EmailVerified bool
	PhoneVerified bool

	Now time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	GetByID(ctx context.Context, userID string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByPhone(ctx context.Context, countryCode, phone string) (User, error)
	GetByExternal(ctx context.Context, provider, accountID string) (User, error)

	// LinkExternal attaches a provider account to a user. Linking the same pair twice is a no-op;
	// linking an account that belongs to another user is a ConflictError.
	LinkExternal(ctx context.Context, userID, provider, accountID string, now time.Time) error

	MarkPhoneVerified(ctx context.Context, userID string, now time.Time) error

	// SetPasswordHash replaces the stored hash, e.g. after a cost upgrade.
	SetPasswordHash(ctx context.Context, userID, hash string, now time.Time) error
}

// normalizedCreate validates and canonicalizes in. It is shared by the store implementations.
func normalizedCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = NormalizeEmail(in.Email)

	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return CreateUserInput{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "valid email is required"}
	}
	if in.FirstName == "" {
		return CreateUserInput{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "first name is required"}
	}

	if in.Phone != nil || in.CountryCode != nil {
		if in.Phone == nil || in.CountryCode == nil {
			return CreateUserInput{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "phone requires country code"}
		}
		cc := NormalizeCountryCode(*in.CountryCode)
		ph := NormalizePhone(*in.Phone)
		if cc == "" || ph == "" {
			return CreateUserInput{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid phone"}
		}
		in.CountryCode = &cc
		in.Phone = &ph
	}

	if in.PasswordHash != nil && strings.TrimSpace(*in.PasswordHash) == "" {
		in.PasswordHash = nil
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}
