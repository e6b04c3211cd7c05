package identity

import (
	"context"
	"strings"
	"time"
)

// ResolveExternal maps a verified external identity onto a local user.
//
// Order: an account already linked to (provider, accountID); else a user with the same
// email, which gets linked; else a new password-less user, created verified and linked.
// The second return value reports whether a user was created.
func ResolveExternal(ctx context.Context, st Store, ext ExternalIdentity, now time.Time) (User, bool, error) {
	const op = "identity.ResolveExternal"

	provider := NormalizeProvider(ext.Provider)
	accountID := strings.TrimSpace(ext.AccountID)
	if provider == "" || accountID == "" {
		return User{}, false, OpError{Op: op, Kind: ErrInvalidInput, Msg: "provider and account id are required"}
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	u, err := st.GetByExternal(ctx, provider, accountID)
	if err == nil {
		return u, false, nil
	}
	if !IsNotFound(err) {
		return User{}, false, err
	}

	email := NormalizeEmail(ext.Email)
	if email == "" {
		return User{}, false, OpError{Op: op, Kind: ErrInvalidInput, Msg: "provider returned no email"}
	}

	u, err = st.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := st.LinkExternal(ctx, u.ID, provider, accountID, now); err != nil {
			return User{}, false, err
		}
		return u, false, nil
	case !IsNotFound(err):
		return User{}, false, err
	}

	first := strings.TrimSpace(ext.FirstName)
	if first == "" {
		first, _, _ = strings.Cut(email, "@")
	}

	u, err = st.CreateUser(ctx, CreateUserInput{
		FirstName:     first,
		LastName:      strings.TrimSpace(ext.LastName),
		Email:         email,
		EmailVerified: true,
		Now:           now,
	})
	if err != nil {
		return User{}, false, err
	}
	if err := st.LinkExternal(ctx, u.ID, provider, accountID, now); err != nil {
		return User{}, false, err
	}
	return u, true, nil
}
