package api

import (
	"context"

	"authgate/cmd/identity"
	"authgate/cmd/internal/auth/session"
)

// Profiles adapts an identity store to session.Users. The display name is
// derived from the live record every time a token is minted.
func Profiles(users identity.Store) session.Users {
	return profiles{users: users}
}

type profiles struct {
	users identity.Store
}

func (p profiles) Profile(ctx context.Context, userID string) (session.Profile, error) {
	u, err := p.users.GetByID(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			return session.Profile{}, session.ErrUserNotFound
		}
		return session.Profile{}, err
	}
	return session.Profile{Name: u.DisplayName(), Email: u.Email}, nil
}
