package api

import (
	"context"
	"errors"

	"authgate/cmd/identity"
)

var (
	// ErrOTPDisabled is returned by the default verifier.
	ErrOTPDisabled = errors.New("otp login not configured")
	// ErrProviderDenied is returned by identity providers when the user cancelled or the code is bad.
	ErrProviderDenied = errors.New("identity provider denied the login")
)

// OTPVerifier checks a one-time code previously sent to a phone number.
// SMS delivery lives outside this service.
type OTPVerifier interface {
	Verify(ctx context.Context, countryCode, phone, code string) (bool, error)
}

type disabledOTPVerifier struct{}

func (disabledOTPVerifier) Verify(context.Context, string, string, string) (bool, error) {
	return false, ErrOTPDisabled
}

// IdentityProvider is an OAuth provider reduced to what login needs: where to
// send the browser, and the verified identity behind a returned code.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (identity.ExternalIdentity, error)
}
