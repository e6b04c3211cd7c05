package gate

import (
	"context"

	"authgate/cmd/internal/auth/session"
)

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying p.
func WithIdentity(ctx context.Context, p session.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// IdentityFrom returns the identity established by the gate for this request.
func IdentityFrom(ctx context.Context) (session.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(session.Principal)
	return p, ok
}
