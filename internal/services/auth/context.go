package auth

import "context"

type identityContextKey string

const identityKey identityContextKey = "auth_identity"

// Identity is the caller as asserted by the identity provider. Token is the
// raw bearer credential, forwarded to the forum backend.
type Identity struct {
	UserID      string
	DisplayName string
	PhotoURL    string
	Token       string
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}
