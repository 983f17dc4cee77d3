package auth

import "context"

type contextKey string

const authContextKey contextKey = "dentassist_auth"

// AuthInfo identifies the key that authenticated a request.
type AuthInfo struct {
	KeyName string
	Admin   bool
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
