package middleware

import "context"

type contextKey string

const ctxVerifier contextKey = "verifier"

// VerifierFromContext returns the verifier named by an authenticated
// callback token, or "" when callback auth is disabled.
func VerifierFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxVerifier).(string); ok {
		return v
	}
	return ""
}

// WithVerifier injects the verifier identity into the context.
func WithVerifier(ctx context.Context, verifier string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxVerifier, verifier)
}
