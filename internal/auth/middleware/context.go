package auth

import "context"

type ctxKey struct{}

var ctxKeySub ctxKey

// WithSubject stores the authenticated user id on the context. Handlers
// treat it as the attempt owner; it never comes from request parameters.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeySub).(string); ok {
		return s
	}
	return ""
}
