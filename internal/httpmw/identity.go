package httpmw

import "context"

type userIDKey struct{}

// WithUser attaches the authenticated user ID to the context. IDs are
// positive; zero means anonymous and is not stored.
func WithUser(ctx context.Context, id int64) context.Context {
	if id <= 0 {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserFromContext returns the authenticated user ID and whether one is set.
func UserFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok && id > 0
}
