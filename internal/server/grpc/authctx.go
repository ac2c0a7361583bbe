package grpcserver

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const clientIDKey ctxKey = "kq.clientID"

// WithClientID stores the authenticated client ID in context.
func WithClientID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, clientIDKey, id)
}

// ClientIDFromCtx fetches the client ID from context.
func ClientIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(clientIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
