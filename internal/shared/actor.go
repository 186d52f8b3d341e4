package shared

import (
	"context"
	"net/http"
	"strconv"
)

type actorKey struct{}

type idempotencyKey struct{}

// ActorHeader carries the acting-user identifier supplied by the identity
// collaborator. The engine stores it verbatim and never validates its shape.
const ActorHeader = "X-Actor-ID"

// IdempotencyHeader carries the client-chosen key for retry-safe requests.
const IdempotencyHeader = "Idempotency-Key"

// ContextWithActor stores the acting-user id in the context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the acting-user id, or zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(actorKey{}).(int64); ok {
		return id
	}
	return 0
}

// ContextWithIdempotencyKey stores the client-supplied idempotency key.
func ContextWithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKeyFromContext returns the idempotency key, or "" when absent.
func IdempotencyKeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(idempotencyKey{}).(string); ok {
		return key
	}
	return ""
}

// ActorMiddleware extracts the actor id and idempotency key headers into the
// request context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if raw := r.Header.Get(ActorHeader); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				ctx = ContextWithActor(ctx, id)
			}
		}
		if key := r.Header.Get(IdempotencyHeader); key != "" {
			ctx = ContextWithIdempotencyKey(ctx, key)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
