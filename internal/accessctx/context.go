package accessctx

import (
	"context"
	"strings"
)

// ActorContextKey is the request context key for the authenticated actor
// subject, e.g. "user:1234", "api_key:5678" or "system".
type ActorContextKey struct{}

// RequestMetaContextKey is the request context key for transport metadata
// captured by the HTTP middleware and consumed by the audit trail.
type RequestMetaContextKey struct{}

type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorContextKey{}, strings.TrimSpace(actor))
}

func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	actor, ok := ctx.Value(ActorContextKey{}).(string)
	if !ok || actor == "" {
		return "", false
	}
	return actor, true
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, RequestMetaContextKey{}, meta)
}

func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	meta, _ := ctx.Value(RequestMetaContextKey{}).(RequestMeta)
	return meta
}
