// Package auditcontext carries request-scoped actor and request metadata for audit entries.
package auditcontext

import (
	"context"
	"strings"
)

type actorKey struct{}
type requestIDKey struct{}
type ipAddressKey struct{}
type userAgentKey struct{}

type actor struct {
	actorType string
	actorID   string
}

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	actorType = strings.TrimSpace(actorType)
	if actorType == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor{actorType: actorType, actorID: strings.TrimSpace(actorID)})
}

// ActorFromContext returns the actor, defaulting to the system actor.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx != nil {
		if a, ok := ctx.Value(actorKey{}).(actor); ok {
			return a.actorType, a.actorID
		}
	}
	return ActorTypeSystem, ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ipAddressKey{}, ip)
}

func IPAddressFromContext(ctx context.Context) string {
	return stringValue(ctx, ipAddressKey{})
}

func WithUserAgent(ctx context.Context, ua string) context.Context {
	if ua == "" {
		return ctx
	}
	return context.WithValue(ctx, userAgentKey{}, ua)
}

func UserAgentFromContext(ctx context.Context) string {
	return stringValue(ctx, userAgentKey{})
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
