package authcore

import "context"

type contextKey int

const (
	contextKeyClientIP contextKey = iota
	contextKeyUserAgent
)

// WithClientIP annotates ctx with the caller's IP for audit events and
// throttling. Engine methods work without it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKeyClientIP, ip)
}

// WithUserAgent annotates ctx with the caller's user agent for audit events.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	if ua == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKeyUserAgent, ua)
}

func clientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyClientIP).(string); ok {
		return v
	}
	return ""
}

func userAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyUserAgent).(string); ok {
		return v
	}
	return ""
}
