package authcore

import "context"

type ctxKey int

const clientIPKey ctxKey = iota

// WithClientIP attaches the caller's IP address to ctx. Operations without an
// explicit clientIP argument use it for audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// withClientIP keeps an IP already present in ctx unless ip is set.
func withClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return WithClientIP(ctx, ip)
}

func clientIPFromContext(ctx context.Context) (ip string) {
	if ctx != nil {
		ip, _ = ctx.Value(clientIPKey).(string)
	}
	return ip
}
