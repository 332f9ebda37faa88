// Package identity carries the upstream-resolved username through a request context.
package identity

import (
	"context"
	"strings"
)

// MetadataKey is the gRPC metadata key for the caller's username.
const MetadataKey = "x-username"

// HeaderName is the HTTP header for the caller's username.
const HeaderName = "X-Username"

type ctxKey struct{}

func With(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, ctxKey{}, strings.TrimSpace(username))
}

// From returns the username, or false if none was attached.
func From(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(ctxKey{}).(string)
	return name, ok && name != ""
}
