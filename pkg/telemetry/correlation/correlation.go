// Package correlation carries a correlation id across a request and into logs and spans.
package correlation

import (
	"context"
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"
)

const Header = "X-Correlation-Id"

// maxLength bounds ids accepted from clients.
const maxLength = 128

type key struct{}

func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}

func WithID(ctx context.Context, id string) context.Context {
	if id = Sanitize(id); id == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, id)
}

// Ensure returns ctx with a correlation id, minting a ULID when none is set.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return context.WithValue(ctx, key{}, id), id
}

// Sanitize drops client ids that are too long or contain non-printable characters.
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxLength {
		return ""
	}
	for _, r := range raw {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return ""
		}
	}
	return raw
}
