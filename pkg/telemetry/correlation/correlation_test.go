package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureMintsULID(t *testing.T) {
	ctx, id := Ensure(context.Background())

	_, err := ulid.ParseStrict(id)
	require.NoError(t, err)
	assert.Equal(t, id, FromContext(ctx))
}

func TestEnsureKeepsClientID(t *testing.T) {
	ctx := WithID(context.Background(), " batch-42 ")

	_, id := Ensure(ctx)
	assert.Equal(t, "batch-42", id)
}

func TestWithIDRejectsUnsafeValues(t *testing.T) {
	for _, raw := range []string{"", "two words", "line\nbreak", strings.Repeat("x", maxLength+1)} {
		assert.Empty(t, FromContext(WithID(context.Background(), raw)), raw)
	}
}
