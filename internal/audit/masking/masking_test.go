package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskContact(t *testing.T) {
	assert.Equal(t, "****@example.com", MaskContact("billing@example.com"))
	assert.Equal(t, "****4567", MaskContact("+1 555 123 4567"))
	assert.Equal(t, "****", MaskContact("123"))
	assert.Equal(t, "", MaskContact("  "))
}

func TestMaskMetadataOnlyTouchesContactKeys(t *testing.T) {
	out := MaskMetadata(map[string]any{
		"email":          "a@b.io",
		"invoice_number": "ACME-2025-001",
		"nested":         map[string]any{"phone": "5551234"},
		"count":          3,
	})

	assert.Equal(t, "****@b.io", out["email"])
	assert.Equal(t, "ACME-2025-001", out["invoice_number"])
	assert.Equal(t, map[string]any{"phone": "****1234"}, out["nested"])
	assert.Equal(t, 3, out["count"])
}
