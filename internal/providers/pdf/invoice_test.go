package pdf

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInvoice(t *testing.T) {
	data := InvoiceData{
		IssuerName:    "Hourbill",
		InvoiceNumber: "ACME-2025-001",
		Status:        "draft",
		IssueDate:     "2025-07-01",
		DueDate:       "2025-07-31",
		ServicePeriod: "2025-06-01 to 2025-06-30",
		BillToName:    "Acme Ltd",
		BillToEmail:   "billing@acme.test",
		Sections: []Section{{
			Title:    "Support",
			Subtotal: "600.00",
			Items: []InvoiceItem{
				{Description: "Regular Support (4.00 hours)", Qty: "4.00", UnitPrice: "150.00", Amount: "600.00"},
			},
		}},
		Subtotal:   "600.00",
		Tax:        "0.00",
		Total:      "600.00",
		AmountPaid: "0.00",
		AmountDue:  "600.00",
		Notes:      "Thank you",
	}

	reader, err := New().GenerateInvoice(context.Background(), data)
	require.NoError(t, err)
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body[:4]))
}

func TestGenerateInvoiceWithoutSections(t *testing.T) {
	reader, err := New().GenerateInvoice(context.Background(), InvoiceData{InvoiceNumber: "X-1"})
	require.NoError(t, err)
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}
