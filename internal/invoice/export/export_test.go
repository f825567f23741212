package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	customerdomain "github.com/smallbiznis/hourbill/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	"github.com/smallbiznis/hourbill/internal/pricing/calculator"
	pricingdomain "github.com/smallbiznis/hourbill/internal/pricing/domain"
	"github.com/smallbiznis/hourbill/internal/providers/pdf"
	workitemdomain "github.com/smallbiznis/hourbill/internal/workitem/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// julyDetail is 3h regular, 2h same-day and 1h emergency with a 2h pool, plus hosting.
func julyDetail() invoicedomain.InvoiceDetail {
	policy := pricingdomain.DefaultPolicy()
	policy.FreeCredits.PoolHours = d("2")
	start := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	breakdown := calculator.Calculate([]calculator.Entry{
		{Urgency: "LOW", Hours: d("3")},
		{Urgency: "MEDIUM", Hours: d("2")},
		{Urgency: "HIGH", Hours: d("1")},
	}, start, policy)

	items := []invoicedomain.InvoiceItem{}
	for i, line := range breakdown.Lines {
		items = append(items, invoicedomain.InvoiceItem{
			ID:          snowflake.ID(100 + i),
			ItemType:    invoicedomain.ItemTypeSupport,
			Tier:        line.Tier,
			Description: line.Tier.Label(),
			Quantity:    line.BillableHours,
			UnitPrice:   line.Rate,
			Amount:      line.Amount,
			SortOrder:   i,
			RequestIDs:  datatypes.NewJSONSlice([]snowflake.ID{snowflake.ID(10 + i)}),
		})
	}
	items = append(items,
		invoicedomain.InvoiceItem{ID: 200, ItemType: invoicedomain.ItemTypeSupport, Adjustment: true, Description: "Free support credits applied", Quantity: d("2"), SortOrder: 3},
		invoicedomain.InvoiceItem{ID: 201, ItemType: invoicedomain.ItemTypeHosting, Description: "Hosting", Quantity: d("1"), UnitPrice: d("50"), Amount: d("50"), SortOrder: 4},
	)

	taxRate := d("0.1")
	totals := invoicedomain.ComputeTotals(items, taxRate)
	return invoicedomain.InvoiceDetail{
		Invoice: invoicedomain.Invoice{
			ID:              1,
			CustomerID:      2,
			InvoiceNumber:   "ACME-2025-004",
			PeriodStart:     start,
			PeriodEnd:       time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC),
			InvoiceDate:     time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC),
			DueDate:         time.Date(2025, time.August, 31, 0, 0, 0, 0, time.UTC),
			Status:          invoicedomain.StatusSent,
			Subtotal:        totals.Subtotal,
			TaxRate:         taxRate,
			TaxAmount:       totals.TaxAmount,
			Total:           totals.Total,
			AmountPaid:      d("100"),
			BillingSnapshot: datatypes.NewJSONType(invoicedomain.BillingSnapshot{Breakdown: breakdown}),
			Items:           items,
		},
		Customer: customerdomain.Customer{ID: 2, Name: "Acme Ltd", Email: "billing@acme.test"},
		Requests: []workitemdomain.WorkItem{{
			ID:             10,
			Date:           time.Date(2025, time.July, 2, 0, 0, 0, 0, time.UTC),
			Description:    "Fix form",
			Category:       "Support",
			Urgency:        workitemdomain.UrgencyLow,
			EstimatedHours: decimal.NewNullDecimal(d("3")),
		}},
	}
}

func readCSV(t *testing.T, raw []byte) [][]string {
	t.Helper()
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func findRow(rows [][]string, first string) []string {
	for _, row := range rows {
		if len(row) > 0 && row[0] == first {
			return row
		}
	}
	return nil
}

func TestBuildSectionsShowFreeCreditAsDisplayLine(t *testing.T) {
	doc := Build(julyDetail())

	require.Len(t, doc.Sections, 2)
	support := doc.Sections[0]
	assert.Equal(t, "Support", support.Title)
	require.Len(t, support.Lines, 4)

	// Regular at gross 3h x 150, then the credit line worth 2h of regular.
	assert.Equal(t, "3.00", support.Lines[0].Quantity.StringFixed(2))
	assert.Equal(t, "450.00", money(support.Lines[0].Amount))
	assert.Equal(t, "-300.00", money(support.Lines[3].Amount))
	assert.Equal(t, "750.00", money(support.Subtotal))

	lineSum := decimal.Zero
	for _, line := range support.Lines {
		lineSum = lineSum.Add(line.Amount)
	}
	assert.True(t, lineSum.Equal(support.Subtotal))

	assert.Equal(t, "Hosting", doc.Sections[1].Title)
	assert.Equal(t, "800.00", doc.Totals.Subtotal)
	assert.Equal(t, "80.00", doc.Totals.TaxAmount)
	assert.Equal(t, "880.00", doc.Totals.Total)
	assert.Equal(t, "780.00", doc.Totals.BalanceDue)
	assert.Equal(t, "300.00", doc.Totals.FreeCreditValue)
}

func TestWriteAccountingCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAccountingCSV(&buf, Build(julyDetail())))
	rows := readCSV(t, buf.Bytes())

	assert.Equal(t, []string{"Invoice Number", "ACME-2025-004"}, rows[0])
	assert.Equal(t, "750.00", findRow(rows, "Support Subtotal")[3])
	assert.Equal(t, "50.00", findRow(rows, "Hosting Subtotal")[3])
	assert.Equal(t, "-300.00", findRow(rows, "Free support credits (2.00 hours)")[3])
	assert.Equal(t, "880.00", findRow(rows, "Total")[3])
	assert.Equal(t, "100.00", findRow(rows, "Amount Paid")[3])
	assert.Equal(t, "780.00", findRow(rows, "Balance Due")[3])
	assert.Nil(t, findRow(rows, "Free support credits applied"), "stored adjustment row is replaced by the display line")
}

func TestWriteFlatCSVOnlyPositiveItems(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFlatCSV(&buf, Build(julyDetail())))
	rows := readCSV(t, buf.Bytes())

	require.Len(t, rows, 5)
	assert.Equal(t, flatHeader, rows[0])
	for _, row := range rows[1:] {
		assert.Equal(t, "ACME-2025-004", row[0])
		assert.Equal(t, "Acme Ltd", row[4])
	}
	assert.Equal(t, "hosting", rows[4][5])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, Build(julyDetail())))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.ElementsMatch(t, []string{"invoice", "customer", "items", "requests", "totals"}, keys(decoded))
	assert.Equal(t, "ACME-2025-004", decoded["invoice"].(map[string]any)["invoice_number"])
	assert.Len(t, decoded["items"], 5)
	assert.Equal(t, "880.00", decoded["totals"].(map[string]any)["total"])
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for key := range m {
		out = append(out, key)
	}
	return out
}

type invoiceSvcMock struct {
	mock.Mock
	invoicedomain.Service
}

func (m *invoiceSvcMock) GetInvoice(ctx context.Context, id string) (invoicedomain.InvoiceDetail, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(invoicedomain.InvoiceDetail), args.Error(1)
}

func TestExporterFormats(t *testing.T) {
	svc := &invoiceSvcMock{}
	svc.On("GetInvoice", mock.Anything, "1").Return(julyDetail(), nil)
	svc.On("GetInvoice", mock.Anything, "404").Return(invoicedomain.InvoiceDetail{}, invoicedomain.ErrInvoiceNotFound)

	exporter := NewExporter(Params{Log: zap.NewNop(), InvoiceSvc: svc, PDF: pdf.New()})

	file, err := exporter.Export(context.Background(), "1", FormatAccountingCSV)
	require.NoError(t, err)
	assert.Equal(t, "ACME-2025-004.csv", file.Filename)
	assert.True(t, strings.HasPrefix(file.ContentType, "text/csv"))

	file, err = exporter.Export(context.Background(), "1", FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF")))

	_, err = exporter.Export(context.Background(), "404", FormatJSON)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
	svc.AssertExpectations(t)

	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidFormat)
	format, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatAccountingCSV, format)
}
