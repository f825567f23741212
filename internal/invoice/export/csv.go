package export

import (
	"encoding/csv"
	"io"

	"github.com/shopspring/decimal"
)

// WriteAccountingCSV writes the header block, one block per item section with its own
// subtotal, then the grand totals.
func WriteAccountingCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"Invoice Number", doc.Header.InvoiceNumber},
		{"Status", doc.Header.Status},
		{"Invoice Date", doc.Header.InvoiceDate},
		{"Due Date", doc.Header.DueDate},
		{"Service Period", doc.Header.PeriodStart + " to " + doc.Header.PeriodEnd},
		{"Customer", doc.Customer.Name},
		{"Email", doc.Customer.Email},
		{},
	}
	for _, section := range doc.Sections {
		rows = append(rows,
			[]string{section.Title},
			[]string{"Description", "Quantity", "Unit Price", "Amount"},
		)
		for _, line := range section.Lines {
			rows = append(rows, []string{line.Description, line.Quantity.StringFixed(2), price(line.UnitPrice), money(line.Amount)})
		}
		rows = append(rows, []string{section.Title + " Subtotal", "", "", money(section.Subtotal)}, []string{})
	}
	rows = append(rows,
		[]string{"Subtotal", "", "", doc.Totals.Subtotal},
		[]string{"Tax (" + doc.Totals.TaxRate + ")", "", "", doc.Totals.TaxAmount},
		[]string{"Total", "", "", doc.Totals.Total},
		[]string{"Amount Paid", "", "", doc.Totals.AmountPaid},
		[]string{"Balance Due", "", "", doc.Totals.BalanceDue},
	)
	if doc.Header.Notes != "" {
		rows = append(rows, []string{}, []string{"Notes", doc.Header.Notes})
	}

	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

var flatHeader = []string{
	"invoice_number", "invoice_date", "due_date", "status", "customer",
	"item_type", "description", "quantity", "unit_price", "amount",
}

// WriteFlatCSV writes one row per positive-amount item with the invoice fields repeated.
func WriteFlatCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(flatHeader); err != nil {
		return err
	}
	for _, item := range doc.Items {
		amount, err := decimal.NewFromString(item.Amount)
		if err != nil || !amount.IsPositive() {
			continue
		}
		if err := cw.Write([]string{
			doc.Header.InvoiceNumber,
			doc.Header.InvoiceDate,
			doc.Header.DueDate,
			doc.Header.Status,
			doc.Customer.Name,
			item.Type,
			item.Description,
			item.Quantity,
			item.UnitPrice,
			item.Amount,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func price(v decimal.Decimal) string {
	if v.IsZero() {
		return ""
	}
	return money(v)
}
