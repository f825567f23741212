package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type InvoiceData struct {
	IssuerName    string
	InvoiceNumber string
	Status        string
	IssueDate     string
	DueDate       string
	ServicePeriod string

	BillToName    string
	BillToAddress string
	BillToEmail   string

	Sections []Section

	Subtotal   string
	Tax        string
	Total      string
	AmountPaid string
	AmountDue  string
	Notes      string
}

type Section struct {
	Title    string
	Items    []InvoiceItem
	Subtotal string
}

type InvoiceItem struct {
	Description string
	Qty         string
	UnitPrice   string
	Amount      string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, invoice InvoiceData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, invoice.IssuerName, props.Text{Size: 16, Style: fontstyle.Bold}),
		text.NewCol(4, "Invoice", props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Right}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+invoice.IssueDate, props.Text{Top: 4}),
			text.New("Date due: "+invoice.DueDate, props.Text{Top: 8}),
			text.New("Service period: "+invoice.ServicePeriod, props.Text{Top: 12}),
			text.New("Status: "+invoice.Status, props.Text{Top: 16}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(invoice.BillToName, props.Text{Top: 5}),
			text.New(invoice.BillToAddress, props.Text{Top: 9}),
			text.New(invoice.BillToEmail, props.Text{Top: 13}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, invoice.AmountDue+" due "+invoice.DueDate, props.Text{Size: 14, Style: fontstyle.Bold, Top: 3}),
	)

	for _, section := range invoice.Sections {
		m.AddRow(10, text.NewCol(12, section.Title, props.Text{Size: 11, Style: fontstyle.Bold, Top: 3}))
		m.AddRow(8,
			text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
			text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
			text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		)
		m.AddRow(1, line.NewCol(12))
		for _, item := range section.Items {
			m.AddRow(8,
				text.NewCol(6, item.Description, props.Text{Size: 9}),
				text.NewCol(2, item.Qty, props.Text{Size: 9, Align: align.Right}),
				text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
				text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
			)
		}
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, section.Title+" subtotal", props.Text{Size: 9, Style: fontstyle.Italic}),
			text.NewCol(2, section.Subtotal, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(4, line.NewCol(12))
	for _, total := range []struct {
		label string
		value string
		style fontstyle.Type
	}{
		{"Subtotal", invoice.Subtotal, fontstyle.Normal},
		{"Tax", invoice.Tax, fontstyle.Normal},
		{"Total", invoice.Total, fontstyle.Normal},
		{"Amount paid", invoice.AmountPaid, fontstyle.Normal},
		{"Amount due", invoice.AmountDue, fontstyle.Bold},
	} {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, total.label, props.Text{Size: 9, Style: total.style}),
			text.NewCol(2, total.value, props.Text{Size: 9, Style: total.style, Align: align.Right}),
		)
	}

	if invoice.Notes != "" {
		m.AddRow(16, text.NewCol(12, invoice.Notes, props.Text{Size: 9, Top: 6}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
