package export

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/smallbiznis/hourbill/internal/config"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	"github.com/smallbiznis/hourbill/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Format string

const (
	FormatAccountingCSV Format = "csv"
	FormatFlatCSV       Format = "flat"
	FormatJSON          Format = "json"
	FormatPDF           Format = "pdf"
)

func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatAccountingCSV, "":
		return FormatAccountingCSV, nil
	case FormatFlatCSV:
		return FormatFlatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", invoicedomain.ErrInvalidFormat
	}
}

// File is a rendered export ready to be served.
type File struct {
	Filename    string
	ContentType string
	Body        []byte
}

type Params struct {
	fx.In

	Log        *zap.Logger
	InvoiceSvc invoicedomain.Service
	PDF        pdf.Provider
	Cfg        config.Config
}

type Exporter struct {
	log        *zap.Logger
	invoiceSvc invoicedomain.Service
	pdf        pdf.Provider
	issuer     string
}

func NewExporter(p Params) *Exporter {
	return &Exporter{
		log:        p.Log.Named("invoice.export"),
		invoiceSvc: p.InvoiceSvc,
		pdf:        p.PDF,
		issuer:     p.Cfg.AppName,
	}
}

func (e *Exporter) Export(ctx context.Context, invoiceID string, format Format) (File, error) {
	detail, err := e.invoiceSvc.GetInvoice(ctx, invoiceID)
	if err != nil {
		return File{}, err
	}
	doc := Build(detail)
	base := doc.Header.InvoiceNumber

	var buf bytes.Buffer
	switch format {
	case FormatAccountingCSV:
		err = WriteAccountingCSV(&buf, doc)
		return e.file(base+".csv", "text/csv; charset=utf-8", buf, err)
	case FormatFlatCSV:
		err = WriteFlatCSV(&buf, doc)
		return e.file(base+"-items.csv", "text/csv; charset=utf-8", buf, err)
	case FormatJSON:
		err = WriteJSON(&buf, doc)
		return e.file(base+".json", "application/json", buf, err)
	case FormatPDF:
		reader, err := e.pdf.GenerateInvoice(ctx, PDFData(doc, e.issuer))
		if err == nil {
			_, err = io.Copy(&buf, reader)
		}
		return e.file(base+".pdf", "application/pdf", buf, err)
	default:
		return File{}, invoicedomain.ErrInvalidFormat
	}
}

func (e *Exporter) file(name, contentType string, buf bytes.Buffer, err error) (File, error) {
	if err != nil {
		e.log.Error("failed to render invoice export", zap.String("file", name), zap.Error(err))
		return File{}, &invoicedomain.PersistenceError{Op: "export", Err: err}
	}
	return File{Filename: name, ContentType: contentType, Body: buf.Bytes()}, nil
}

// PDFData maps the document onto the PDF layout.
func PDFData(doc Document, issuer string) pdf.InvoiceData {
	data := pdf.InvoiceData{
		IssuerName:    issuer,
		InvoiceNumber: doc.Header.InvoiceNumber,
		Status:        doc.Header.Status,
		IssueDate:     doc.Header.InvoiceDate,
		DueDate:       doc.Header.DueDate,
		ServicePeriod: doc.Header.PeriodStart + " to " + doc.Header.PeriodEnd,
		BillToName:    doc.Customer.Name,
		BillToAddress: doc.Customer.Address,
		BillToEmail:   doc.Customer.Email,
		Subtotal:      doc.Totals.Subtotal,
		Tax:           doc.Totals.TaxAmount,
		Total:         doc.Totals.Total,
		AmountPaid:    doc.Totals.AmountPaid,
		AmountDue:     doc.Totals.BalanceDue,
		Notes:         doc.Header.Notes,
	}
	for _, section := range doc.Sections {
		out := pdf.Section{Title: section.Title, Subtotal: money(section.Subtotal)}
		for _, line := range section.Lines {
			out.Items = append(out.Items, pdf.InvoiceItem{
				Description: line.Description,
				Qty:         line.Quantity.StringFixed(2),
				UnitPrice:   price(line.UnitPrice),
				Amount:      money(line.Amount),
			})
		}
		data.Sections = append(data.Sections, out)
	}
	return data
}
