// Package export renders fully loaded invoices for accountants and customers.
//
// Everything here is read-only. The free-credit line is a display artifact computed from
// the billing snapshot and never exists as a stored item.
package export

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	"github.com/smallbiznis/hourbill/internal/pricing/calculator"
)

// Document is the format-neutral view every exporter renders from.
type Document struct {
	Header   Header    `json:"invoice"`
	Customer Party     `json:"customer"`
	Items    []Item    `json:"items"`
	Requests []Request `json:"requests"`
	Totals   Totals    `json:"totals"`

	Sections []Section `json:"-"`
}

type Header struct {
	ID            string `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
	Status        string `json:"status"`
	InvoiceDate   string `json:"invoice_date"`
	DueDate       string `json:"due_date"`
	PeriodStart   string `json:"period_start"`
	PeriodEnd     string `json:"period_end"`
	PaymentDate   string `json:"payment_date,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type Party struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Item is a stored invoice line with money rendered to cents.
type Item struct {
	Type        string   `json:"type"`
	Tier        string   `json:"tier,omitempty"`
	Description string   `json:"description"`
	Quantity    string   `json:"quantity"`
	UnitPrice   string   `json:"unit_price"`
	Amount      string   `json:"amount"`
	RequestIDs  []string `json:"request_ids"`
}

type Request struct {
	ID             string `json:"id"`
	Date           string `json:"date"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	Urgency        string `json:"urgency"`
	EstimatedHours string `json:"estimated_hours"`
}

type Totals struct {
	Subtotal        string `json:"subtotal"`
	TaxRate         string `json:"tax_rate"`
	TaxAmount       string `json:"tax_amount"`
	Total           string `json:"total"`
	AmountPaid      string `json:"amount_paid"`
	BalanceDue      string `json:"balance_due"`
	FreeCreditHours string `json:"free_credit_hours"`
	FreeCreditValue string `json:"free_credit_value"`
}

// Line is one row of an accounting section.
type Line struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
}

type Section struct {
	Type     invoicedomain.ItemType
	Title    string
	Lines    []Line
	Subtotal decimal.Decimal
}

var sectionTitles = map[invoicedomain.ItemType]string{
	invoicedomain.ItemTypeSupport: "Support",
	invoicedomain.ItemTypeProject: "Projects",
	invoicedomain.ItemTypeHosting: "Hosting",
	invoicedomain.ItemTypeOther:   "Other",
}

func money(v decimal.Decimal) string { return calculator.RoundMoney(v).StringFixed(2) }

func date(t time.Time) string { return t.UTC().Format(time.DateOnly) }

// Build assembles the document for an invoice loaded with its items, customer and requests.
func Build(detail invoicedomain.InvoiceDetail) Document {
	invoice := detail.Invoice
	breakdown := invoice.BillingSnapshot.Data().Breakdown

	doc := Document{
		Header: Header{
			ID:            invoice.ID.String(),
			InvoiceNumber: invoice.InvoiceNumber,
			Status:        string(invoice.Status),
			InvoiceDate:   date(invoice.InvoiceDate),
			DueDate:       date(invoice.DueDate),
			PeriodStart:   date(invoice.PeriodStart),
			PeriodEnd:     date(invoice.PeriodEnd),
			Notes:         invoice.Notes,
		},
		Customer: Party{
			ID:      detail.Customer.ID.String(),
			Name:    detail.Customer.Name,
			Email:   detail.Customer.Email,
			Phone:   detail.Customer.Phone,
			Address: detail.Customer.Address,
		},
		Items:    make([]Item, 0, len(invoice.Items)),
		Requests: make([]Request, 0, len(detail.Requests)),
		Totals: Totals{
			Subtotal:        money(invoice.Subtotal),
			TaxRate:         invoice.TaxRate.String(),
			TaxAmount:       money(invoice.TaxAmount),
			Total:           money(invoice.Total),
			AmountPaid:      money(invoice.AmountPaid),
			BalanceDue:      money(invoice.Balance()),
			FreeCreditHours: breakdown.FreeHoursApplied.StringFixed(2),
			FreeCreditValue: money(breakdown.FreeCreditValue()),
		},
	}
	if invoice.PaymentDate != nil {
		doc.Header.PaymentDate = date(*invoice.PaymentDate)
	}

	for _, item := range invoice.Items {
		ids := make([]string, 0, len(item.RequestIDs))
		for _, id := range item.RequestIDs {
			ids = append(ids, id.String())
		}
		doc.Items = append(doc.Items, Item{
			Type:        string(item.ItemType),
			Tier:        string(item.Tier),
			Description: item.Description,
			Quantity:    item.Quantity.StringFixed(2),
			UnitPrice:   money(item.UnitPrice),
			Amount:      money(item.Amount),
			RequestIDs:  ids,
		})
	}

	for _, request := range detail.Requests {
		hours := ""
		if request.EstimatedHours.Valid {
			hours = request.EstimatedHours.Decimal.StringFixed(2)
		}
		doc.Requests = append(doc.Requests, Request{
			ID:             request.ID.String(),
			Date:           date(request.Date),
			Description:    request.Description,
			Category:       request.Category,
			Urgency:        string(request.Urgency),
			EstimatedHours: hours,
		})
	}

	doc.Sections = sections(invoice.Items, breakdown)
	return doc
}

// sections groups items by type. Generated tier rows are shown at their gross value and
// followed by a negative free-credit line, so each section subtotal still equals the sum
// of its stored positive amounts.
func sections(items []invoicedomain.InvoiceItem, breakdown calculator.Breakdown) []Section {
	byType := map[invoicedomain.ItemType]*Section{}
	for _, item := range items {
		if item.Adjustment {
			continue
		}
		section := byType[item.ItemType]
		if section == nil {
			section = &Section{Type: item.ItemType, Title: sectionTitles[item.ItemType]}
			byType[item.ItemType] = section
		}

		line := Line{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
		}
		if item.Tier != "" {
			tier := breakdown.Line(item.Tier)
			line.Quantity = line.Quantity.Add(tier.FreeHours)
			line.Amount = line.Amount.Add(tier.GrossAmount.Sub(tier.Amount))
		}
		section.Lines = append(section.Lines, line)
		if item.Amount.IsPositive() {
			section.Subtotal = section.Subtotal.Add(item.Amount)
		}
	}

	if credit := breakdown.FreeCreditValue(); credit.IsPositive() {
		if support := byType[invoicedomain.ItemTypeSupport]; support != nil {
			support.Lines = append(support.Lines, Line{
				Description: fmt.Sprintf("Free support credits (%s hours)", breakdown.FreeHoursApplied.StringFixed(2)),
				Quantity:    breakdown.FreeHoursApplied,
				UnitPrice:   decimal.Zero,
				Amount:      credit.Neg(),
			})
		}
	}

	out := make([]Section, 0, len(byType))
	for _, itemType := range invoicedomain.ItemTypes {
		if section := byType[itemType]; section != nil {
			section.Subtotal = calculator.RoundMoney(section.Subtotal)
			out = append(out, *section)
		}
	}
	return out
}
