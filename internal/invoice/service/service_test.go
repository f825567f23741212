package service_test

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/hourbill/internal/clock"
	"github.com/smallbiznis/hourbill/internal/config"
	customerdomain "github.com/smallbiznis/hourbill/internal/customer/domain"
	customerrepo "github.com/smallbiznis/hourbill/internal/customer/repository"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/hourbill/internal/invoice/repository"
	"github.com/smallbiznis/hourbill/internal/invoice/sequence"
	"github.com/smallbiznis/hourbill/internal/invoice/service"
	pricingdomain "github.com/smallbiznis/hourbill/internal/pricing/domain"
	"github.com/smallbiznis/hourbill/internal/testutil"
	workitemdomain "github.com/smallbiznis/hourbill/internal/workitem/domain"
	workitemrepo "github.com/smallbiznis/hourbill/internal/workitem/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type auditEntry struct {
	action  string
	outcome string
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (r *recordingAudit) AuditLog(_ context.Context, action, _ string, _ *string, outcome string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, auditEntry{action: action, outcome: outcome})
	return nil
}

func (r *recordingAudit) has(action, outcome string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.action == action && entry.outcome == outcome {
			return true
		}
	}
	return false
}

type fixture struct {
	ctx       context.Context
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	audit     *recordingAudit
	customers customerdomain.Repository
	workItems workitemdomain.Repository
	invoices  invoicedomain.Repository
	svc       invoicedomain.Service
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T, policy pricingdomain.Policy) *fixture {
	t.Helper()

	f := &fixture{
		ctx:       context.Background(),
		db:        testutil.NewDB(t),
		node:      testutil.NewNode(t),
		clock:     clock.NewFakeClock(time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC)),
		audit:     &recordingAudit{},
		customers: customerrepo.Provide(),
		workItems: workitemrepo.Provide(),
		invoices:  invoicerepo.Provide(),
	}
	f.svc = service.NewService(service.Params{
		DB:           f.db,
		Log:          zap.NewNop(),
		GenID:        f.node,
		Repo:         f.invoices,
		CustomerRepo: f.customers,
		WorkItemRepo: f.workItems,
		Pricing:      pricingdomain.NewStaticSource(policy, "Internal"),
		Allocator:    sequence.NewAllocator(),
		Lock:         sequence.NoopLock{},
		Clock:        f.clock,
		AuditSvc:     f.audit,
		Cfg: config.Config{Billing: config.BillingConfig{
			DefaultPaymentTerms:  30,
			DefaultTaxRate:       "0",
			DefaultInvoicePrefix: "INV",
		}},
	})
	return f
}

func (f *fixture) customer(t *testing.T, prefix string) customerdomain.Customer {
	t.Helper()
	now := f.clock.Now()
	c := customerdomain.Customer{
		ID:            f.node.Generate(),
		Name:          prefix + " Ltd",
		Email:         "billing@" + prefix + ".test",
		InvoicePrefix: prefix,
		PaymentTerms:  30,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.customers.Insert(f.ctx, f.db, &c))
	return c
}

func (f *fixture) workItem(t *testing.T, customerID snowflake.ID, date time.Time, urgency workitemdomain.Urgency, hours string) workitemdomain.WorkItem {
	t.Helper()
	now := f.clock.Now()
	item := workitemdomain.WorkItem{
		ID:          f.node.Generate(),
		CustomerID:  customerID,
		Date:        date,
		Description: "support " + string(urgency),
		Category:    "Support",
		Urgency:     urgency,
		Status:      workitemdomain.StatusActive,
		Source:      workitemdomain.SourceManual,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if hours != "" {
		item.EstimatedHours = decimal.NewNullDecimal(decimal.RequireFromString(hours))
	}
	require.NoError(t, f.workItems.Insert(f.ctx, f.db, &item))
	return item
}

func (f *fixture) generate(t *testing.T, customerID snowflake.ID, start, end string, extra ...invoicedomain.AdditionalItem) invoicedomain.Invoice {
	t.Helper()
	invoice, err := f.svc.GenerateInvoice(f.ctx, invoicedomain.GenerateInvoiceRequest{
		CustomerID:      customerID.String(),
		PeriodStart:     start,
		PeriodEnd:       end,
		AdditionalItems: extra,
	})
	require.NoError(t, err)
	return invoice
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) invoicedomain.InvoiceDetail {
	t.Helper()
	detail, err := f.svc.GetInvoice(f.ctx, id.String())
	require.NoError(t, err)
	return detail
}

func (f *fixture) reloadWorkItem(t *testing.T, id snowflake.ID) workitemdomain.WorkItem {
	t.Helper()
	item, err := f.workItems.FindByID(f.ctx, f.db, id)
	require.NoError(t, err)
	require.NotNil(t, item)
	return *item
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}

// assertTotalsConsistent checks the stored totals against the stored items.
func assertTotalsConsistent(t *testing.T, f *fixture, id snowflake.ID) {
	t.Helper()
	detail := f.reload(t, id)
	subtotal := decimal.Zero
	for _, item := range detail.Invoice.Items {
		if item.Amount.IsPositive() {
			subtotal = subtotal.Add(item.Amount)
		}
	}
	invoice := detail.Invoice
	assert.True(t, subtotal.Equal(invoice.Subtotal), "subtotal %s != sum %s", invoice.Subtotal, subtotal)
	assert.True(t, invoice.TaxAmount.Equal(invoice.Subtotal.Mul(invoice.TaxRate).Round(2)), "tax %s", invoice.TaxAmount)
	assert.True(t, invoice.Total.Equal(invoice.Subtotal.Add(invoice.TaxAmount)), "total %s", invoice.Total)
}

func juneItems(t *testing.T, f *fixture, customerID snowflake.ID) []workitemdomain.WorkItem {
	return []workitemdomain.WorkItem{
		f.workItem(t, customerID, day(2025, time.June, 3), workitemdomain.UrgencyLow, "2"),
		f.workItem(t, customerID, day(2025, time.June, 10), workitemdomain.UrgencyMedium, "1"),
		f.workItem(t, customerID, day(2025, time.June, 20), workitemdomain.UrgencyHigh, "0.5"),
	}
}

func TestGenerateInvoiceJuneScenario(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	items := juneItems(t, f, customer.ID)

	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")

	assert.Equal(t, "ACME-2025-001", invoice.InvoiceNumber)
	assert.Equal(t, invoicedomain.StatusDraft, invoice.Status)
	assertMoney(t, "600.00", invoice.Subtotal)
	assertMoney(t, "0.00", invoice.TaxAmount)
	assertMoney(t, "600.00", invoice.Total)
	assert.Equal(t, day(2025, time.July, 31), invoice.DueDate.UTC())

	require.Len(t, invoice.Items, 3)
	for _, item := range invoice.Items {
		assert.False(t, item.Adjustment)
		assert.Len(t, item.RequestIDs, 1)
	}
	assertMoney(t, "300.00", invoice.Items[0].Amount)
	assertMoney(t, "175.00", invoice.Items[1].Amount)
	assertMoney(t, "125.00", invoice.Items[2].Amount)

	for _, item := range items {
		linked := f.reloadWorkItem(t, item.ID)
		require.NotNil(t, linked.InvoiceID)
		assert.Equal(t, invoice.ID, *linked.InvoiceID)
	}
	assertTotalsConsistent(t, f, invoice.ID)
	assert.True(t, f.audit.has("invoice.generate", "success"))

	snapshot := invoice.BillingSnapshot.Data()
	assert.False(t, snapshot.Breakdown.CreditsEligible)
	assertMoney(t, "150.00", snapshot.Breakdown.Policy.Rates.Regular)
}

func TestGenerateInvoiceAppliesCreditsCheapestFirst(t *testing.T) {
	policy := pricingdomain.DefaultPolicy()
	policy.FreeCredits.PoolHours = decimal.NewFromInt(2)
	f := newFixture(t, policy)
	customer := f.customer(t, "ACME")
	f.workItem(t, customer.ID, day(2025, time.July, 2), workitemdomain.UrgencyLow, "3")
	f.workItem(t, customer.ID, day(2025, time.July, 3), workitemdomain.UrgencyMedium, "2")
	f.workItem(t, customer.ID, day(2025, time.July, 4), workitemdomain.UrgencyHigh, "1")

	invoice := f.generate(t, customer.ID, "2025-07-01", "2025-07-31")

	// 1h regular + 2h same-day + 1h emergency billable.
	assertMoney(t, "750.00", invoice.Subtotal)
	require.Len(t, invoice.Items, 4)
	credit := invoice.Items[3]
	assert.True(t, credit.Adjustment)
	assertMoney(t, "0.00", credit.Amount)
	assert.Equal(t, "2.00", credit.Quantity.StringFixed(2))
	assertTotalsConsistent(t, f, invoice.ID)
}

func TestGenerateInvoiceFullPoolLeavesOnlyManualItems(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	f.workItem(t, customer.ID, day(2025, time.July, 2), workitemdomain.UrgencyLow, "3")
	f.workItem(t, customer.ID, day(2025, time.July, 3), workitemdomain.UrgencyHigh, "1")

	invoice := f.generate(t, customer.ID, "2025-07-01", "2025-07-31", invoicedomain.AdditionalItem{
		ItemType:    "hosting",
		Description: "Managed hosting",
		Quantity:    "1",
		UnitPrice:   "49.99",
	})

	assertMoney(t, "49.99", invoice.Subtotal)
	assertMoney(t, "49.99", invoice.Total)
	assertTotalsConsistent(t, f, invoice.ID)
}

func TestGenerateInvoiceValidation(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")

	_, err := f.svc.GenerateInvoice(f.ctx, invoicedomain.GenerateInvoiceRequest{
		CustomerID:  customer.ID.String(),
		PeriodStart: "2025-06-01",
		PeriodEnd:   "2025-06-30",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrNoBillableItems)
	assert.True(t, f.audit.has("invoice.generate", "failure"))

	_, err = f.svc.GenerateInvoice(f.ctx, invoicedomain.GenerateInvoiceRequest{
		CustomerID:  customer.ID.String(),
		PeriodStart: "2025-06-30",
		PeriodEnd:   "2025-06-01",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPeriod)

	_, err = f.svc.GenerateInvoice(f.ctx, invoicedomain.GenerateInvoiceRequest{
		CustomerID:  "nope",
		PeriodStart: "2025-06-01",
		PeriodEnd:   "2025-06-30",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidCustomer)

	_, err = f.svc.GenerateInvoice(f.ctx, invoicedomain.GenerateInvoiceRequest{
		CustomerID:  f.node.Generate().String(),
		PeriodStart: "2025-06-01",
		PeriodEnd:   "2025-06-30",
	})
	assert.ErrorIs(t, err, customerdomain.ErrNotFound)

	f.workItem(t, customer.ID, day(2025, time.June, 5), workitemdomain.UrgencyLow, "")
	_, err = f.svc.GenerateInvoice(f.ctx, invoicedomain.GenerateInvoiceRequest{
		CustomerID:  customer.ID.String(),
		PeriodStart: "2025-06-01",
		PeriodEnd:   "2025-06-30",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrMissingHours)
}

func TestGenerateInvoiceSkipsExcludedCategories(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	internal := f.workItem(t, customer.ID, day(2025, time.June, 5), workitemdomain.UrgencyLow, "4")
	require.NoError(t, f.db.Model(&workitemdomain.WorkItem{}).Where("id = ?", internal.ID).Update("category", "Internal").Error)
	shouted := f.workItem(t, customer.ID, day(2025, time.June, 5), workitemdomain.UrgencyLow, "2")
	require.NoError(t, f.db.Model(&workitemdomain.WorkItem{}).Where("id = ?", shouted.ID).Update("category", "INTERNAL").Error)
	f.workItem(t, customer.ID, day(2025, time.June, 6), workitemdomain.UrgencyLow, "1")

	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")

	assertMoney(t, "150.00", invoice.Subtotal)
	assert.Nil(t, f.reloadWorkItem(t, internal.ID).InvoiceID)
	assert.Nil(t, f.reloadWorkItem(t, shouted.ID).InvoiceID)
}

func TestBillingSummaryDoesNotWrite(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	items := juneItems(t, f, customer.ID)

	summary, err := f.svc.GenerateBillingSummary(f.ctx, invoicedomain.BillingSummaryRequest{
		CustomerID:  customer.ID.String(),
		PeriodStart: "2025-06-01",
		PeriodEnd:   "2025-06-30",
	})
	require.NoError(t, err)
	assertMoney(t, "600.00", summary.Breakdown.Subtotal)
	assert.Len(t, summary.RequestIDs, 3)

	for _, item := range items {
		assert.Nil(t, f.reloadWorkItem(t, item.ID).InvoiceID)
	}
	var count int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestInvoiceNumbersAreMonotonicPerSeries(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	acme := f.customer(t, "ACME")
	globex := f.customer(t, "GLOBEX")
	f.workItem(t, acme.ID, day(2025, time.May, 5), workitemdomain.UrgencyLow, "1")
	f.workItem(t, acme.ID, day(2025, time.June, 5), workitemdomain.UrgencyLow, "1")
	f.workItem(t, globex.ID, day(2025, time.June, 5), workitemdomain.UrgencyLow, "1")

	first := f.generate(t, acme.ID, "2025-05-01", "2025-05-31")
	second := f.generate(t, acme.ID, "2025-06-01", "2025-06-30")
	other := f.generate(t, globex.ID, "2025-06-01", "2025-06-30")

	assert.Equal(t, "ACME-2025-001", first.InvoiceNumber)
	assert.Equal(t, "ACME-2025-002", second.InvoiceNumber)
	assert.Equal(t, "GLOBEX-2025-001", other.InvoiceNumber)
}

// failInvoiceInserts makes the next n invoice inserts fail with a duplicate key.
func failInvoiceInserts(t *testing.T, db *gorm.DB, n int32) {
	t.Helper()
	var remaining atomic.Int32
	remaining.Store(n)
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:duplicate_invoice", func(tx *gorm.DB) {
		if tx.Statement.Table == "invoices" && remaining.Add(-1) >= 0 {
			_ = tx.AddError(gorm.ErrDuplicatedKey)
		}
	}))
}

func TestGenerateInvoiceRetriesOnceOnDuplicateNumber(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	juneItems(t, f, customer.ID)
	failInvoiceInserts(t, f.db, 1)

	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")
	assert.Equal(t, "ACME-2025-001", invoice.InvoiceNumber)
	assertMoney(t, "600.00", invoice.Total)
}

func TestGenerateInvoiceSurfacesRepeatedDuplicate(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	items := juneItems(t, f, customer.ID)
	failInvoiceInserts(t, f.db, 2)

	_, err := f.svc.GenerateInvoice(f.ctx, invoicedomain.GenerateInvoiceRequest{
		CustomerID:  customer.ID.String(),
		PeriodStart: "2025-06-01",
		PeriodEnd:   "2025-06-30",
	})
	var dup *invoicedomain.DuplicateInvoiceNumberError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "ACME-2025-001", dup.Number)
	for _, item := range items {
		assert.Nil(t, f.reloadWorkItem(t, item.ID).InvoiceID)
	}
}

func TestDraftOnlyMutationsFailAfterSend(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	juneItems(t, f, customer.ID)
	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")
	spare := f.workItem(t, customer.ID, day(2025, time.June, 25), workitemdomain.UrgencyLow, "1")

	sent, err := f.svc.SendInvoice(f.ctx, invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	quantity := "10"
	id := invoice.ID.String()
	for i := 0; i < 2; i++ {
		_, err = f.svc.UpdateInvoiceItem(f.ctx, id, invoice.Items[0].ID.String(), invoicedomain.UpdateItemRequest{Quantity: &quantity})
		assert.ErrorIs(t, err, invoicedomain.ErrNotDraft)
		_, err = f.svc.LinkRequest(f.ctx, id, spare.ID.String())
		assert.ErrorIs(t, err, invoicedomain.ErrNotDraft)
		_, err = f.svc.UnlinkRequest(f.ctx, id, invoice.Items[0].RequestIDs[0].String())
		assert.ErrorIs(t, err, invoicedomain.ErrNotDraft)
		_, err = f.svc.RepriceInvoice(f.ctx, id)
		assert.ErrorIs(t, err, invoicedomain.ErrNotDraft)
		assert.ErrorIs(t, f.svc.DeleteInvoice(f.ctx, id), invoicedomain.ErrNotDraft)
	}

	detail := f.reload(t, invoice.ID)
	assertMoney(t, "600.00", detail.Invoice.Total)
	assert.Equal(t, invoicedomain.StatusSent, detail.Invoice.Status)
	assert.Len(t, detail.Requests, 3)
	assert.Nil(t, f.reloadWorkItem(t, spare.ID).InvoiceID)
}

func TestLinkUnlinkRoundTrip(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	juneItems(t, f, customer.ID)
	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")
	late := f.workItem(t, customer.ID, day(2025, time.June, 28), workitemdomain.UrgencyLow, "1.5")

	unbilled, err := f.svc.ListUnbilledRequests(f.ctx, invoice.ID.String())
	require.NoError(t, err)
	require.Len(t, unbilled, 1)
	assert.Equal(t, late.ID, unbilled[0].ID)

	linked, err := f.svc.LinkRequest(f.ctx, invoice.ID.String(), late.ID.String())
	require.NoError(t, err)
	assertMoney(t, "600.00", linked.Total)
	require.NotNil(t, f.reloadWorkItem(t, late.ID).InvoiceID)
	assert.Contains(t, []snowflake.ID(linked.Items[0].RequestIDs), late.ID)

	_, err = f.svc.LinkRequest(f.ctx, invoice.ID.String(), late.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrRequestBilled)

	unlinked, err := f.svc.UnlinkRequest(f.ctx, invoice.ID.String(), late.ID.String())
	require.NoError(t, err)
	assertMoney(t, "600.00", unlinked.Total)
	assert.Nil(t, f.reloadWorkItem(t, late.ID).InvoiceID)
	for _, item := range unlinked.Items {
		assert.NotContains(t, []snowflake.ID(item.RequestIDs), late.ID)
	}

	_, err = f.svc.UnlinkRequest(f.ctx, invoice.ID.String(), late.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrRequestNotLinked)
	assertTotalsConsistent(t, f, invoice.ID)
}

func TestLinkRequestRejectsForeignAndInactiveItems(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	other := f.customer(t, "GLOBEX")
	juneItems(t, f, customer.ID)
	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")

	foreign := f.workItem(t, other.ID, day(2025, time.June, 5), workitemdomain.UrgencyLow, "1")
	_, err := f.svc.LinkRequest(f.ctx, invoice.ID.String(), foreign.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrRequestOtherCustomer)

	ignored := f.workItem(t, customer.ID, day(2025, time.June, 5), workitemdomain.UrgencyLow, "1")
	require.NoError(t, f.workItems.UpdateStatus(f.ctx, f.db, ignored.ID, workitemdomain.StatusIgnored, f.clock.Now()))
	_, err = f.svc.LinkRequest(f.ctx, invoice.ID.String(), ignored.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrRequestInactive)

	_, err = f.svc.LinkRequest(f.ctx, invoice.ID.String(), f.node.Generate().String())
	assert.ErrorIs(t, err, workitemdomain.ErrNotFound)
}

func TestUpdateInvoiceItemRecalculates(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	juneItems(t, f, customer.ID)
	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30", invoicedomain.AdditionalItem{
		ItemType:    "project",
		Description: "Landing page",
		Quantity:    "1",
		UnitPrice:   "400",
	})
	assertMoney(t, "1000.00", invoice.Total)
	project := invoice.Items[len(invoice.Items)-1]
	assert.Equal(t, invoicedomain.ItemTypeProject, project.ItemType)

	quantity, price := "2.5", "100"
	updated, err := f.svc.UpdateInvoiceItem(f.ctx, invoice.ID.String(), project.ID.String(), invoicedomain.UpdateItemRequest{
		Quantity:  &quantity,
		UnitPrice: &price,
	})
	require.NoError(t, err)
	assertMoney(t, "850.00", updated.Subtotal)
	assertTotalsConsistent(t, f, invoice.ID)

	negative := "-1"
	_, err = f.svc.UpdateInvoiceItem(f.ctx, invoice.ID.String(), project.ID.String(), invoicedomain.UpdateItemRequest{Quantity: &negative})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidQuantity)

	_, err = f.svc.UpdateInvoiceItem(f.ctx, invoice.ID.String(), f.node.Generate().String(), invoicedomain.UpdateItemRequest{Quantity: &quantity})
	assert.ErrorIs(t, err, invoicedomain.ErrItemNotFound)
}

func TestUpdateInvoiceItemRejectsCreditRow(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	f.workItem(t, customer.ID, day(2025, time.July, 2), workitemdomain.UrgencyLow, "12")
	invoice := f.generate(t, customer.ID, "2025-07-01", "2025-07-31")
	assertMoney(t, "300.00", invoice.Subtotal)

	idx := slices.IndexFunc(invoice.Items, func(item invoicedomain.InvoiceItem) bool { return item.Adjustment })
	require.GreaterOrEqual(t, idx, 0)
	credit := invoice.Items[idx]

	quantity, price := "1", "100"
	_, err := f.svc.UpdateInvoiceItem(f.ctx, invoice.ID.String(), credit.ID.String(), invoicedomain.UpdateItemRequest{
		Quantity:  &quantity,
		UnitPrice: &price,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrItemReadOnly)

	detail := f.reload(t, invoice.ID)
	assertMoney(t, "300.00", detail.Invoice.Subtotal)
	assertTotalsConsistent(t, f, invoice.ID)
}

func TestMoneyInputsBeyondStoredScaleAreRejected(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	juneItems(t, f, customer.ID)

	generate := func(rate *string, extra invoicedomain.AdditionalItem) error {
		_, err := f.svc.GenerateInvoice(f.ctx, invoicedomain.GenerateInvoiceRequest{
			CustomerID:      customer.ID.String(),
			PeriodStart:     "2025-06-01",
			PeriodEnd:       "2025-06-30",
			TaxRate:         rate,
			AdditionalItems: []invoicedomain.AdditionalItem{extra},
		})
		return err
	}
	hosting := func(quantity, price string) invoicedomain.AdditionalItem {
		return invoicedomain.AdditionalItem{ItemType: "hosting", Description: "Hosting", Quantity: quantity, UnitPrice: price}
	}

	assert.ErrorIs(t, generate(nil, hosting("1.125", "10")), invoicedomain.ErrInvalidQuantity)
	assert.ErrorIs(t, generate(nil, hosting("1", "10.005")), invoicedomain.ErrInvalidUnitPrice)
	rate := "0.12345"
	assert.ErrorIs(t, generate(&rate, hosting("1", "10")), invoicedomain.ErrInvalidTaxRate)

	// trailing zeros past the scale are fine
	rate = "0.100000"
	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30", hosting("1.50", "10.000"))
	updated, err := f.svc.UpdateInvoice(f.ctx, invoice.ID.String(), invoicedomain.UpdateInvoiceRequest{TaxRate: &rate})
	require.NoError(t, err)
	assertMoney(t, "615.00", updated.Subtotal)

	hostingRow := invoice.Items[len(invoice.Items)-1]
	price := "10.005"
	_, err = f.svc.UpdateInvoiceItem(f.ctx, invoice.ID.String(), hostingRow.ID.String(), invoicedomain.UpdateItemRequest{UnitPrice: &price})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidUnitPrice)
	assertTotalsConsistent(t, f, invoice.ID)
}

func TestUpdateInvoiceTaxRateAndTransitions(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	juneItems(t, f, customer.ID)
	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")

	rate := "0.1"
	updated, err := f.svc.UpdateInvoice(f.ctx, invoice.ID.String(), invoicedomain.UpdateInvoiceRequest{TaxRate: &rate})
	require.NoError(t, err)
	assertMoney(t, "60.00", updated.TaxAmount)
	assertMoney(t, "660.00", updated.Total)
	assertTotalsConsistent(t, f, invoice.ID)

	paid := "paid"
	_, err = f.svc.UpdateInvoice(f.ctx, invoice.ID.String(), invoicedomain.UpdateInvoiceRequest{Status: &paid})
	assert.ErrorIs(t, err, invoicedomain.ErrIllegalTransition)

	sent := "sent"
	updated, err = f.svc.UpdateInvoice(f.ctx, invoice.ID.String(), invoicedomain.UpdateInvoiceRequest{Status: &sent})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusSent, updated.Status)

	_, err = f.svc.UpdateInvoice(f.ctx, invoice.ID.String(), invoicedomain.UpdateInvoiceRequest{TaxRate: &rate})
	assert.ErrorIs(t, err, invoicedomain.ErrNotDraft)

	updated, err = f.svc.UpdateInvoice(f.ctx, invoice.ID.String(), invoicedomain.UpdateInvoiceRequest{Status: &paid})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, updated.Status)
	assertMoney(t, "660.00", updated.AmountPaid)
	require.NotNil(t, updated.PaymentDate)

	draft := "draft"
	_, err = f.svc.UpdateInvoice(f.ctx, invoice.ID.String(), invoicedomain.UpdateInvoiceRequest{Status: &draft})
	assert.ErrorIs(t, err, invoicedomain.ErrIllegalTransition)

	bogus := "void"
	_, err = f.svc.UpdateInvoice(f.ctx, invoice.ID.String(), invoicedomain.UpdateInvoiceRequest{Status: &bogus})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)
}

func TestPayInvoiceDefaults(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	juneItems(t, f, customer.ID)
	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")

	_, err := f.svc.PayInvoice(f.ctx, invoice.ID.String(), invoicedomain.PayInvoiceRequest{})
	assert.ErrorIs(t, err, invoicedomain.ErrIllegalTransition)

	_, err = f.svc.SendInvoice(f.ctx, invoice.ID.String())
	require.NoError(t, err)
	_, err = f.svc.SendInvoice(f.ctx, invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrIllegalTransition)

	paid, err := f.svc.PayInvoice(f.ctx, invoice.ID.String(), invoicedomain.PayInvoiceRequest{})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, paid.Status)
	assertMoney(t, "600.00", paid.AmountPaid)
	require.NotNil(t, paid.PaymentDate)
	assert.Equal(t, day(2025, time.July, 1), paid.PaymentDate.UTC())
	assertMoney(t, "0.00", paid.Balance())
}

func TestSweepOverdueIsIdempotent(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	juneItems(t, f, customer.ID)
	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")
	_, err := f.svc.SendInvoice(f.ctx, invoice.ID.String())
	require.NoError(t, err)

	f.clock.Set(time.Date(2025, time.July, 31, 12, 0, 0, 0, time.UTC))
	count, err := f.svc.SweepOverdue(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "due today is not overdue")

	f.clock.AdvanceDays(1)
	count, err = f.svc.SweepOverdue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	count, err = f.svc.SweepOverdue(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.Equal(t, invoicedomain.StatusOverdue, f.reload(t, invoice.ID).Invoice.Status)

	paid, err := f.svc.PayInvoice(f.ctx, invoice.ID.String(), invoicedomain.PayInvoiceRequest{})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, paid.Status)
}

func TestListInvoicesSweepsFirst(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	juneItems(t, f, customer.ID)
	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")
	_, err := f.svc.SendInvoice(f.ctx, invoice.ID.String())
	require.NoError(t, err)
	f.clock.Set(time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC))

	resp, err := f.svc.ListInvoices(f.ctx, invoicedomain.ListInvoiceRequest{Status: "overdue"})
	require.NoError(t, err)
	require.Len(t, resp.Invoices, 1)
	assert.Equal(t, int64(1), resp.Total)
	assert.Equal(t, 50, resp.Limit)
	assert.Equal(t, invoicedomain.StatusOverdue, resp.Invoices[0].Status)

	_, err = f.svc.ListInvoices(f.ctx, invoicedomain.ListInvoiceRequest{Status: "unknown"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)
}

func TestDeleteInvoiceReleasesWorkItems(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	items := juneItems(t, f, customer.ID)
	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")

	require.NoError(t, f.svc.DeleteInvoice(f.ctx, invoice.ID.String()))

	_, err := f.svc.GetInvoice(f.ctx, invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
	for _, item := range items {
		assert.Nil(t, f.reloadWorkItem(t, item.ID).InvoiceID)
	}
	var remaining int64
	require.NoError(t, f.db.Model(&invoicedomain.InvoiceItem{}).Where("invoice_id = ?", invoice.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	regenerated := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")
	assert.Equal(t, "ACME-2025-001", regenerated.InvoiceNumber)
}

func TestRepriceUsesSnapshotPolicy(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	juneItems(t, f, customer.ID)
	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30", invoicedomain.AdditionalItem{
		ItemType:    "hosting",
		Description: "Hosting",
		Quantity:    "1",
		UnitPrice:   "20",
	})
	late := f.workItem(t, customer.ID, day(2025, time.June, 28), workitemdomain.UrgencyLow, "1")
	_, err := f.svc.LinkRequest(f.ctx, invoice.ID.String(), late.ID.String())
	require.NoError(t, err)

	repriced, err := f.svc.RepriceInvoice(f.ctx, invoice.ID.String())
	require.NoError(t, err)

	// 3h regular now: 450 + 175 + 125 + 20 hosting.
	assertMoney(t, "770.00", repriced.Subtotal)
	require.Len(t, repriced.Items, 4)
	assert.Equal(t, invoicedomain.ItemTypeHosting, repriced.Items[3].ItemType)
	assert.Equal(t, 3, repriced.Items[3].SortOrder)
	assert.Len(t, repriced.Items[0].RequestIDs, 2)
	assertMoney(t, "750.00", repriced.BillingSnapshot.Data().Breakdown.Subtotal)
	assertTotalsConsistent(t, f, invoice.ID)
}

func TestGetInvoiceLoadsDetail(t *testing.T) {
	f := newFixture(t, pricingdomain.DefaultPolicy())
	customer := f.customer(t, "ACME")
	juneItems(t, f, customer.ID)
	invoice := f.generate(t, customer.ID, "2025-06-01", "2025-06-30")

	detail := f.reload(t, invoice.ID)
	assert.Equal(t, customer.ID, detail.Customer.ID)
	assert.Len(t, detail.Invoice.Items, 3)
	assert.Len(t, detail.Requests, 3)

	_, err := f.svc.GetInvoice(f.ctx, "abc")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidID)
	_, err = f.svc.GetInvoice(f.ctx, f.node.Generate().String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}
