package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/hourbill/internal/clock"
	customerdomain "github.com/smallbiznis/hourbill/internal/customer/domain"
	customerrepo "github.com/smallbiznis/hourbill/internal/customer/repository"
	"github.com/smallbiznis/hourbill/internal/observability/metrics"
	dbtest "github.com/smallbiznis/hourbill/internal/testutil"
	"github.com/smallbiznis/hourbill/internal/workitem/domain"
	"github.com/smallbiznis/hourbill/internal/workitem/repository"
	"github.com/smallbiznis/hourbill/internal/workitem/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type noopAudit struct{}

func (noopAudit) AuditLog(context.Context, string, string, *string, string, map[string]any) error {
	return nil
}

type fixture struct {
	ctx      context.Context
	db       *gorm.DB
	node     *snowflake.Node
	repo     domain.Repository
	svc      domain.Service
	registry *prometheus.Registry
	customer customerdomain.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.NewDB(t)
	node := dbtest.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	customers := customerrepo.Provide()
	customer := customerdomain.Customer{
		ID:            node.Generate(),
		Name:          "Acme",
		Email:         "billing@acme.test",
		InvoicePrefix: "ACME",
		PaymentTerms:  30,
		Active:        true,
		CreatedAt:     clk.Now(),
		UpdatedAt:     clk.Now(),
	}
	require.NoError(t, customers.Insert(context.Background(), db, &customer))

	repo := repository.Provide()
	return &fixture{
		ctx:      context.Background(),
		db:       db,
		node:     node,
		repo:     repo,
		registry: reg,
		customer: customer,
		svc: service.New(service.Params{
			DB:           db,
			Log:          zap.NewNop(),
			GenID:        node,
			Repo:         repo,
			CustomerRepo: customers,
			Clock:        clk,
			AuditSvc:     noopAudit{},
			Metrics:      m,
		}),
	}
}

func TestClassifyUrgency(t *testing.T) {
	tests := []struct {
		text string
		want domain.Urgency
	}{
		{"Site is down, URGENT", domain.UrgencyHigh},
		{"please fix asap", domain.UrgencyHigh},
		{"update the footer when you can", domain.UrgencyLow},
		{"no rush, but today would be nice", domain.UrgencyHigh},
		{"change the logo", domain.UrgencyMedium},
		{"need this live 100% by friday", domain.UrgencyHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, service.ClassifyUrgency(tt.text), tt.text)
	}
}

func TestClassifyCategory(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Add the webhook for Fluent Forms", "Forms"},
		{"gravity form needs a webhook to the CRM", "Forms"},
		{"Nameserver cutover tonight", "DNS"},
		{"Migrate the old website to the new host", "Hosting"},
		{"Please send a backup", "Hosting"},
		{"zip up the staging site", "Hosting"},
		{"Remove the old contact form", "Forms"},
		{"Please use this email for new leads", "Email"},
		{"update the Elementor license", "Billing"},
		{"can you fix the footer", "Support"},
		{"we need help with the menu", "Support"},
		{"logo looks off", "Support"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, service.ClassifyCategory(tt.text), tt.text)
	}
}

func TestCreateWorkItemClassifiesMissingCategory(t *testing.T) {
	f := newFixture(t)

	classified, err := f.svc.Create(f.ctx, domain.CreateWorkItemRequest{
		CustomerID:  f.customer.ID.String(),
		Date:        "2025-06-03",
		Description: "Nameserver cutover for acme.test",
	})
	require.NoError(t, err)
	assert.Equal(t, "DNS", classified.Category)

	explicit, err := f.svc.Create(f.ctx, domain.CreateWorkItemRequest{
		CustomerID:  f.customer.ID.String(),
		Date:        "2025-06-03",
		Description: "Nameserver cutover for beta.test",
		Category:    "Project",
	})
	require.NoError(t, err)
	assert.Equal(t, "Project", explicit.Category)
}

func TestCreateWorkItem(t *testing.T) {
	f := newFixture(t)
	hours := "1.255"

	item, err := f.svc.Create(f.ctx, domain.CreateWorkItemRequest{
		CustomerID:     f.customer.ID.String(),
		Date:           "2025-06-03",
		Description:    "Checkout broken, urgent",
		EstimatedHours: &hours,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.UrgencyHigh, item.Urgency)
	assert.Equal(t, "Support", item.Category)
	assert.Equal(t, domain.StatusActive, item.Status)
	assert.Equal(t, "1.26", item.EstimatedHours.Decimal.StringFixed(2))

	loaded, err := f.svc.Get(f.ctx, item.ID.String())
	require.NoError(t, err)
	assert.Equal(t, item.Description, loaded.Description)
}

func TestCreateWorkItemValidation(t *testing.T) {
	f := newFixture(t)
	negative := "-2"

	tests := []struct {
		name string
		req  domain.CreateWorkItemRequest
		want error
	}{
		{"bad customer", domain.CreateWorkItemRequest{CustomerID: "x", Date: "2025-06-01", Description: "a"}, domain.ErrInvalidCustomer},
		{"unknown customer", domain.CreateWorkItemRequest{CustomerID: f.node.Generate().String(), Date: "2025-06-01", Description: "a"}, customerdomain.ErrNotFound},
		{"bad date", domain.CreateWorkItemRequest{CustomerID: f.customer.ID.String(), Date: "06/01/2025", Description: "a"}, domain.ErrInvalidDate},
		{"no description", domain.CreateWorkItemRequest{CustomerID: f.customer.ID.String(), Date: "2025-06-01"}, domain.ErrInvalidDescription},
		{"bad urgency", domain.CreateWorkItemRequest{CustomerID: f.customer.ID.String(), Date: "2025-06-01", Description: "a", Urgency: "soon"}, domain.ErrInvalidUrgency},
		{"negative hours", domain.CreateWorkItemRequest{CustomerID: f.customer.ID.String(), Date: "2025-06-01", Description: "a", EstimatedHours: &negative}, domain.ErrInvalidHours},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(f.ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSetStatusRejectsBilledItems(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.Create(f.ctx, domain.CreateWorkItemRequest{
		CustomerID:  f.customer.ID.String(),
		Date:        "2025-06-03",
		Description: "Rotate keys",
	})
	require.NoError(t, err)

	ignored, err := f.svc.SetStatus(f.ctx, item.ID.String(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIgnored, ignored.Status)

	_, err = f.svc.SetStatus(f.ctx, item.ID.String(), "archived")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	claimed, err := f.repo.LinkToInvoice(f.ctx, f.db, f.node.Generate(), []snowflake.ID{item.ID}, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), claimed)

	_, err = f.svc.SetStatus(f.ctx, item.ID.String(), "active")
	assert.ErrorIs(t, err, domain.ErrAlreadyBilled)

	_, err = f.svc.SetStatus(f.ctx, f.node.Generate().String(), "active")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListWorkItemsFilters(t *testing.T) {
	f := newFixture(t)
	for _, date := range []string{"2025-06-01", "2025-06-15", "2025-07-01"} {
		_, err := f.svc.Create(f.ctx, domain.CreateWorkItemRequest{
			CustomerID:  f.customer.ID.String(),
			Date:        date,
			Description: "task " + date,
		})
		require.NoError(t, err)
	}

	resp, err := f.svc.List(f.ctx, domain.ListWorkItemRequest{
		CustomerID: f.customer.ID.String(),
		StartDate:  "2025-06-01",
		EndDate:    "2025-06-30",
		Unbilled:   true,
	})
	require.NoError(t, err)
	assert.Len(t, resp.WorkItems, 2)

	_, err = f.svc.List(f.ctx, domain.ListWorkItemRequest{StartDate: "June"})
	assert.ErrorIs(t, err, domain.ErrInvalidDate)
}

func TestImportSkipsDuplicatesAndReportsBadRows(t *testing.T) {
	f := newFixture(t)
	csv := strings.Join([]string{
		"\ufeffdate,description,category,urgency,estimated_hours,external_ref",
		"2025-06-02,Fix contact form asap,,,1.5,T-1",
		"2025-06-03,Update copy when you can,Content,,0.5,T-2",
		"2025-06-03,Update copy again,Content,,0.5,T-2",
		"not-a-date,Broken row,,,1,T-3",
		"2025-06-04,Negative hours,,,-1,T-4",
		"2025-06-05,No ref,,LOW,,",
	}, "\n")

	result, err := f.svc.Import(f.ctx, domain.ImportRequest{CustomerID: f.customer.ID.String(), Reader: strings.NewReader(csv)})
	require.NoError(t, err)
	require.Len(t, result.Imported, 3)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 5, result.Errors[0].Line)
	assert.Equal(t, 6, result.Errors[1].Line)

	assert.Equal(t, domain.UrgencyHigh, result.Imported[0].Urgency)
	assert.Equal(t, domain.UrgencyLow, result.Imported[1].Urgency)
	assert.Equal(t, domain.SourceImport, result.Imported[0].Source)
	assert.Equal(t, "Support", result.Imported[0].Category)
	assert.Equal(t, "Content", result.Imported[1].Category)
	assert.False(t, result.Imported[2].EstimatedHours.Valid)

	again, err := f.svc.Import(f.ctx, domain.ImportRequest{CustomerID: f.customer.ID.String(), Reader: strings.NewReader(csv)})
	require.NoError(t, err)
	assert.Len(t, again.Imported, 1, "only the row without a ref is new")
	assert.Equal(t, 3, again.Skipped)

	assert.Equal(t, float64(4), counterValue(t, f.registry, "hourbill_work_items_imported_total", "imported"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestImportRequiresHeader(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Import(f.ctx, domain.ImportRequest{CustomerID: f.customer.ID.String(), Reader: strings.NewReader("foo,bar\n1,2\n")})
	assert.ErrorIs(t, err, domain.ErrInvalidCSV)
}
