package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok && want == pair.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestRecordInvoiceOperationSplitsOutcomes(t *testing.T) {
	reg := NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordInvoiceOperation("generate", nil)
	m.RecordInvoiceOperation("generate", nil)
	m.RecordInvoiceOperation("generate", errors.New("boom"))

	assert.Equal(t, 2.0, counterValue(t, reg, "hourbill_invoice_operations_total",
		map[string]string{"operation": "generate", "outcome": OutcomeSuccess}))
	assert.Equal(t, 1.0, counterValue(t, reg, "hourbill_invoice_operations_total",
		map[string]string{"operation": "generate", "outcome": OutcomeFailure}))
}

func TestRecordOverdueSweptIgnoresZero(t *testing.T) {
	reg := NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordOverdueSwept(0)
	m.RecordOverdueSwept(3)

	assert.Equal(t, 3.0, counterValue(t, reg, "hourbill_invoices_marked_overdue_total", nil))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordInvoiceOperation("send", nil)
		m.RecordOverdueSwept(1)
		m.RecordImport(1, 1)
	})
}
