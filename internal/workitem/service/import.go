package service

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	auditdomain "github.com/smallbiznis/hourbill/internal/audit/domain"
	"github.com/smallbiznis/hourbill/internal/workitem/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var importColumns = []string{"date", "description", "category", "urgency", "estimated_hours", "external_ref"}

// Import reads work items from CSV. Rows that fail validation are reported and skipped,
// rows whose external_ref is already known for the customer are skipped silently, and
// the remaining rows are inserted in a single transaction.
func (s *Service) Import(ctx context.Context, req domain.ImportRequest) (domain.ImportResult, error) {
	customerID, err := s.resolveCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.ImportResult{}, err
	}
	if req.Reader == nil {
		return domain.ImportResult{}, domain.ErrInvalidCSV
	}

	reader := csv.NewReader(req.Reader)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return domain.ImportResult{}, domain.ErrInvalidCSV
	}
	index := columnIndex(header)
	if _, ok := index["date"]; !ok {
		return domain.ImportResult{}, domain.ErrInvalidCSV
	}
	if _, ok := index["description"]; !ok {
		return domain.ImportResult{}, domain.ErrInvalidCSV
	}

	result := domain.ImportResult{Imported: []domain.WorkItem{}}
	candidates := make([]*domain.WorkItem, 0)
	seenRefs := map[string]struct{}{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, domain.RowError{Line: line, Message: err.Error()})
			continue
		}

		hours := field(record, index, "estimated_hours")
		item, err := s.buildItem(customerID, domain.CreateWorkItemRequest{
			Date:           field(record, index, "date"),
			Description:    field(record, index, "description"),
			Category:       field(record, index, "category"),
			Urgency:        field(record, index, "urgency"),
			EstimatedHours: &hours,
			ExternalRef:    field(record, index, "external_ref"),
		}, domain.SourceImport)
		if err != nil {
			result.Errors = append(result.Errors, domain.RowError{Line: line, Message: err.Error()})
			continue
		}
		if item.ExternalRef != nil {
			if _, dup := seenRefs[*item.ExternalRef]; dup {
				result.Skipped++
				continue
			}
			seenRefs[*item.ExternalRef] = struct{}{}
		}
		candidates = append(candidates, &item)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refs := make([]string, 0, len(seenRefs))
		for ref := range seenRefs {
			refs = append(refs, ref)
		}
		existing, err := s.repo.ExistingExternalRefs(ctx, tx, customerID, refs)
		if err != nil {
			return err
		}

		toInsert := make([]*domain.WorkItem, 0, len(candidates))
		for _, item := range candidates {
			if item.ExternalRef != nil {
				if _, ok := existing[*item.ExternalRef]; ok {
					result.Skipped++
					continue
				}
			}
			toInsert = append(toInsert, item)
		}
		if err := s.repo.Insert(ctx, tx, toInsert...); err != nil {
			return err
		}
		for _, item := range toInsert {
			result.Imported = append(result.Imported, *item)
		}
		return nil
	})
	if err != nil {
		s.log.Error("failed to import work items", zap.String("customer_id", customerID.String()), zap.Error(err))
		return domain.ImportResult{}, err
	}

	s.metrics.RecordImport(len(result.Imported), result.Skipped)
	resourceID := customerID.String()
	_ = s.auditSvc.AuditLog(ctx, "request.import", "customer", &resourceID, auditdomain.OutcomeSuccess, map[string]any{
		"imported": len(result.Imported),
		"skipped":  result.Skipped,
		"rejected": len(result.Errors),
	})
	return result, nil
}

func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		for _, known := range importColumns {
			if name == known {
				index[name] = i
			}
		}
	}
	return index
}

func field(record []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
