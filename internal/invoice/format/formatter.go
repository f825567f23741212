package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
)

// DefaultInvoiceNumberTemplate yields numbers such as ACME-2025-007.
const DefaultInvoiceNumberTemplate = "{PREFIX}-{YYYY}-{SEQ3}"

// FormatInvoiceNumber renders template for a series prefix, issue date and sequence.
// Wider sequences than the padding are printed in full.
func FormatInvoiceNumber(template, prefix string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}
	if strings.Contains(template, "{PREFIX}") && strings.TrimSpace(prefix) == "" {
		return "", fmt.Errorf("invoice number prefix is empty")
	}

	out := strings.ReplaceAll(template, "{PREFIX}", strings.TrimSpace(prefix))
	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", issuedAt.Format("02"))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}

// SeriesPrefix is the common leading part of every number in a series-year, e.g. "ACME-2025-".
func SeriesPrefix(prefix string, year int) string {
	return fmt.Sprintf("%s-%04d-", strings.TrimSpace(prefix), year)
}

// ParseSequence extracts the numeric suffix of number within the series-year.
// ok is false for numbers that belong to another series or carry a non-numeric suffix.
func ParseSequence(number, prefix string, year int) (int64, bool) {
	head := SeriesPrefix(prefix, year)
	if !strings.HasPrefix(number, head) {
		return 0, false
	}
	suffix := strings.TrimPrefix(number, head)
	if suffix == "" {
		return 0, false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}
