package service

import (
	"regexp"
	"strings"

	"github.com/smallbiznis/hourbill/internal/workitem/domain"
)

const defaultCategory = "Support"

var (
	highUrgencyKeywords = []string{"urgent", "asap", "immediately", "today", "critical", "emergency", "100% by"}
	lowUrgencyKeywords  = []string{"when you can", "no rush", "whenever", "eventually"}
)

// categoryPatterns is checked in order; the first match wins.
var categoryPatterns = []struct {
	pattern  *regexp.Regexp
	category string
}{
	{regexp.MustCompile(`(?i)add.*?webhook.*?fluent`), "Forms"},
	{regexp.MustCompile(`(?i)gravity form.*?webhook`), "Forms"},
	{regexp.MustCompile(`(?i)nameserver.*?cutover`), "DNS"},
	{regexp.MustCompile(`(?i)migrat.*?(site|website)`), "Hosting"},
	{regexp.MustCompile(`(?i)backup|zip.*?site`), "Hosting"},
	{regexp.MustCompile(`(?i)remove.*?form`), "Forms"},
	{regexp.MustCompile(`(?i)please use this email`), "Email"},
	{regexp.MustCompile(`(?i)update.*?license`), "Billing"},
	{regexp.MustCompile(`(?i)can you.*?(add|create|update|fix|check)`), "Support"},
	{regexp.MustCompile(`(?i)need(s)?\s+(to|you|help)`), "Support"},
}

// ClassifyUrgency infers urgency from free text. High keywords win over low ones.
func ClassifyUrgency(text string) domain.Urgency {
	lowered := strings.ToLower(text)
	for _, keyword := range highUrgencyKeywords {
		if strings.Contains(lowered, keyword) {
			return domain.UrgencyHigh
		}
	}
	for _, keyword := range lowUrgencyKeywords {
		if strings.Contains(lowered, keyword) {
			return domain.UrgencyLow
		}
	}
	return domain.UrgencyMedium
}

// ClassifyCategory infers a category from a request description, falling back to Support.
func ClassifyCategory(text string) string {
	for _, p := range categoryPatterns {
		if p.pattern.MatchString(text) {
			return p.category
		}
	}
	return defaultCategory
}
