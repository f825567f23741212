package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]struct{}{
	"email":   {},
	"phone":   {},
	"address": {},
}

// MaskContact redacts a contact value while keeping a minimal suffix for auditing.
func MaskContact(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if at := strings.LastIndex(trimmed, "@"); at > 0 {
		return maskToken + trimmed[at:]
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskMetadata returns a copy of input with contact fields redacted. Nested maps are walked.
func MaskMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		masked[trimmedKey] = maskValue(trimmedKey, value)
	}
	return masked
}

func maskValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
			return MaskContact(cast)
		}
		return cast
	case map[string]any:
		return MaskMetadata(cast)
	default:
		return value
	}
}
