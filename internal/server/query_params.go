package server

import "strings"

// queryFlag reads an optional boolean filter such as ?active=yes. An empty value means
// the filter is not applied.
func queryFlag(value string) (*bool, error) {
	var flag bool
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return nil, nil
	case "1", "true", "yes", "y":
		flag = true
	case "0", "false", "no", "n":
		flag = false
	default:
		return nil, ErrInvalidRequest
	}
	return &flag, nil
}
