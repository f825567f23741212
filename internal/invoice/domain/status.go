package domain

import "strings"

// Status is the invoice lifecycle state.
//
//	draft -> sent -> paid
//	         sent -> overdue -> paid
//
// Nothing leaves paid, and only draft invoices accept item or work item edits.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusSent    Status = "sent"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusDraft:
		return StatusDraft, true
	case StatusSent:
		return StatusSent, true
	case StatusPaid:
		return StatusPaid, true
	case StatusOverdue:
		return StatusOverdue, true
	default:
		return "", false
	}
}

func (s Status) Editable() bool {
	return s == StatusDraft
}

func (s Status) Send() (Status, error) {
	if s != StatusDraft {
		return s, ErrIllegalTransition
	}
	return StatusSent, nil
}

func (s Status) MarkPaid() (Status, error) {
	if s != StatusSent && s != StatusOverdue {
		return s, ErrIllegalTransition
	}
	return StatusPaid, nil
}

func (s Status) MarkOverdue() (Status, error) {
	if s != StatusSent {
		return s, ErrIllegalTransition
	}
	return StatusOverdue, nil
}

// TransitionTo moves to next through the matching transition. Staying put is allowed.
func (s Status) TransitionTo(next Status) (Status, error) {
	if s == next {
		return s, nil
	}
	switch next {
	case StatusSent:
		return s.Send()
	case StatusPaid:
		return s.MarkPaid()
	case StatusOverdue:
		return s.MarkOverdue()
	default:
		return s, ErrIllegalTransition
	}
}
