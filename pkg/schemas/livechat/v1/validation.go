package livechat

import "errors"

type ValidationIssue struct{ Field, Reason string }

type ValidationError struct{ Issues []ValidationIssue }

var ErrInvalidContract = errors.New("invalid contract")

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return ErrInvalidContract.Error()
	}
	return ErrInvalidContract.Error() + ": " + e.Issues[0].Field + " " + e.Issues[0].Reason
}
func (e *ValidationError) add(f, r string) {
	e.Issues = append(e.Issues, ValidationIssue{Field: f, Reason: r})
}
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidContract }

func (e *ValidationError) orNil() error {
	if len(e.Issues) > 0 {
		return e
	}
	return nil
}

func (r *InquiryRecord) Validate() error {
	ve := &ValidationError{}
	r.validate(ve, true)
	return ve.orNil()
}

func (r *InquiryRecord) validate(ve *ValidationError, needStatus bool) {
	if r.ID == "" {
		ve.add("_id", "required")
	}
	if needStatus && r.Status == "" {
		ve.add("status", "required")
	}
	if r.DefaultAgent != nil && r.DefaultAgent.AgentID == "" {
		ve.add("defaultAgent.agentId", "required when defaultAgent is set")
	}
}

// Validate checks the event shape. Removals only need the record id.
func (e *InquiryEvent) Validate() error {
	ve := &ValidationError{}
	switch e.Type {
	case "":
		ve.add("type", "required")
	case EventAdded, EventChanged:
		e.InquiryRecord.validate(ve, true)
	case EventRemoved:
		e.InquiryRecord.validate(ve, false)
	default:
		ve.add("type", "unknown")
	}
	return ve.orNil()
}
