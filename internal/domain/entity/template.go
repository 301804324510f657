package entity

import "time"

// Template is a versioned approval process definition for one entity type.
// Steps are kept sorted by StepOrder.
type Template struct {
	ID           int64            `json:"id"`
	TemplateCode string           `json:"template_code"`
	Name         string           `json:"name"`
	EntityType   EntityType       `json:"entity_type"`
	Version      int              `json:"version"`
	IsActive     bool             `json:"is_active"`
	Steps        []StepDefinition `json:"steps"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// StepDefinition is one ordered stage of a template.
// Exactly one of ApproverID (non-zero) and ApproverRole (non-empty) is set.
type StepDefinition struct {
	ID                  int64  `json:"id"`
	TemplateID          int64  `json:"template_id"`
	StepOrder           int    `json:"step_order"`
	NodeName            string `json:"node_name"`
	ApproverID          int64  `json:"approver_id,omitempty"`
	ApproverRole        string `json:"approver_role,omitempty"`
	ConditionExpression string `json:"condition_expression,omitempty"`
}

// HasFixedApprover reports whether the step names a single approver
func (s *StepDefinition) HasFixedApprover() bool {
	return s.ApproverID != 0
}

// IsConditional reports whether the step is guarded by a condition
func (s *StepDefinition) IsConditional() bool {
	return s.ConditionExpression != ""
}

// Step returns the step with the given order
func (t *Template) Step(order int) (*StepDefinition, bool) {
	for i := range t.Steps {
		if t.Steps[i].StepOrder == order {
			return &t.Steps[i], true
		}
	}
	return nil, false
}

// StepsAfter returns the steps whose order is strictly greater than order, ascending
func (t *Template) StepsAfter(order int) []StepDefinition {
	var out []StepDefinition
	for _, s := range t.Steps {
		if s.StepOrder > order {
			out = append(out, s)
		}
	}
	return out
}
