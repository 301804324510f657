// Package apperr defines the error kinds the approval engine reports.
// Callers test for a kind with errors.Is and read ids from *Error with errors.As.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/garyjia/pm-approval/internal/domain/condition"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicatePending = errors.New("duplicate pending approval")
	ErrConfiguration    = errors.New("configuration error")
	ErrPermission       = errors.New("permission denied")
	ErrInvalidState     = errors.New("invalid state")
	ErrValidation       = errors.New("validation error")

	// ErrExpression is shared with the condition package so parser errors
	// match without conversion.
	ErrExpression = condition.ErrExpression
)

// Error carries a kind plus the ids needed to debug the failure.
// Zero ids and an empty status are omitted from the message.
type Error struct {
	Kind       error
	Op         string
	TaskID     int64
	InstanceID int64
	Status     string
	Message    string
	Err        error
}

// New creates an error of the given kind
func New(kind error, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error
func Wrap(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithTask records the offending task and its current status
func (e *Error) WithTask(taskID int64, status fmt.Stringer) *Error {
	e.TaskID = taskID
	if status != nil {
		e.Status = status.String()
	}
	return e
}

// WithInstance records the offending instance and, if no task status was set, its status
func (e *Error) WithInstance(instanceID int64, status fmt.Stringer) *Error {
	e.InstanceID = instanceID
	if e.Status == "" && status != nil {
		e.Status = status.String()
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}

	var ids []string
	if e.TaskID != 0 {
		ids = append(ids, fmt.Sprintf("task=%d", e.TaskID))
	}
	if e.InstanceID != 0 {
		ids = append(ids, fmt.Sprintf("instance=%d", e.InstanceID))
	}
	if e.Status != "" {
		ids = append(ids, "status="+e.Status)
	}
	if len(ids) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ids, " "))
		b.WriteString(")")
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

var kinds = []struct {
	kind   error
	code   string
	status int
}{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrDuplicatePending, "DUPLICATE_PENDING", http.StatusConflict},
	{ErrPermission, "PERMISSION_DENIED", http.StatusForbidden},
	{ErrInvalidState, "INVALID_STATE", http.StatusConflict},
	{ErrConfiguration, "CONFIGURATION_ERROR", http.StatusUnprocessableEntity},
	{ErrExpression, "EXPRESSION_ERROR", http.StatusUnprocessableEntity},
	{ErrValidation, "VALIDATION_ERROR", http.StatusBadRequest},
}

// HTTPStatus maps an error to the response status the API layer should use
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Code returns a stable machine-readable code for the error kind
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return k.code
		}
	}
	return "INTERNAL_ERROR"
}

// Details returns the ids attached to err, if any
func Details(err error) map[string]interface{} {
	var e *Error
	if !errors.As(err, &e) {
		return nil
	}
	d := map[string]interface{}{}
	if e.TaskID != 0 {
		d["task_id"] = e.TaskID
	}
	if e.InstanceID != 0 {
		d["instance_id"] = e.InstanceID
	}
	if e.Status != "" {
		d["status"] = e.Status
	}
	if len(d) == 0 {
		return nil
	}
	return d
}
