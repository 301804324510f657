// Package adapter connects business entities to the approval engine. Each
// adapter snapshots its entity for routing, opens the approval, and writes
// engine outcomes back onto the entity's own status field.
package adapter

import (
	"context"
	"strings"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/application/dispatcher"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/domain/entity"
	"github.com/garyjia/pm-approval/internal/domain/event"
)

// Adapter is the per-entity glue between a business record and the engine
type Adapter interface {
	EntityType() entity.EntityType

	// BuildFormData snapshots the fields templates may route on
	BuildFormData(ctx context.Context, entityID int64) (map[string]interface{}, error)

	// Submit moves the entity into its in-approval status and opens an instance
	Submit(ctx context.Context, entityID, initiatorID int64, urgency entity.Urgency) (*entity.ApprovalInstance, error)

	// OnStatusChange maps an engine status onto the entity's domain status
	OnStatusChange(ctx context.Context, entityID int64, status entity.InstanceStatus) error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// writebackStatuses are the engine statuses adapters react to
var writebackStatuses = []entity.InstanceStatus{
	entity.InstanceStatusApproved,
	entity.InstanceStatusRejected,
	entity.InstanceStatusWithdrawn,
}

// Set holds one adapter per entity type
type Set struct {
	adapters map[entity.EntityType]Adapter
	order    []entity.EntityType
}

// NewSet creates an adapter set. A later adapter for the same entity type
// replaces an earlier one.
func NewSet(adapters ...Adapter) *Set {
	s := &Set{adapters: make(map[entity.EntityType]Adapter)}
	for _, a := range adapters {
		if _, exists := s.adapters[a.EntityType()]; !exists {
			s.order = append(s.order, a.EntityType())
		}
		s.adapters[a.EntityType()] = a
	}
	return s
}

// Get returns the adapter for an entity type
func (s *Set) Get(entityType entity.EntityType) (Adapter, error) {
	a, ok := s.adapters[entityType]
	if !ok {
		return nil, apperr.New(apperr.ErrValidation, "adapter", "entity type %q does not support approvals", entityType)
	}
	return a, nil
}

// EntityTypes lists the supported entity types in registration order
func (s *Set) EntityTypes() []entity.EntityType {
	out := make([]entity.EntityType, len(s.order))
	copy(out, s.order)
	return out
}

// FormData implements port.FormDataSource
func (s *Set) FormData(ctx context.Context, entityType entity.EntityType, entityID int64) (map[string]interface{}, error) {
	a, err := s.Get(entityType)
	if err != nil {
		return nil, err
	}
	return a.BuildFormData(ctx, entityID)
}

// RegisterHooks subscribes every adapter's status write-back to the
// dispatcher for the terminal engine statuses
func (s *Set) RegisterHooks(d dispatcher.Dispatcher) {
	for _, et := range s.order {
		a := s.adapters[et]
		name := strings.ToLower(string(et)) + "-status-writeback"

		for _, status := range writebackStatuses {
			status := status
			d.RegisterNamed(string(et), string(status), name, func(ctx context.Context, evt *event.Event) error {
				return a.OnStatusChange(ctx, evt.EntityID, status)
			})
		}
	}
}

// centsToAmount converts stored cents to the currency unit templates compare against
func centsToAmount(cents int64) float64 {
	return float64(cents) / 100
}

// statusIn reports whether status is one of allowed
func statusIn[T comparable](status T, allowed ...T) bool {
	for _, a := range allowed {
		if status == a {
			return true
		}
	}
	return false
}

var _ port.FormDataSource = (*Set)(nil)

var (
	_ Adapter = (*ECNAdapter)(nil)
	_ Adapter = (*QuoteAdapter)(nil)
	_ Adapter = (*AcceptanceAdapter)(nil)
)
