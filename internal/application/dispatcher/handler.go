package dispatcher

import (
	"context"

	"github.com/garyjia/pm-approval/internal/domain/event"
)

// Wildcard matches any entity type or any status in a registration
const Wildcard = "*"

// Handler reacts to a status change. It runs inside the transaction that
// produced the change; returning an error rolls the whole transition back.
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	EntityType  string
	ToStatus    string
	Handler     Handler
	Description string
}

func (h HandlerInfo) matches(entityType, status string) bool {
	return (h.EntityType == Wildcard || h.EntityType == entityType) &&
		(h.ToStatus == Wildcard || h.ToStatus == status)
}
