package port

import (
	"context"

	"github.com/garyjia/pm-approval/internal/domain/entity"
	"github.com/garyjia/pm-approval/internal/domain/event"
)

// EventPublisher receives approval events after their transaction commits.
// A publisher error is logged by the caller and never undoes the commit.
type EventPublisher interface {
	Name() string
	Publish(ctx context.Context, evt *event.Event) error
}

// FormDataSource builds a fresh routing snapshot for a business entity
type FormDataSource interface {
	FormData(ctx context.Context, entityType entity.EntityType, entityID int64) (map[string]interface{}, error)
}

// LarkMessageSender defines message sending operations
type LarkMessageSender interface {
	SendMessage(ctx context.Context, openID string, content string) error
}
