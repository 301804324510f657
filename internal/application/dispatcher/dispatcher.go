package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/pm-approval/internal/domain/event"
)

// Dispatcher maps (entity_type, to_status) to status-change hooks.
// One instance is built at startup and handed to everything that registers.
type Dispatcher interface {
	// Register adds a handler with an auto-generated name
	Register(entityType, toStatus string, handler Handler)

	// RegisterNamed adds a handler with a name for debugging and removal
	RegisterNamed(entityType, toStatus, name string, handler Handler)

	// Unregister removes handlers registered under name for the exact key
	Unregister(entityType, toStatus, name string)

	// Dispatch runs every handler matching evt.EntityType and evt.Status,
	// synchronously and in registration order. The first error stops dispatch.
	Dispatch(ctx context.Context, evt *event.Event) error

	// ListHandlers returns the handlers that would run for the key, in order
	ListHandlers(entityType, toStatus string) []HandlerInfo
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// hookDispatcher keeps one slice in registration order so wildcard and exact
// registrations interleave the way they were added.
type hookDispatcher struct {
	mu       sync.RWMutex
	handlers []HandlerInfo
	seq      int
	logger   Logger
}

// Option configures the dispatcher
type Option func(*hookDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *hookDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new hook dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &hookDispatcher{}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Register adds a handler with an auto-generated name
func (d *hookDispatcher) Register(entityType, toStatus string, handler Handler) {
	d.RegisterNamed(entityType, toStatus, "", handler)
}

// RegisterNamed adds a handler with a specific name; an empty name is generated
func (d *hookDispatcher) RegisterNamed(entityType, toStatus, name string, handler Handler) {
	if entityType == "" || toStatus == "" {
		panic("dispatcher: entity type and status are required, use \"*\" to match any")
	}
	if handler == nil {
		panic("dispatcher: nil handler")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if name == "" {
		name = fmt.Sprintf("handler-%d", d.seq)
	}
	d.seq++
	d.handlers = append(d.handlers, HandlerInfo{
		Name:       name,
		EntityType: entityType,
		ToStatus:   toStatus,
		Handler:    handler,
	})

	if d.logger != nil {
		d.logger.Info("Hook registered",
			"entity_type", entityType,
			"to_status", toStatus,
			"handler_name", name,
		)
	}
}

// Unregister removes handlers by name
func (d *hookDispatcher) Unregister(entityType, toStatus, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	filtered := make([]HandlerInfo, 0, len(d.handlers))
	for _, h := range d.handlers {
		if h.EntityType == entityType && h.ToStatus == toStatus && h.Name == name {
			continue
		}
		filtered = append(filtered, h)
	}
	d.handlers = filtered

	if d.logger != nil {
		d.logger.Info("Hook unregistered",
			"entity_type", entityType,
			"to_status", toStatus,
			"handler_name", name,
		)
	}
}

// Dispatch runs matching handlers synchronously
func (d *hookDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	handlers := d.match(evt.EntityType, evt.Status)

	if d.logger != nil {
		d.logger.Info("Dispatching status change",
			"entity_type", evt.EntityType,
			"entity_id", evt.EntityID,
			"to_status", evt.Status,
			"event_id", evt.ID,
			"handler_count", len(handlers),
		)
	}

	for _, info := range handlers {
		if err := d.safeExecute(ctx, evt, info); err != nil {
			if d.logger != nil {
				d.logger.Error("Hook failed",
					"entity_type", evt.EntityType,
					"entity_id", evt.EntityID,
					"to_status", evt.Status,
					"handler_name", info.Name,
					"error", err,
				)
			}
			return fmt.Errorf("hook %s failed: %w", info.Name, err)
		}
	}

	return nil
}

// ListHandlers returns the handlers matching a key without their functions
func (d *hookDispatcher) ListHandlers(entityType, toStatus string) []HandlerInfo {
	matched := d.match(entityType, toStatus)
	result := make([]HandlerInfo, len(matched))

	for i, h := range matched {
		result[i] = HandlerInfo{
			Name:        h.Name,
			EntityType:  h.EntityType,
			ToStatus:    h.ToStatus,
			Description: h.Description,
		}
	}

	return result
}

func (d *hookDispatcher) match(entityType, status string) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []HandlerInfo
	for _, h := range d.handlers {
		if h.matches(entityType, status) {
			out = append(out, h)
		}
	}
	return out
}

// safeExecute runs a handler with panic recovery
func (d *hookDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			if d.logger != nil {
				d.logger.Error("Hook panic recovered",
					"entity_type", evt.EntityType,
					"to_status", evt.Status,
					"handler_name", info.Name,
					"panic", r,
				)
			}
		}
	}()

	return info.Handler(ctx, evt)
}
