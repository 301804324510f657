package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is published after an approval transaction commits. Consumers get a
// copy of the facts, never a handle on the instance itself.
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	EntityType string                 `json:"entity_type"`
	EntityID   int64                  `json:"entity_id"`
	InstanceID int64                  `json:"instance_id"`
	Status     string                 `json:"status"`
	StepOrder  int                    `json:"step_order,omitempty"`
	ActorID    int64                  `json:"actor_id"`
	TaskID     int64                  `json:"task_id,omitempty"`
	AssigneeID int64                  `json:"assignee_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// NewEvent creates an event with a generated ID and the current time
func NewEvent(eventType Type, entityType string, entityID, instanceID int64, status string) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		InstanceID: instanceID,
		Status:     status,
		Payload:    map[string]interface{}{},
		Timestamp:  time.Now(),
	}
}

// WithTask returns a copy of the event describing the newly opened task
func (e *Event) WithTask(taskID, assigneeID int64, stepOrder int) *Event {
	cp := e.clone()
	cp.TaskID = taskID
	cp.AssigneeID = assigneeID
	cp.StepOrder = stepOrder
	return cp
}

// WithActor returns a copy of the event attributed to actorID
func (e *Event) WithActor(actorID int64) *Event {
	cp := e.clone()
	cp.ActorID = actorID
	return cp
}

// WithPayload returns a copy of the event with an added payload key
func (e *Event) WithPayload(key string, value interface{}) *Event {
	cp := e.clone()
	cp.Payload[key] = value
	return cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

func (e *Event) clone() *Event {
	cp := *e
	cp.Payload = make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		cp.Payload[k] = v
	}
	return &cp
}
