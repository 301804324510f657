package lark

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/domain/event"
)

// TaskNotifier tells approvers in Lark that a task is waiting for them.
// It runs as a post-commit publisher, so a failed send never affects the approval.
type TaskNotifier struct {
	sender port.LarkMessageSender
	users  port.UserDirectory
	logger *zap.Logger
}

// NewTaskNotifier creates the notifier
func NewTaskNotifier(sender port.LarkMessageSender, users port.UserDirectory, logger *zap.Logger) *TaskNotifier {
	return &TaskNotifier{
		sender: sender,
		users:  users,
		logger: logger,
	}
}

func (n *TaskNotifier) Name() string {
	return "lark-task-notifier"
}

// Publish sends a message for events that open a task. Assignees without a
// Lark identity are skipped.
func (n *TaskNotifier) Publish(ctx context.Context, evt *event.Event) error {
	if evt.AssigneeID == 0 {
		return nil
	}
	switch evt.Type {
	case event.TypeSubmitted, event.TypeAdvanced, event.TypeDelegated:
	default:
		return nil
	}

	user, err := n.users.GetByID(ctx, evt.AssigneeID)
	if err != nil {
		return fmt.Errorf("load assignee %d: %w", evt.AssigneeID, err)
	}
	if user == nil || user.LarkOpenID == "" {
		n.logger.Debug("Assignee has no Lark identity, skipping notification",
			zap.Int64("assignee_id", evt.AssigneeID),
			zap.Int64("task_id", evt.TaskID))
		return nil
	}

	if err := n.sender.SendMessage(ctx, user.LarkOpenID, formatTaskMessage(evt)); err != nil {
		return err
	}

	n.logger.Info("Approver notified",
		zap.Int64("instance_id", evt.InstanceID),
		zap.Int64("task_id", evt.TaskID),
		zap.Int64("assignee_id", evt.AssigneeID))
	return nil
}

func formatTaskMessage(evt *event.Event) string {
	step := fmt.Sprintf("step %d", evt.StepOrder)
	if node := evt.GetPayloadString("node_name"); node != "" {
		step = fmt.Sprintf("%s (%s)", step, node)
	}

	msg := fmt.Sprintf("Approval needed: %s #%d, %s, task %d", evt.EntityType, evt.EntityID, step, evt.TaskID)
	if evt.Type == event.TypeDelegated {
		msg += fmt.Sprintf(", delegated to you by user %d", evt.GetPayloadInt("delegated_from"))
	}
	if urgency := evt.GetPayloadString("urgency"); urgency != "" && urgency != "NORMAL" {
		msg += fmt.Sprintf(" [%s]", urgency)
	}
	return msg
}

var _ port.EventPublisher = (*TaskNotifier)(nil)
