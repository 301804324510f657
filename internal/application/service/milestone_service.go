package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/application/dispatcher"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/domain/entity"
	"github.com/garyjia/pm-approval/internal/domain/event"
)

// MilestoneService completes project milestones and announces the change to
// status hooks in the same transaction
type MilestoneService interface {
	Complete(ctx context.Context, milestoneID int64) error
}

type milestoneServiceImpl struct {
	milestones port.MilestoneRepository
	hooks      dispatcher.Dispatcher
	txManager  port.TransactionManager
	logger     Logger
	clock      func() time.Time
}

// NewMilestoneService creates a new MilestoneService
func NewMilestoneService(
	milestones port.MilestoneRepository,
	hooks dispatcher.Dispatcher,
	txManager port.TransactionManager,
	logger Logger,
) MilestoneService {
	return &milestoneServiceImpl{
		milestones: milestones,
		hooks:      hooks,
		txManager:  txManager,
		logger:     logger,
		clock:      time.Now,
	}
}

// Complete marks the milestone COMPLETED and dispatches
// (PROJECT_MILESTONE, COMPLETED). Completing it twice is a no-op.
func (s *milestoneServiceImpl) Complete(ctx context.Context, milestoneID int64) error {
	const op = "complete_milestone"

	completed := false
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		m, err := s.milestones.GetByID(txCtx, milestoneID)
		if err != nil {
			return fmt.Errorf("load milestone %d: %w", milestoneID, err)
		}
		if m == nil {
			return apperr.New(apperr.ErrNotFound, op, "milestone %d not found", milestoneID)
		}
		if m.Status == entity.MilestoneStatusCompleted {
			return nil
		}

		if err := s.milestones.MarkCompleted(txCtx, milestoneID, s.clock()); err != nil {
			return err
		}

		evt := event.NewEvent(event.TypeStatusChanged, string(entity.EntityTypeProjectMilestone), milestoneID, 0,
			string(entity.MilestoneStatusCompleted)).
			WithPayload("project_id", m.ProjectID).
			WithPayload("milestone_code", m.MilestoneCode)
		if err := s.hooks.Dispatch(txCtx, evt); err != nil {
			return err
		}

		completed = true
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to complete milestone", "milestone_id", milestoneID, "error", err)
		return err
	}

	if completed {
		s.logger.Info("Milestone completed", "milestone_id", milestoneID)
	}
	return nil
}
