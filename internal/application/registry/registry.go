package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/domain/condition"
	"github.com/garyjia/pm-approval/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Registry stores approval flow definitions and guarantees a single active
// template per entity type.
type Registry interface {
	// GetActiveTemplate returns the active template with steps in ascending order
	GetActiveTemplate(ctx context.Context, entityType entity.EntityType) (*entity.Template, error)

	// GetTemplate returns a template by id, active or not
	GetTemplate(ctx context.Context, id int64) (*entity.Template, error)

	// Publish validates tpl, stores it as a new version and makes it the only
	// active template for its entity type
	Publish(ctx context.Context, tpl *entity.Template) (*entity.Template, error)
}

type registryImpl struct {
	repo      port.TemplateRepository
	txManager port.TransactionManager
	logger    Logger
}

// New creates a template registry
func New(repo port.TemplateRepository, txManager port.TransactionManager, logger Logger) Registry {
	return &registryImpl{
		repo:      repo,
		txManager: txManager,
		logger:    logger,
	}
}

func (r *registryImpl) GetActiveTemplate(ctx context.Context, entityType entity.EntityType) (*entity.Template, error) {
	tpl, err := r.repo.GetActiveByEntityType(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("load active template for %s: %w", entityType, err)
	}
	if tpl == nil {
		return nil, apperr.New(apperr.ErrNotFound, "get_active_template", "no active template for entity type %s", entityType)
	}
	sortSteps(tpl)
	return tpl, nil
}

func (r *registryImpl) GetTemplate(ctx context.Context, id int64) (*entity.Template, error) {
	tpl, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load template %d: %w", id, err)
	}
	if tpl == nil {
		return nil, apperr.New(apperr.ErrNotFound, "get_template", "template %d not found", id)
	}
	sortSteps(tpl)
	return tpl, nil
}

func (r *registryImpl) Publish(ctx context.Context, tpl *entity.Template) (*entity.Template, error) {
	if err := Validate(tpl); err != nil {
		return nil, err
	}

	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		version, err := r.repo.MaxVersion(txCtx, tpl.TemplateCode)
		if err != nil {
			return fmt.Errorf("read template version: %w", err)
		}

		if err := r.repo.DeactivateByEntityType(txCtx, tpl.EntityType); err != nil {
			return fmt.Errorf("deactivate templates: %w", err)
		}

		tpl.Version = version + 1
		tpl.IsActive = true
		return r.repo.Create(txCtx, tpl)
	})
	if err != nil {
		r.logger.Error("Failed to publish template", "template_code", tpl.TemplateCode, "error", err)
		return nil, err
	}

	r.logger.Info("Template published",
		"template_id", tpl.ID,
		"template_code", tpl.TemplateCode,
		"entity_type", tpl.EntityType,
		"version", tpl.Version,
		"steps", len(tpl.Steps),
	)
	return tpl, nil
}

// Validate checks the structural rules every template must satisfy
func Validate(tpl *entity.Template) error {
	const op = "publish_template"

	if tpl == nil {
		return apperr.New(apperr.ErrValidation, op, "template is required")
	}
	if strings.TrimSpace(tpl.TemplateCode) == "" {
		return apperr.New(apperr.ErrValidation, op, "template_code is required")
	}
	if tpl.EntityType == "" {
		return apperr.New(apperr.ErrValidation, op, "entity_type is required")
	}
	if len(tpl.Steps) == 0 {
		return apperr.New(apperr.ErrConfiguration, op, "template %s has no steps", tpl.TemplateCode)
	}

	seen := make(map[int]bool, len(tpl.Steps))
	for _, s := range tpl.Steps {
		if s.StepOrder < 1 {
			return apperr.New(apperr.ErrConfiguration, op, "template %s: step_order must be positive, got %d", tpl.TemplateCode, s.StepOrder)
		}
		if seen[s.StepOrder] {
			return apperr.New(apperr.ErrConfiguration, op, "template %s: duplicate step_order %d", tpl.TemplateCode, s.StepOrder)
		}
		seen[s.StepOrder] = true

		if (s.ApproverID != 0) == (s.ApproverRole != "") {
			return apperr.New(apperr.ErrConfiguration, op, "template %s step %d: exactly one of approver_id and approver_role must be set", tpl.TemplateCode, s.StepOrder)
		}
		if s.IsConditional() {
			if _, err := condition.Parse(s.ConditionExpression); err != nil {
				return apperr.Wrap(apperr.ErrExpression, op, err)
			}
		}
	}

	sortSteps(tpl)
	return nil
}

func sortSteps(tpl *entity.Template) {
	sort.SliceStable(tpl.Steps, func(i, j int) bool {
		return tpl.Steps[i].StepOrder < tpl.Steps[j].StepOrder
	})
}
