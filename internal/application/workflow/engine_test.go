package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/application/authz"
	"github.com/garyjia/pm-approval/internal/application/dispatcher"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/application/registry"
	"github.com/garyjia/pm-approval/internal/domain/entity"
	"github.com/garyjia/pm-approval/internal/domain/event"
	"github.com/garyjia/pm-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/pm-approval/internal/testutil"
)

// Test doubles

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.Event
	err    error
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(ctx context.Context, evt *event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []event.Type
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type countingRecorder struct {
	mu           sync.Mutex
	actions      map[string]int
	hookFailures map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{actions: map[string]int{}, hookFailures: map[string]int{}}
}

func (r *countingRecorder) RecordAction(entityType, action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[entityType+"/"+action]++
}

func (r *countingRecorder) RecordHookFailure(entityType, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hookFailures[entityType+"/"+status]++
}

type staticFormSource map[string]interface{}

func (s staticFormSource) FormData(ctx context.Context, entityType entity.EntityType, entityID int64) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

// harness wires the engine to a migrated in-memory database

type harness struct {
	f         *testutil.Fixture
	engine    Engine
	hooks     dispatcher.Dispatcher
	registry  registry.Registry
	instances port.InstanceRepository
	tasks     port.TaskRepository
	history   port.HistoryRepository
	publisher *recordingPublisher
	recorder  *countingRecorder
}

func newHarness(t *testing.T, opts ...EngineOption) *harness {
	t.Helper()

	f := testutil.NewFixture(t)
	logger := zap.NewNop()

	h := &harness{
		f:         f,
		hooks:     dispatcher.NewDispatcher(),
		registry:  registry.New(repository.NewTemplateRepository(f.DB, logger), f.Tx, nopLogger{}),
		instances: repository.NewInstanceRepository(f.DB, logger),
		tasks:     repository.NewTaskRepository(f.DB, logger),
		history:   repository.NewHistoryRepository(f.DB, logger),
		publisher: &recordingPublisher{},
		recorder:  newCountingRecorder(),
	}
	users := repository.NewUserRepository(f.DB, logger)

	opts = append([]EngineOption{WithPublishers(h.publisher), WithRecorder(h.recorder)}, opts...)
	h.engine = NewEngine(Deps{
		Registry:  h.registry,
		Resolver:  authz.NewResolver(users, h.tasks, h.history),
		Hooks:     h.hooks,
		Instances: h.instances,
		Tasks:     h.tasks,
		History:   h.history,
		Users:     users,
		TxManager: f.Tx,
		Logger:    nopLogger{},
	}, opts...)

	// initiator, fixed approvers, role holders and a superuser
	for _, id := range []int64{1, 2, 10, 30, 40, 50} {
		f.User(t, id)
	}
	f.User(t, 20, "QA_MANAGER")
	f.User(t, 21, "QA_MANAGER")
	f.InactiveUser(t, 60)
	f.Superuser(t, 99)
	return h
}

func (h *harness) publish(t *testing.T, entityType entity.EntityType, steps ...entity.StepDefinition) *entity.Template {
	t.Helper()
	tpl, err := h.registry.Publish(context.Background(), &entity.Template{
		TemplateCode: string(entityType) + "_FLOW",
		Name:         string(entityType) + " approval",
		EntityType:   entityType,
		Steps:        steps,
	})
	require.NoError(t, err)
	return tpl
}

func (h *harness) submit(t *testing.T, entityType entity.EntityType, entityID int64, formData map[string]interface{}) *entity.ApprovalInstance {
	t.Helper()
	inst, err := h.engine.Submit(context.Background(), SubmitRequest{
		EntityType:  entityType,
		EntityID:    entityID,
		InitiatorID: 1,
		FormData:    formData,
	})
	require.NoError(t, err)
	return inst
}

// pendingTask returns the single open task of the instance
func (h *harness) pendingTask(t *testing.T, instanceID int64) *entity.ApprovalTask {
	t.Helper()
	tasks, err := h.tasks.ListByInstance(context.Background(), instanceID)
	require.NoError(t, err)

	var open []*entity.ApprovalTask
	for _, task := range tasks {
		if task.IsPending() {
			open = append(open, task)
		}
	}
	require.Len(t, open, 1, "expected exactly one pending task")
	return open[0]
}

func (h *harness) historyOf(t *testing.T, instanceID int64) []*entity.ApprovalHistory {
	t.Helper()
	entries, err := h.history.ListByInstance(context.Background(), instanceID)
	require.NoError(t, err)
	return entries
}

func routingSteps() []entity.StepDefinition {
	return []entity.StepDefinition{
		{StepOrder: 1, NodeName: "Engineering", ApproverID: 10},
		{StepOrder: 2, NodeName: "Finance", ApproverID: 20, ConditionExpression: "amount > 50000"},
		{StepOrder: 3, NodeName: "Director", ApproverID: 30},
	}
}

func assertKind(t *testing.T, err error, kind error) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, kind), "expected %v, got %v", kind, err)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	return appErr
}

// Tests

func TestSubmit_SinglePendingInvariant(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN, routingSteps()...)

	first := h.submit(t, entity.EntityTypeECN, 5, map[string]interface{}{"amount": 10000})

	_, err := h.engine.Submit(context.Background(), SubmitRequest{
		EntityType:  entity.EntityTypeECN,
		EntityID:    5,
		InitiatorID: 2,
	})
	appErr := assertKind(t, err, apperr.ErrDuplicatePending)
	assert.Equal(t, first.ID, appErr.InstanceID)

	assert.Equal(t, 1, h.f.Count(t,
		`SELECT COUNT(*) FROM approval_instances WHERE entity_type = 'ECN' AND entity_id = 5 AND status = 'PENDING'`))
}

func TestSubmit_ConcurrentSubmissionsYieldOnePending(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN, routingSteps()...)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.engine.Submit(context.Background(), SubmitRequest{
				EntityType:  entity.EntityTypeECN,
				EntityID:    9,
				InitiatorID: 1,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, apperr.ErrDuplicatePending), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, h.f.Count(t, `SELECT COUNT(*) FROM approval_instances WHERE entity_id = 9`))
}

func TestSubmit_Failures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Submit(ctx, SubmitRequest{EntityType: entity.EntityTypeSalesQuote, EntityID: 1, InitiatorID: 1})
	assertKind(t, err, apperr.ErrNotFound)

	_, err = h.engine.Submit(ctx, SubmitRequest{EntityType: entity.EntityTypeSalesQuote, EntityID: 0, InitiatorID: 1})
	assertKind(t, err, apperr.ErrValidation)

	_, err = h.engine.Submit(ctx, SubmitRequest{EntityType: entity.EntityTypeSalesQuote, EntityID: 1, InitiatorID: 1, Urgency: "SOON"})
	assertKind(t, err, apperr.ErrValidation)

	h.publish(t, entity.EntityTypeECN,
		entity.StepDefinition{StepOrder: 1, ApproverID: 10, ConditionExpression: "amount > 50000"},
		entity.StepDefinition{StepOrder: 2, ApproverID: 20, ConditionExpression: "amount > 90000"},
	)
	_, err = h.engine.Submit(ctx, SubmitRequest{
		EntityType:  entity.EntityTypeECN,
		EntityID:    1,
		InitiatorID: 1,
		FormData:    map[string]interface{}{"amount": 100},
	})
	assertKind(t, err, apperr.ErrConfiguration)

	_, err = h.engine.Submit(ctx, SubmitRequest{
		EntityType:  entity.EntityTypeECN,
		EntityID:    1,
		InitiatorID: 1,
		FormData:    map[string]interface{}{"cost": 100},
	})
	assertKind(t, err, apperr.ErrExpression)

	assert.Zero(t, h.f.Count(t, `SELECT COUNT(*) FROM approval_instances`))
}

func TestSubmit_RoleStepWithoutHoldersIsConfigurationError(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeSalesQuote, entity.StepDefinition{StepOrder: 1, ApproverRole: "CFO"})

	_, err := h.engine.Submit(context.Background(), SubmitRequest{
		EntityType:  entity.EntityTypeSalesQuote,
		EntityID:    3,
		InitiatorID: 1,
	})
	assertKind(t, err, apperr.ErrConfiguration)
}

func TestSubmit_SkipsExcludedFirstStep(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN,
		entity.StepDefinition{StepOrder: 1, ApproverID: 10, ConditionExpression: "amount > 50000"},
		entity.StepDefinition{StepOrder: 2, ApproverRole: "QA_MANAGER"},
	)

	inst := h.submit(t, entity.EntityTypeECN, 5, map[string]interface{}{"amount": 10000})
	assert.Equal(t, entity.InstanceStatusPending, inst.Status)
	assert.Equal(t, 2, inst.CurrentStep)

	task := h.pendingTask(t, inst.ID)
	assert.Equal(t, 2, task.StepOrder)
	assert.Equal(t, int64(20), task.AssigneeID, "role steps go to the lowest-id active holder")
	assert.Empty(t, h.historyOf(t, inst.ID), "submission is not an audited action")
}

func TestApprove_ConditionalRouting(t *testing.T) {
	tests := []struct {
		name     string
		amount   int
		wantStep int
		wantUser int64
	}{
		{name: "small amount skips finance", amount: 10000, wantStep: 3, wantUser: 30},
		{name: "large amount visits finance", amount: 60000, wantStep: 2, wantUser: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.publish(t, entity.EntityTypeECN, routingSteps()...)

			inst := h.submit(t, entity.EntityTypeECN, 5, map[string]interface{}{"amount": tt.amount})
			first := h.pendingTask(t, inst.ID)
			require.Equal(t, 1, first.StepOrder)

			got, err := h.engine.Approve(context.Background(), first.ID, 10, "ok")
			require.NoError(t, err)
			assert.Equal(t, entity.InstanceStatusPending, got.Status)
			assert.Equal(t, tt.wantStep, got.CurrentStep)

			next := h.pendingTask(t, inst.ID)
			assert.Equal(t, tt.wantStep, next.StepOrder)
			assert.Equal(t, tt.wantUser, next.AssigneeID)
		})
	}
}

func TestApprove_RemainingStepsExcludedFinishesApproved(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN,
		entity.StepDefinition{StepOrder: 1, ApproverID: 10},
		entity.StepDefinition{StepOrder: 2, ApproverID: 20, ConditionExpression: "amount > 50000"},
	)

	var fired []*event.Event
	h.hooks.Register(string(entity.EntityTypeECN), string(entity.InstanceStatusApproved), func(ctx context.Context, evt *event.Event) error {
		fired = append(fired, evt)
		return nil
	})

	inst := h.submit(t, entity.EntityTypeECN, 5, map[string]interface{}{"amount": 10})
	got, err := h.engine.Approve(context.Background(), h.pendingTask(t, inst.ID).ID, 10, "")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusApproved, got.Status)
	assert.NotNil(t, got.CompletedAt)
	require.Len(t, fired, 1)
	assert.Equal(t, inst.ID, fired[0].InstanceID)
}

func TestApprove_AcceptanceOrderScenario(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeAcceptanceOrder,
		entity.StepDefinition{StepOrder: 1, NodeName: "Project manager", ApproverID: 10},
		entity.StepDefinition{StepOrder: 2, NodeName: "Quality", ApproverRole: "QA_MANAGER"},
		entity.StepDefinition{StepOrder: 3, NodeName: "Director", ApproverID: 30},
	)

	var hookCalls []string
	h.hooks.RegisterNamed(string(entity.EntityTypeAcceptanceOrder), string(entity.InstanceStatusApproved), "milestone-invoice",
		func(ctx context.Context, evt *event.Event) error {
			hookCalls = append(hookCalls, evt.Status)
			return nil
		})

	ctx := context.Background()
	inst := h.submit(t, entity.EntityTypeAcceptanceOrder, 7, map[string]interface{}{"pass_rate": 98.5})
	first := h.pendingTask(t, inst.ID)
	require.Equal(t, int64(1), first.ID)

	got, err := h.engine.Approve(ctx, 1, 10, "ok")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusPending, got.Status)

	second := h.pendingTask(t, inst.ID)
	assert.Equal(t, 2, second.StepOrder)
	assert.Equal(t, int64(20), second.AssigneeID)
	assert.Equal(t, 1, h.f.Count(t, `SELECT COUNT(*) FROM approval_tasks WHERE instance_id = ? AND status = 'PENDING'`, inst.ID))

	// any QA_MANAGER may act on the role step
	_, err = h.engine.Approve(ctx, second.ID, 21, "quality ok")
	require.NoError(t, err)
	assert.Empty(t, hookCalls)

	third := h.pendingTask(t, inst.ID)
	got, err = h.engine.Approve(ctx, third.ID, 30, "accepted")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusApproved, got.Status)
	assert.Equal(t, []string{"APPROVED"}, hookCalls)

	assert.Equal(t, []event.Type{event.TypeSubmitted, event.TypeAdvanced, event.TypeAdvanced, event.TypeApproved}, h.publisher.types())
	assert.Equal(t, 3, h.recorder.actions["ACCEPTANCE_ORDER/APPROVE"])
	assert.Equal(t, 1, h.recorder.actions["ACCEPTANCE_ORDER/SUBMIT"])
}

func TestApprove_PermissionDenied(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN, routingSteps()...)
	inst := h.submit(t, entity.EntityTypeECN, 5, map[string]interface{}{"amount": 10000})
	task := h.pendingTask(t, inst.ID)

	_, err := h.engine.Approve(context.Background(), task.ID, 40, "")
	appErr := assertKind(t, err, apperr.ErrPermission)
	assert.Equal(t, task.ID, appErr.TaskID)
	assert.Equal(t, inst.ID, appErr.InstanceID)
	assert.Equal(t, "PENDING", appErr.Status)

	assert.True(t, h.pendingTask(t, inst.ID).IsPending())
	assert.Empty(t, h.historyOf(t, inst.ID))

	// superusers may act on any step
	_, err = h.engine.Approve(context.Background(), task.ID, 99, "override")
	require.NoError(t, err)
}

func TestApprove_UnknownTask(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Approve(context.Background(), 404, 10, "")
	assertKind(t, err, apperr.ErrNotFound)
}

func TestApprove_ConcurrentApprovalsOnlyOneWins(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN, routingSteps()...)
	inst := h.submit(t, entity.EntityTypeECN, 5, map[string]interface{}{"amount": 10000})
	task := h.pendingTask(t, inst.ID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []int64{10, 99} {
		wg.Add(1)
		go func(i int, actor int64) {
			defer wg.Done()
			_, errs[i] = h.engine.Approve(context.Background(), task.ID, actor, "")
		}(i, actor)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.True(t, errors.Is(err, apperr.ErrInvalidState), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, failures)
	assert.Len(t, h.historyOf(t, inst.ID), 1)
}

func TestTerminalImmutability(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN, routingSteps()...)
	ctx := context.Background()

	inst := h.submit(t, entity.EntityTypeECN, 5, nil)
	task := h.pendingTask(t, inst.ID)

	got, err := h.engine.Reject(ctx, task.ID, 10, "no budget")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusRejected, got.Status)
	assert.NotNil(t, got.CompletedAt)

	before := len(h.historyOf(t, inst.ID))

	_, err = h.engine.Approve(ctx, task.ID, 10, "")
	appErr := assertKind(t, err, apperr.ErrInvalidState)
	assert.Equal(t, "REJECTED", appErr.Status)
	assert.Equal(t, task.ID, appErr.TaskID)

	_, err = h.engine.Reject(ctx, task.ID, 99, "")
	assertKind(t, err, apperr.ErrInvalidState)

	_, err = h.engine.Delegate(ctx, task.ID, 10, 40, "")
	assertKind(t, err, apperr.ErrInvalidState)

	_, err = h.engine.Withdraw(ctx, inst.ID, 1)
	assertKind(t, err, apperr.ErrInvalidState)

	// state is checked before permission
	_, err = h.engine.Withdraw(ctx, inst.ID, 40)
	assertKind(t, err, apperr.ErrInvalidState)

	assert.Len(t, h.historyOf(t, inst.ID), before)
	stored, err := h.instances.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusRejected, stored.Status)
	assert.Zero(t, h.f.Count(t, `SELECT COUNT(*) FROM approval_tasks WHERE status = 'PENDING'`))
}

func TestDelegation_IsStepScoped(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN,
		entity.StepDefinition{StepOrder: 1, NodeName: "Engineering", ApproverID: 10},
		entity.StepDefinition{StepOrder: 2, NodeName: "Finance", ApproverID: 20},
	)
	ctx := context.Background()

	a := h.submit(t, entity.EntityTypeECN, 1, nil)
	b := h.submit(t, entity.EntityTypeECN, 2, nil)
	for _, inst := range []*entity.ApprovalInstance{a, b} {
		_, err := h.engine.Approve(ctx, h.pendingTask(t, inst.ID).ID, 10, "")
		require.NoError(t, err)
	}

	stepTwoA := h.pendingTask(t, a.ID)
	got, err := h.engine.Delegate(ctx, stepTwoA.ID, 20, 40, "on leave")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusPending, got.Status)

	delegated := h.pendingTask(t, a.ID)
	assert.Equal(t, int64(40), delegated.AssigneeID)
	assert.Equal(t, int64(20), delegated.DelegatedFromID)
	assert.Equal(t, 2, delegated.StepOrder)

	original, err := h.tasks.GetByID(ctx, stepTwoA.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusDelegated, original.Status)

	// no delegation exists on instance b
	_, err = h.engine.Approve(ctx, h.pendingTask(t, b.ID).ID, 40, "")
	assertKind(t, err, apperr.ErrPermission)

	got, err = h.engine.Approve(ctx, delegated.ID, 40, "done")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusApproved, got.Status)

	entries := h.historyOf(t, a.ID)
	require.Len(t, entries, 3)
	assert.Equal(t, entity.ActionDelegate, entries[1].Action)
	assert.Equal(t, int64(40), entries[1].DelegateToID)
	assert.Equal(t, int64(20), entries[1].ApproverID)
}

func TestDelegation_Chain(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN, entity.StepDefinition{StepOrder: 1, ApproverID: 10})
	ctx := context.Background()

	inst := h.submit(t, entity.EntityTypeECN, 1, nil)
	_, err := h.engine.Delegate(ctx, h.pendingTask(t, inst.ID).ID, 10, 40, "")
	require.NoError(t, err)
	_, err = h.engine.Delegate(ctx, h.pendingTask(t, inst.ID).ID, 40, 50, "")
	require.NoError(t, err)

	// 40 handed the task on, so only the current assignee may delegate again
	_, err = h.engine.Delegate(ctx, h.pendingTask(t, inst.ID).ID, 40, 30, "")
	assertKind(t, err, apperr.ErrPermission)

	got, err := h.engine.Approve(ctx, h.pendingTask(t, inst.ID).ID, 50, "")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusApproved, got.Status)
}

func TestDelegation_TransfersAuthority(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN, entity.StepDefinition{StepOrder: 1, ApproverID: 10})
	ctx := context.Background()

	inst := h.submit(t, entity.EntityTypeECN, 1, nil)
	_, err := h.engine.Delegate(ctx, h.pendingTask(t, inst.ID).ID, 10, 40, "")
	require.NoError(t, err)
	delegated := h.pendingTask(t, inst.ID)

	_, err = h.engine.Approve(ctx, delegated.ID, 10, "")
	assertKind(t, err, apperr.ErrPermission)
	_, err = h.engine.Reject(ctx, delegated.ID, 10, "")
	assertKind(t, err, apperr.ErrPermission)
	assert.Equal(t, delegated.ID, h.pendingTask(t, inst.ID).ID)

	got, err := h.engine.Approve(ctx, delegated.ID, 40, "")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusApproved, got.Status)
}

func TestDelegation_Validation(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeSalesQuote, entity.StepDefinition{StepOrder: 1, ApproverRole: "QA_MANAGER"})
	ctx := context.Background()

	inst := h.submit(t, entity.EntityTypeSalesQuote, 1, nil)
	task := h.pendingTask(t, inst.ID)
	require.Equal(t, int64(20), task.AssigneeID)

	_, err := h.engine.Delegate(ctx, task.ID, 20, 20, "")
	assertKind(t, err, apperr.ErrValidation)

	_, err = h.engine.Delegate(ctx, task.ID, 20, 60, "")
	assertKind(t, err, apperr.ErrValidation)

	_, err = h.engine.Delegate(ctx, task.ID, 20, 404, "")
	assertKind(t, err, apperr.ErrNotFound)

	// 21 holds the role but is not the assignee
	_, err = h.engine.Delegate(ctx, task.ID, 21, 40, "")
	assertKind(t, err, apperr.ErrPermission)

	// 40 is neither assignee nor role holder
	_, err = h.engine.Delegate(ctx, task.ID, 40, 50, "")
	assertKind(t, err, apperr.ErrPermission)

	assert.Empty(t, h.historyOf(t, inst.ID))
	assert.Equal(t, task.ID, h.pendingTask(t, inst.ID).ID)

	// superusers may delegate on behalf of the assignee
	_, err = h.engine.Delegate(ctx, task.ID, 99, 40, "reassign")
	require.NoError(t, err)
	_, err = h.engine.Approve(ctx, h.pendingTask(t, inst.ID).ID, 40, "")
	require.NoError(t, err)
}

func TestWithdraw(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN, routingSteps()...)
	ctx := context.Background()

	var withdrawn int
	h.hooks.Register(dispatcher.Wildcard, string(entity.InstanceStatusWithdrawn), func(ctx context.Context, evt *event.Event) error {
		withdrawn++
		return nil
	})

	inst := h.submit(t, entity.EntityTypeECN, 5, nil)

	_, err := h.engine.Withdraw(ctx, inst.ID, 10)
	appErr := assertKind(t, err, apperr.ErrPermission)
	assert.Equal(t, inst.ID, appErr.InstanceID)

	_, err = h.engine.Withdraw(ctx, 404, 1)
	assertKind(t, err, apperr.ErrNotFound)

	got, err := h.engine.Withdraw(ctx, inst.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusWithdrawn, got.Status)
	assert.Equal(t, 1, withdrawn)

	tasks, err := h.tasks.ListByInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, entity.TaskStatusCancelled, tasks[0].Status)

	entries := h.historyOf(t, inst.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, entity.ActionWithdraw, entries[0].Action)
	assert.Equal(t, int64(1), entries[0].ApproverID)

	// the entity may be submitted again
	h.submit(t, entity.EntityTypeECN, 5, nil)
}

func TestLinearAuditTrail(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN, routingSteps()...)
	ctx := context.Background()

	inst := h.submit(t, entity.EntityTypeECN, 5, map[string]interface{}{"amount": 60000})

	_, err := h.engine.Delegate(ctx, h.pendingTask(t, inst.ID).ID, 10, 40, "a")
	require.NoError(t, err)
	_, err = h.engine.Approve(ctx, h.pendingTask(t, inst.ID).ID, 40, "b")
	require.NoError(t, err)
	_, err = h.engine.Approve(ctx, h.pendingTask(t, inst.ID).ID, 20, "c")
	require.NoError(t, err)
	_, err = h.engine.Reject(ctx, h.pendingTask(t, inst.ID).ID, 30, "d")
	require.NoError(t, err)

	entries := h.historyOf(t, inst.ID)
	require.Len(t, entries, 4)

	var actions []entity.Action
	var comments []string
	for _, e := range entries {
		actions = append(actions, e.Action)
		comments = append(comments, e.Comment)
	}
	assert.Equal(t, []entity.Action{entity.ActionDelegate, entity.ActionApprove, entity.ActionApprove, entity.ActionReject}, actions)
	assert.Equal(t, []string{"a", "b", "c", "d"}, comments)
	assert.Equal(t, []int{1, 1, 2, 3}, []int{entries[0].StepOrder, entries[1].StepOrder, entries[2].StepOrder, entries[3].StepOrder})
}

func TestHookFailureRollsBackTransition(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN, entity.StepDefinition{StepOrder: 1, ApproverID: 10})
	ctx := context.Background()

	var ran []string
	h.hooks.RegisterNamed(string(entity.EntityTypeECN), "APPROVED", "first", func(ctx context.Context, evt *event.Event) error {
		ran = append(ran, "first")
		return nil
	})
	h.hooks.RegisterNamed(string(entity.EntityTypeECN), "APPROVED", "invoice", func(ctx context.Context, evt *event.Event) error {
		ran = append(ran, "invoice")
		return errors.New("invoice numbering exhausted")
	})
	h.hooks.RegisterNamed(string(entity.EntityTypeECN), "APPROVED", "never", func(ctx context.Context, evt *event.Event) error {
		ran = append(ran, "never")
		return nil
	})

	inst := h.submit(t, entity.EntityTypeECN, 5, nil)
	task := h.pendingTask(t, inst.ID)

	_, err := h.engine.Approve(ctx, task.ID, 10, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoice numbering exhausted")
	assert.Equal(t, []string{"first", "invoice"}, ran)

	stored, err := h.instances.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusPending, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.True(t, h.pendingTask(t, inst.ID).IsPending())
	assert.Empty(t, h.historyOf(t, inst.ID))

	assert.Equal(t, 1, h.recorder.hookFailures["ECN/APPROVED"])
	assert.Zero(t, h.recorder.actions["ECN/APPROVE"])
	assert.Equal(t, []event.Type{event.TypeSubmitted}, h.publisher.types())
}

func TestPublisherFailureDoesNotUndoCommit(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("broker down")
	h.publish(t, entity.EntityTypeECN, routingSteps()...)

	inst := h.submit(t, entity.EntityTypeECN, 5, map[string]interface{}{"amount": 10000})
	_, err := h.engine.Approve(context.Background(), h.pendingTask(t, inst.ID).ID, 10, "")
	require.NoError(t, err)

	require.Len(t, h.publisher.events, 2)
	submitted := h.publisher.events[0]
	assert.Equal(t, event.TypeSubmitted, submitted.Type)
	assert.Equal(t, int64(10), submitted.AssigneeID)
	assert.Equal(t, "PENDING", submitted.Status)

	advanced := h.publisher.events[1]
	assert.Equal(t, event.TypeAdvanced, advanced.Type)
	assert.Equal(t, int64(30), advanced.AssigneeID)
	assert.Equal(t, 3, advanced.StepOrder)
}

func TestFormDataRefreshReroutesAndPersists(t *testing.T) {
	h := newHarness(t, WithFormDataRefresh(staticFormSource{"amount": 60000.0}))
	h.publish(t, entity.EntityTypeECN, routingSteps()...)
	ctx := context.Background()

	inst := h.submit(t, entity.EntityTypeECN, 5, map[string]interface{}{"amount": 10000})

	got, err := h.engine.Approve(ctx, h.pendingTask(t, inst.ID).ID, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentStep)
	assert.Equal(t, 60000.0, got.FormData["amount"])
}

func TestGetPendingTasks(t *testing.T) {
	h := newHarness(t)
	h.publish(t, entity.EntityTypeECN, routingSteps()...)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		h.submit(t, entity.EntityTypeECN, id, nil)
	}

	items, total, err := h.engine.GetPendingTasks(ctx, 10, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 2)

	items, total, err = h.engine.GetPendingTasks(ctx, 30, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)

	_, _, err = h.engine.GetPendingTasks(ctx, 10, 0, 0)
	assertKind(t, err, apperr.ErrValidation)
	_, _, err = h.engine.GetPendingTasks(ctx, 10, 0, 101)
	assertKind(t, err, apperr.ErrValidation)
	_, _, err = h.engine.GetPendingTasks(ctx, 10, -1, 10)
	assertKind(t, err, apperr.ErrValidation)
}

func TestApprove_AdvanceUsesEngineClock(t *testing.T) {
	submittedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	approvedAt := submittedAt.Add(2 * time.Hour)
	now := submittedAt

	h := newHarness(t, WithClock(func() time.Time { return now }))
	h.publish(t, entity.EntityTypeECN, routingSteps()...)
	ctx := context.Background()

	inst := h.submit(t, entity.EntityTypeECN, 5, map[string]interface{}{"amount": 10000})

	now = approvedAt
	_, err := h.engine.Approve(ctx, h.pendingTask(t, inst.ID).ID, 10, "ok")
	require.NoError(t, err)

	got, err := h.instances.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentStep)
	assert.True(t, got.UpdatedAt.Equal(approvedAt), "updated_at = %v, want %v", got.UpdatedAt, approvedAt)

	next := h.pendingTask(t, inst.ID)
	assert.True(t, next.CreatedAt.Equal(approvedAt))
}
