package workflow

import (
	"context"
	"time"

	"github.com/garyjia/pm-approval/internal/application/authz"
	"github.com/garyjia/pm-approval/internal/application/dispatcher"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/application/registry"
	"github.com/garyjia/pm-approval/internal/domain/entity"
)

// Engine runs approval instances. Every mutating call executes in one
// transaction; status-change hooks run inside it and post-commit publishers
// run after it.
type Engine interface {
	// Submit creates an instance and the task for its first eligible step
	Submit(ctx context.Context, req SubmitRequest) (*entity.ApprovalInstance, error)

	// Approve completes the task and advances to the next eligible step, or
	// finishes the instance as APPROVED when none is left
	Approve(ctx context.Context, taskID, approverID int64, comment string) (*entity.ApprovalInstance, error)

	// Reject completes the task and finishes the instance as REJECTED
	Reject(ctx context.Context, taskID, approverID int64, comment string) (*entity.ApprovalInstance, error)

	// Delegate hands the task to another user at the same step
	Delegate(ctx context.Context, taskID, approverID, delegateToID int64, comment string) (*entity.ApprovalInstance, error)

	// Withdraw lets the initiator cancel a pending instance
	Withdraw(ctx context.Context, instanceID, userID int64) (*entity.ApprovalInstance, error)

	// GetPendingTasks lists tasks awaiting the user as direct assignee
	GetPendingTasks(ctx context.Context, userID int64, offset, limit int) ([]*entity.PendingTaskView, int, error)
}

// SubmitRequest carries the data needed to open an instance
type SubmitRequest struct {
	EntityType  entity.EntityType
	EntityID    int64
	InitiatorID int64
	Urgency     entity.Urgency
	FormData    map[string]interface{}
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Recorder receives counters for committed actions and failed hooks
type Recorder interface {
	RecordAction(entityType, action string)
	RecordHookFailure(entityType, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAction(string, string)      {}
func (nopRecorder) RecordHookFailure(string, string) {}

// Deps groups the collaborators the engine cannot run without
type Deps struct {
	Registry  registry.Registry
	Resolver  authz.Resolver
	Hooks     dispatcher.Dispatcher
	Instances port.InstanceRepository
	Tasks     port.TaskRepository
	History   port.HistoryRepository
	Users     port.UserDirectory
	TxManager port.TransactionManager
	Logger    Logger
}

type engineImpl struct {
	registry  registry.Registry
	resolver  authz.Resolver
	hooks     dispatcher.Dispatcher
	instances port.InstanceRepository
	tasks     port.TaskRepository
	history   port.HistoryRepository
	users     port.UserDirectory
	tx        port.TransactionManager
	logger    Logger

	publishers []port.EventPublisher
	formSource port.FormDataSource
	metrics    Recorder
	clock      func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithPublishers adds publishers that receive events after commit
func WithPublishers(publishers ...port.EventPublisher) EngineOption {
	return func(e *engineImpl) {
		e.publishers = append(e.publishers, publishers...)
	}
}

// WithFormDataRefresh makes the engine route on a fresh snapshot from src
// whenever it advances, instead of the snapshot taken at submission
func WithFormDataRefresh(src port.FormDataSource) EngineOption {
	return func(e *engineImpl) {
		e.formSource = src
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) EngineOption {
	return func(e *engineImpl) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithClock overrides time.Now, for tests
func WithClock(clock func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.clock = clock
	}
}

// NewEngine creates a new workflow engine
func NewEngine(deps Deps, opts ...EngineOption) Engine {
	e := &engineImpl{
		registry:  deps.Registry,
		resolver:  deps.Resolver,
		hooks:     deps.Hooks,
		instances: deps.Instances,
		tasks:     deps.Tasks,
		history:   deps.History,
		users:     deps.Users,
		tx:        deps.TxManager,
		logger:    deps.Logger,
		metrics:   nopRecorder{},
		clock:     time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}
