package container

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/pm-approval/internal/application/adapter"
	"github.com/garyjia/pm-approval/internal/application/authz"
	"github.com/garyjia/pm-approval/internal/application/dispatcher"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/application/registry"
	"github.com/garyjia/pm-approval/internal/application/service"
	"github.com/garyjia/pm-approval/internal/application/workflow"
	"github.com/garyjia/pm-approval/internal/infrastructure/metrics"
	"github.com/garyjia/pm-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/pm-approval/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	database     *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	metrics *metrics.Recorder
	lark    *LarkBundle
	amqp    *AMQPBundle

	// Application
	hooks    dispatcher.Dispatcher
	registry registry.Registry
	engine   workflow.Engine
	adapters *adapter.Set
	services *ServiceBundle

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Approval  service.ApprovalService
	Milestone service.MilestoneService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database and repositories
// 2. External integrations (metrics, Lark, AMQP)
// 3. Hook dispatcher, registry, engine and services
// 4. Template definitions from disk
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initExternal(ctx); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize external integrations: %w", err)
	}
	c.logger.Info("External integrations initialized",
		zap.Bool("lark", c.lark != nil),
		zap.Bool("amqp", c.amqp != nil),
		zap.Bool("metrics", c.metrics != nil))

	c.initWorkflow()
	c.logger.Info("Workflow engine and services initialized")

	if err := c.loadTemplates(ctx); err != nil {
		c.teardown()
		return fmt.Errorf("failed to load templates: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases the broker connection and then the database
func (c *Container) teardown() []error {
	var errs []error

	if c.amqp != nil {
		if err := c.amqp.Connection.Close(); err != nil {
			c.logger.Error("Failed to close AMQP connection", zap.Error(err))
			errs = append(errs, fmt.Errorf("close amqp: %w", err))
		} else {
			c.logger.Info("AMQP connection closed")
		}
		c.amqp = nil
	}

	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.database = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.database != nil {
		if err := c.database.PingContext(ctx); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	if c.engine != nil {
		status.Components["workflow"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["workflow"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	if c.amqp != nil {
		if _, err := c.amqp.Connection.Channel(ctx); err != nil {
			status.Components["amqp"] = ComponentHealth{
				Healthy: false,
				Message: err.Error(),
			}
			status.Overall = false
		} else {
			status.Components["amqp"] = ComponentHealth{Healthy: true}
		}
	}

	return status
}

// HealthChecks reports per-component errors for the HTTP health endpoint.
func (c *Container) HealthChecks(ctx context.Context) map[string]error {
	checks := make(map[string]error)
	for name, component := range c.Health(ctx).Components {
		if component.Healthy {
			checks[name] = nil
			continue
		}
		checks[name] = fmt.Errorf("%s", component.Message)
	}
	return checks
}

func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.database = dbBundle.DB
	c.db = dbBundle.TransactionMgr
	c.repositories = ProvideRepositories(dbBundle.DB.DB, c.logger)
	return nil
}

func (c *Container) initExternal(ctx context.Context) error {
	if c.config.Metrics.Enabled {
		c.metrics = metrics.NewRecorder()
	}

	if c.config.Lark.Enabled {
		c.lark = ProvideLark(&c.config.Lark, c.repositories.Users, c.logger)
	}

	if c.config.AMQP.Enabled {
		bundle, err := ProvideAMQP(ctx, &c.config.AMQP, c.logger)
		if err != nil {
			return err
		}
		c.amqp = bundle
	}

	return nil
}

// initWorkflow builds the engine and everything that drives it. The engine
// refreshes form data through the adapter set, which itself needs the engine,
// so the form source is filled in once the adapters exist.
func (c *Container) initWorkflow() {
	logger := &zapLoggerAdapter{logger: c.logger}
	repos := c.repositories

	c.hooks = dispatcher.NewDispatcher(dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: c.logger}))
	c.registry = registry.New(repos.Template, c.db, logger)

	var publishers []port.EventPublisher
	if c.lark != nil {
		publishers = append(publishers, c.lark.Notifier)
	}
	if c.amqp != nil {
		publishers = append(publishers, c.amqp.Publisher)
	}

	opts := []workflow.EngineOption{workflow.WithPublishers(publishers...)}
	if c.metrics != nil {
		opts = append(opts, workflow.WithRecorder(c.metrics))
	}
	formSource := &lazyFormSource{}
	if c.config.Workflow.RefreshFormData {
		opts = append(opts, workflow.WithFormDataRefresh(formSource))
	}

	c.engine = workflow.NewEngine(workflow.Deps{
		Registry:  c.registry,
		Resolver:  authz.NewResolver(repos.Users, repos.Task, repos.History),
		Hooks:     c.hooks,
		Instances: repos.Instance,
		Tasks:     repos.Task,
		History:   repos.History,
		Users:     repos.Users,
		TxManager: c.db,
		Logger:    logger,
	}, opts...)

	milestones := service.NewMilestoneService(repos.Milestone, c.hooks, c.db, logger)
	c.adapters = adapter.NewSet(
		adapter.NewECNAdapter(repos.ECN, c.engine, c.db, logger),
		adapter.NewQuoteAdapter(repos.Quote, c.engine, c.db, logger),
		adapter.NewAcceptanceAdapter(repos.Acceptance, milestones, c.engine, c.db, logger),
	)
	formSource.adapters = c.adapters
	c.adapters.RegisterHooks(c.hooks)

	service.NewMilestoneInvoiceHook(repos.PaymentPlan, repos.Invoice, service.InvoiceConfig{
		TaxRate:    c.config.Invoice.TaxRate,
		CodePrefix: c.config.Invoice.CodePrefix,
	}, logger).Register(c.hooks)

	c.services = &ServiceBundle{
		Approval: service.NewApprovalService(c.adapters, c.engine,
			repos.Instance, repos.Task, repos.History, c.db, logger),
		Milestone: milestones,
	}
}

func (c *Container) loadTemplates(ctx context.Context) error {
	path := c.config.Workflow.TemplatesFile
	if path == "" {
		return nil
	}

	published, err := registry.LoadFile(ctx, c.registry, path)
	if err != nil {
		return err
	}
	c.logger.Info("Templates loaded", zap.String("path", path), zap.Int("published", published))
	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// SQLDB returns the raw connection pool.
func (c *Container) SQLDB() *sql.DB {
	if c.database == nil {
		return nil
	}
	return c.database.DB
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Hooks returns the status hook dispatcher.
func (c *Container) Hooks() dispatcher.Dispatcher {
	return c.hooks
}

// Registry returns the template registry.
func (c *Container) Registry() registry.Registry {
	return c.registry
}

// Engine returns the workflow engine.
func (c *Container) Engine() workflow.Engine {
	return c.engine
}

// Adapters returns the business adapter set.
func (c *Container) Adapters() *adapter.Set {
	return c.adapters
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// MetricsHandler returns the Prometheus handler, or nil when metrics are off.
func (c *Container) MetricsHandler() http.Handler {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Handler()
}

// ServiceLogger returns the key/value logger handed to application services.
func (c *Container) ServiceLogger() service.Logger {
	return &zapLoggerAdapter{logger: c.logger}
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the application Logger interfaces.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// dispatcherLoggerAdapter adapts zap.Logger to the dispatcher.Logger interface.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Debug(msg, fields...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
