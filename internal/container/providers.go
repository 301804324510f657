package container

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/pm-approval/internal/application/adapter"
	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/domain/entity"
	infraLark "github.com/garyjia/pm-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/pm-approval/internal/infrastructure/messaging"
	"github.com/garyjia/pm-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/pm-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/pm-approval/migrations"
	"github.com/garyjia/pm-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Template    port.TemplateRepository
	Instance    port.InstanceRepository
	Task        port.TaskRepository
	History     port.HistoryRepository
	Users       port.UserDirectory
	ECN         port.ECNRepository
	Quote       port.QuoteRepository
	Acceptance  port.AcceptanceRepository
	Milestone   port.MilestoneRepository
	PaymentPlan port.PaymentPlanRepository
	Invoice     port.InvoiceRepository
}

// LarkBundle holds all Lark-related components.
type LarkBundle struct {
	Client    *infraLark.SDKClient
	Messenger port.LarkMessageSender
	Notifier  *infraLark.TaskNotifier
}

// AMQPBundle holds the broker connection and event publisher.
type AMQPBundle struct {
	Connection *messaging.Connection
	Publisher  *messaging.EventPublisher
}

// ProvideDatabase opens the database and applies the embedded migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates every repository over one connection pool.
func ProvideRepositories(db *sql.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Template:    repository.NewTemplateRepository(db, logger),
		Instance:    repository.NewInstanceRepository(db, logger),
		Task:        repository.NewTaskRepository(db, logger),
		History:     repository.NewHistoryRepository(db, logger),
		Users:       repository.NewUserRepository(db, logger),
		ECN:         repository.NewECNRepository(db, logger),
		Quote:       repository.NewQuoteRepository(db, logger),
		Acceptance:  repository.NewAcceptanceRepository(db, logger),
		Milestone:   repository.NewMilestoneRepository(db, logger),
		PaymentPlan: repository.NewPaymentPlanRepository(db, logger),
		Invoice:     repository.NewInvoiceRepository(db, logger),
	}
}

// ProvideLark creates the Lark client and the task notifier.
func ProvideLark(cfg *LarkConfig, users port.UserDirectory, logger *zap.Logger) *LarkBundle {
	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
	}, logger)
	messenger := infraLark.NewMessenger(client, logger)

	return &LarkBundle{
		Client:    client,
		Messenger: messenger,
		Notifier:  infraLark.NewTaskNotifier(messenger, users, logger),
	}
}

// ProvideAMQP connects to the broker and declares the event exchange.
func ProvideAMQP(ctx context.Context, cfg *AMQPConfig, logger *zap.Logger) (*AMQPBundle, error) {
	conn, err := messaging.Dial(cfg.URL, logger)
	if err != nil {
		return nil, err
	}

	publisher := messaging.NewEventPublisher(conn, cfg.Exchange, logger)
	if err := publisher.DeclareTopology(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQPBundle{Connection: conn, Publisher: publisher}, nil
}

// lazyFormSource lets the engine refresh form data through adapters that are
// built after it
type lazyFormSource struct {
	adapters *adapter.Set
}

func (s *lazyFormSource) FormData(ctx context.Context, entityType entity.EntityType, entityID int64) (map[string]interface{}, error) {
	if s.adapters == nil {
		return nil, fmt.Errorf("form data source is not ready")
	}
	return s.adapters.FormData(ctx, entityType, entityID)
}
