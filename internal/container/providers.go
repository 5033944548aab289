package container

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/dispatcher"
	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/application/service"
	"github.com/garyjia/controlled-docs/internal/application/workflow"
	infraLark "github.com/garyjia/controlled-docs/internal/infrastructure/external/lark"
	"github.com/garyjia/controlled-docs/internal/infrastructure/leader"
	"github.com/garyjia/controlled-docs/internal/infrastructure/logsink"
	"github.com/garyjia/controlled-docs/internal/infrastructure/persistence/repository"
	"github.com/garyjia/controlled-docs/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/controlled-docs/internal/infrastructure/raci"
	"github.com/garyjia/controlled-docs/internal/infrastructure/storage"
	"github.com/garyjia/controlled-docs/internal/infrastructure/worker"
	"github.com/garyjia/controlled-docs/pkg/database"
	"github.com/garyjia/controlled-docs/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// LeaderBundle holds the leader lock and its cleanup.
type LeaderBundle struct {
	Lock  port.LeaderLock
	Kind  string
	Close func() error
}

// NotifierBundle holds the escalation notifier.
type NotifierBundle struct {
	Notifier port.Notifier
	Kind     string
	// Lark is set when escalations go out over Lark IM
	Lark *infraLark.Notifier
}

// ProvideDatabase opens the database and applies pending migrations.
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
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.NewMigrator(db, logger).Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates every sqlite repository.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Documents:   repository.NewDocumentRepository(db.DB, logger),
		Versions:    repository.NewVersionRepository(db.DB, logger),
		Transitions: repository.NewTransitionRepository(db.DB, logger),
		Comments:    repository.NewCommentRepository(db.DB, logger),
		Policies:    repository.NewPolicyRepository(db.DB, logger),
		Templates:   repository.NewTemplateRepository(db.DB, logger),
		Escalations: repository.NewEscalationRepository(db.DB, logger),
	}, nil
}

// ProvideStorage creates the rendition store rooted at cfg.BaseDir.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (port.FileStorage, error) {
	if cfg == nil || cfg.BaseDir == "" {
		return nil, fmt.Errorf("storage base directory is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return storage.NewLocalFileStorage(cfg.BaseDir, logger), nil
}

// ProvideLeaderLock connects the Redis lease lock, or falls back to the
// in-process lock when no address is configured.
func ProvideLeaderLock(cfg *RedisConfig, logger *zap.Logger) (*LeaderBundle, error) {
	if cfg == nil || cfg.Address == "" {
		logger.Info("Redis not configured, using in-process leader lock")
		return &LeaderBundle{
			Lock:  leader.NewLocalLock(),
			Kind:  "local",
			Close: func() error { return nil },
		}, nil
	}

	lock, err := leader.NewRedisLock(leader.Config{
		Address:      cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		KeyPrefix:    cfg.KeyPrefix,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis leader lock: %w", err)
	}

	return &LeaderBundle{
		Lock:  lock,
		Kind:  "redis",
		Close: lock.Close,
	}, nil
}

// ProvideNotifier creates the Lark escalation notifier, or a log-only
// notifier when Lark credentials are absent.
func ProvideNotifier(cfg *LarkConfig, delivery *DeliveryConfig, logger *zap.Logger) *NotifierBundle {
	if cfg == nil || cfg.AppID == "" || cfg.AppSecret == "" {
		logger.Info("Lark not configured, escalations are logged only")
		return &NotifierBundle{
			Notifier: logsink.NewLogNotifier(logger),
			Kind:     "log",
		}
	}

	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:          cfg.AppID,
		AppSecret:      cfg.AppSecret,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	notifier := infraLark.NewNotifier(
		infraLark.NewMessageAPI(client, logger),
		infraLark.NotifierConfig{
			ReceiveIDType:    cfg.ReceiveIDType,
			BreakerThreshold: delivery.BreakerThreshold,
			BreakerTimeout:   delivery.BreakerTimeout,
		},
		logger,
	)
	return &NotifierBundle{
		Notifier: notifier,
		Kind:     "lark",
		Lark:     notifier,
	}
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))))
}

// WorkflowDeps holds dependencies for the lifecycle engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Files      port.FileStorage
	Dispatcher dispatcher.Dispatcher
	Lifecycle  *LifecycleConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the lifecycle engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.Engine, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}

	return workflow.NewEngine(workflow.Repositories{
		Documents:   deps.Repos.Documents,
		Versions:    deps.Repos.Versions,
		History:     deps.Repos.Transitions,
		Comments:    deps.Repos.Comments,
		Policies:    deps.Repos.Policies,
		Templates:   deps.Repos.Templates,
		Files:       deps.Files,
		Transaction: deps.TxManager,
	},
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(utils.NewKVLogger(deps.Logger.Named("workflow"))),
		workflow.WithLockTTL(deps.Lifecycle.LockTTL),
	), nil
}

// ServiceDeps holds dependencies for application services.
type ServiceDeps struct {
	Repos       *RepositoryBundle
	TxManager   port.TransactionManager
	Dispatcher  dispatcher.Dispatcher
	Notifier    port.Notifier
	Delivery    *DeliveryConfig
	Concurrency int
	Logger      *zap.Logger
}

// ProvideServices creates application services and subscribes the audit
// sink to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	serviceLogger := utils.NewKVLogger(deps.Logger.Named("service"))

	audit := service.NewAuditService(logsink.NewAuditSink(deps.Logger), serviceLogger)
	audit.Register(deps.Dispatcher)

	return &ServiceBundle{
		Escalation: service.NewEscalationService(
			deps.Repos.Versions,
			deps.Repos.Policies,
			deps.Repos.Escalations,
			deps.TxManager,
			deps.Dispatcher,
			serviceLogger,
			deps.Concurrency,
		),
		Notification: service.NewNotificationService(
			deps.Repos.Escalations,
			deps.Repos.Documents,
			deps.Repos.Versions,
			deps.Repos.Policies,
			deps.Notifier,
			service.DeliveryConfig{
				MaxAttempts:   deps.Delivery.MaxAttempts,
				RetryAttempts: deps.Delivery.RetryAttempts,
				RetryDelay:    deps.Delivery.RetryDelay,
				BatchSize:     deps.Delivery.BatchSize,
			},
			serviceLogger,
		),
		Audit:  audit,
		Policy: service.NewPolicyService(deps.Repos.Policies, raci.NewExcelParser(deps.Logger), serviceLogger),
	}, nil
}

// WorkerDeps holds dependencies for background workers.
type WorkerDeps struct {
	Services  *ServiceBundle
	Engine    workflow.Engine
	Leader    port.LeaderLock
	WorkerCfg *WorkerConfig
	Logger    *zap.Logger
}

// ProvideWorkers creates the worker manager with the enabled workers.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	if deps == nil || deps.WorkerCfg == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}

	manager := worker.NewManager(deps.Logger)

	if deps.WorkerCfg.EscalationEnabled {
		manager.Register(worker.NewEscalationWorker(
			worker.EscalationWorkerConfig{
				Interval: deps.WorkerCfg.EscalationInterval,
				LockTTL:  deps.WorkerCfg.EscalationLockTTL,
			},
			deps.Services.Escalation,
			deps.Services.Notification,
			deps.Leader,
			deps.Logger,
		))
	}

	if deps.WorkerCfg.RetentionEnabled {
		manager.Register(worker.NewRetentionWorker(
			worker.RetentionWorkerConfig{Interval: deps.WorkerCfg.RetentionInterval},
			deps.Engine,
			deps.Leader,
			deps.Logger,
		))
	}

	return manager, nil
}
