package container

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tradeflow/approval-engine/internal/application/engine"
	"github.com/tradeflow/approval-engine/internal/application/port"
	"github.com/tradeflow/approval-engine/internal/application/sla"
	"github.com/tradeflow/approval-engine/internal/config"
	"github.com/tradeflow/approval-engine/internal/domain/document"
	"github.com/tradeflow/approval-engine/internal/domain/policy"
	"github.com/tradeflow/approval-engine/internal/httpapi"
	"github.com/tradeflow/approval-engine/internal/infrastructure/notify"
	sqlitestore "github.com/tradeflow/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/tradeflow/approval-engine/internal/infrastructure/roles"
	"github.com/tradeflow/approval-engine/internal/infrastructure/worker"
	"github.com/tradeflow/approval-engine/pkg/database"
)

// Container wires all application dependencies in order: database and
// policy tables first, then collaborators, then the engine, workers and
// HTTP surface. Teardown runs in reverse.
type Container struct {
	cfg    *config.Config
	logger *zap.Logger

	db        *database.DB
	store     port.DocumentStore
	registry  *policy.Registry
	evaluator *policy.Evaluator
	resolver  port.RoleResolver
	notifier  *notify.AsyncNotifier
	engine    engine.Engine
	monitor   *sla.Monitor
	workers   *worker.Manager
	router    *gin.Engine

	closed atomic.Bool
}

// New builds the fully wired container.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	c := &Container{cfg: cfg, logger: logger}

	registry, evaluator, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		return nil, fmt.Errorf("load workflow policies: %w", err)
	}
	c.registry = registry
	c.evaluator = evaluator
	logger.Info("Workflow policies loaded", zap.Int("kinds", len(registry.Kinds())))

	db, err := database.Open(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	c.db = db

	store := sqlitestore.NewDocumentStore(db.DB, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	c.store = store

	c.resolver = roles.NewStaticResolver(approverMappings(cfg))

	senders := []port.NotificationSender{notify.NewLogSender(logger)}
	if cfg.Lark.Enabled {
		senders = append(senders, notify.NewLarkSender(notify.LarkConfig{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			ChatID:    cfg.Lark.ChatID,
		}, logger))
	}
	c.notifier = notify.NewAsyncNotifier(logger, senders...)

	c.engine = engine.NewEngine(c.store, c.registry, c.evaluator, c.resolver,
		engine.WithNotifier(c.notifier),
		engine.WithLogger(logger),
	)

	c.monitor = sla.NewMonitor(c.registry)

	c.workers = worker.NewManager(logger)
	c.workers.Register(worker.NewSLAWorker(c.store, c.monitor, c.notifier, cfg.SLA.ScanInterval, logger))

	handler := httpapi.NewHandler(c.engine, c.store, c.monitor, logger)
	c.router = httpapi.NewRouter(handler)

	return c, nil
}

// Engine returns the workflow engine.
func (c *Container) Engine() engine.Engine {
	return c.engine
}

// Router returns the HTTP router.
func (c *Container) Router() *gin.Engine {
	return c.router
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Close tears components down in reverse initialization order.
func (c *Container) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error
	if err := c.workers.StopAll(); err != nil {
		firstErr = err
	}
	if err := c.notifier.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func approverMappings(cfg *config.Config) map[document.Kind]roles.KindMappings {
	byKind := make(map[document.Kind]roles.KindMappings, len(cfg.Approvers))
	for kind, ac := range cfg.Approvers {
		byKind[document.Kind(kind)] = roles.KindMappings{
			Roles: ac.Roles,
			Users: ac.Users,
		}
	}
	return byKind
}
