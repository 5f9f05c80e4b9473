package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/adapters/warehouse"
	"github.com/chinmayajena/sundaygraph/pkg/config"
	"github.com/chinmayajena/sundaygraph/pkg/cortex"
	"github.com/chinmayajena/sundaygraph/pkg/database"
	"github.com/chinmayajena/sundaygraph/pkg/deploy"
	"github.com/chinmayajena/sundaygraph/pkg/drift"
	"github.com/chinmayajena/sundaygraph/pkg/handlers"
	"github.com/chinmayajena/sundaygraph/pkg/logging"
	"github.com/chinmayajena/sundaygraph/pkg/repositories"
	"github.com/chinmayajena/sundaygraph/pkg/services"
	"github.com/chinmayajena/sundaygraph/pkg/services/workqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("port", cfg.Port),
		zap.String("warehouse_mode", cfg.Warehouse.Mode),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())))

	ctx := context.Background()

	// Migrations run through database/sql; the app itself uses pgx pools.
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	adapter := buildWarehouseAdapter(cfg, logger)

	ontologyRepo := repositories.NewOntologyRepository()
	versionRepo := repositories.NewVersionRepository()
	runRepo := repositories.NewRunRepository()
	driftRepo := repositories.NewDriftRepository()

	versionService := services.NewVersionService(&services.VersionServiceDeps{
		DB:               db,
		OntologyRepo:     ontologyRepo,
		VersionRepo:      versionRepo,
		RejectDuplicates: cfg.Versioning.RejectDuplicateContent,
		Logger:           logger,
	})

	lifecycleService := services.NewLifecycleService(&services.LifecycleServiceDeps{
		DB:           db,
		OntologyRepo: ontologyRepo,
		VersionRepo:  versionRepo,
		RunRepo:      runRepo,
		DriftRepo:    driftRepo,
		Deployer:     deploy.NewDeployer(adapter, cfg.Warehouse.VerifyTimeout, cfg.Warehouse.DeployTimeout, logger),
		Detector:     drift.NewDetector(adapter, logger),
		Regression:   cortex.NewRunner(adapter, cfg.Warehouse.AskTimeout, logger),
		ArtifactsDir: cfg.Artifacts.Dir,
		Logger:       logger,
	})

	runner := workqueue.NewRunner(cfg.Runner.MaxConcurrent, logger)
	defer runner.Shutdown()

	taskService := services.NewTaskService(lifecycleService, runner)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewOntologyHandler(versionService, logger).RegisterRoutes(mux)
	handlers.NewLifecycleHandler(taskService, logger).RegisterRoutes(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting sundaygraph", zap.String("addr", addr), zap.String("version", cfg.Version))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildWarehouseAdapter selects the configured warehouse backend. Mock
// mode needs no credentials and keeps the whole pipeline runnable
// locally.
func buildWarehouseAdapter(cfg *config.Config, logger *zap.Logger) warehouse.Adapter {
	if cfg.Warehouse.Mode == "snowflake" {
		return warehouse.NewSnowflake(newSnowflakeExecutor(cfg, logger), logger)
	}
	return warehouse.NewMock()
}
