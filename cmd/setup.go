package cmd

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"order-sync/core/config"
	"order-sync/core/database"
	"order-sync/core/identity"
	"order-sync/core/logger"
	"order-sync/core/reconcile"
	"order-sync/core/registry"
	"order-sync/core/tracker"
	"order-sync/feature/workorder"
)

// app bundles the wired dependencies shared by every subcommand.
type app struct {
	cfg  *config.Config
	log  *zap.Logger
	db   *gorm.DB
	ids  identity.Store
	rows *workorder.RowStore
}

// newApp loads configuration and connects the local stores.
func newApp() (*app, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	zap.ReplaceGlobals(log)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	var ids identity.Store
	switch cfg.Identity.Backend {
	case "catalog":
		ids, err = identity.NewCatalog(cfg.Identity.CatalogPath)
	default:
		ids, err = identity.NewDBStore(db)
	}
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}

	rows, err := workorder.NewRowStore(db)
	if err != nil {
		return nil, fmt.Errorf("open row store: %w", err)
	}

	return &app{cfg: cfg, log: log, db: db, ids: ids, rows: rows}, nil
}

// service wires the remote tracker, executor and registry for a run.
func (a *app) service(opts reconcile.Options) (*workorder.Service, error) {
	client, err := tracker.NewClient(a.cfg.Tracker, a.log)
	if err != nil {
		return nil, fmt.Errorf("create tracker client: %w", err)
	}

	exec, err := reconcile.NewExecutor(client, a.ids, a.log, opts)
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}

	reg, err := registry.Load(a.cfg.Registry)
	if err != nil {
		return nil, err
	}

	return workorder.NewService(a.rows, a.ids, exec, reg, a.log, opts), nil
}

// ingestor wires the workbook reader.
func (a *app) ingestor() *workorder.Ingestor {
	return workorder.NewIngestor(a.rows, a.ids, a.log)
}
