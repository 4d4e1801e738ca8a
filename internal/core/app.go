package core

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/kalendo/pluginhub/internal/config"
	"github.com/kalendo/pluginhub/internal/db"
	"github.com/kalendo/pluginhub/internal/events"
	"github.com/kalendo/pluginhub/internal/installer"
	"github.com/kalendo/pluginhub/internal/jobs"
	"github.com/kalendo/pluginhub/internal/plugins"
	"github.com/kalendo/pluginhub/internal/store"
	"github.com/kalendo/pluginhub/internal/websocket"
)

// App holds the core components of the application that are shared
// between the server and the CLI. It is built once at startup and handed
// to everything that needs the plugin system.
type App struct {
	config       *config.Config
	db           *sql.DB
	store        *store.Store
	wsHub        *websocket.Hub
	notifier     *events.Notifier
	jobManager   *jobs.JobManager
	repositories *plugins.RepositoryManager
	updates      *plugins.UpdateManager
	installer    *installer.Manager

	watcher   *installer.Watcher
	scheduler *jobs.Scheduler
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, and running migrations.
func New() (*App, error) {
	// Load configuration from config.yml
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewWithConfig(cfg, nil)
}

// NewWithConfig builds an App from cfg. transport may be nil, in which case
// the HTTP transport is used.
func NewWithConfig(cfg *config.Config, transport plugins.Transport) (*App, error) {
	// Initialize the database connection
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	if err := db.RunMigrations(database); err != nil {
		// We can't proceed without a valid database schema.
		// Close the DB connection before failing.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	app := &App{
		config: cfg,
		db:     database,
		store:  store.New(database),
		wsHub:  websocket.NewHub(),
	}
	go app.wsHub.Run()

	app.notifier = events.NewNotifier(app.wsHub)
	if transport == nil {
		transport = plugins.NewHTTPTransport(cfg)
	}
	storage := app.store.Namespaced(cfg.Storage.Prefix)

	app.installer, err = installer.NewManager(app.store, cfg.Plugins.Path)
	if err != nil {
		database.Close()
		return nil, err
	}

	ctx := context.Background()
	app.repositories = plugins.NewRepositoryManager(cfg, storage, transport, app.notifier)
	if err := app.repositories.Initialize(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	app.updates = plugins.NewUpdateManager(cfg, app.repositories, app.installer, app.installer, transport, storage, app.notifier)
	if err := app.updates.Initialize(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize update manager: %w", err)
	}

	app.jobManager = jobs.NewManager(app)
	jobs.RegisterJobs(app.jobManager)

	log.Println("Core application setup complete.")
	return app, nil
}

// StartBackground starts the plugin directory watcher and the job
// scheduler. Only long-running processes call it.
func (a *App) StartBackground() error {
	a.watcher = installer.NewWatcher(a.installer, 0)
	if err := a.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start plugin watcher: %w", err)
	}
	a.scheduler = jobs.StartJobs(a)
	return nil
}

func (a *App) Config() *config.Config                   { return a.config }
func (a *App) DB() *sql.DB                              { return a.db }
func (a *App) Store() *store.Store                      { return a.store }
func (a *App) WsHub() *websocket.Hub                    { return a.wsHub }
func (a *App) Notifier() *events.Notifier               { return a.notifier }
func (a *App) JobManager() *jobs.JobManager             { return a.jobManager }
func (a *App) Repositories() *plugins.RepositoryManager { return a.repositories }
func (a *App) Updates() *plugins.UpdateManager          { return a.updates }
func (a *App) Installer() *installer.Manager            { return a.installer }

// Close gracefully closes the application's resources, like the DB connection.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.jobManager != nil {
		a.jobManager.Wait()
	}
	if a.repositories != nil {
		a.repositories.Wait()
	}
	if a.db != nil {
		a.db.Close()
	}
}
