package bootstrap

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"filevault-backend/internal/files"
	"filevault-backend/internal/leads"
	"filevault-backend/internal/reconcile"
	"filevault-backend/internal/scheduler"
	"filevault-backend/internal/shared/config"
	"filevault-backend/internal/shared/server"
	"filevault-backend/internal/shared/server/middleware"
	"filevault-backend/internal/shared/storage/db"
	"filevault-backend/internal/shared/storage/object"
	localstore "filevault-backend/internal/shared/storage/object/local"
	s3store "filevault-backend/internal/shared/storage/object/s3"
	"filevault-backend/internal/shared/telemetry"
)

// ErrUnknownJob is returned by Job for names no reconciler answers to.
var ErrUnknownJob = errors.New("unknown job")

// App holds shared dependencies.
type App struct {
	Config       config.Config
	DB           *sql.DB
	Store        object.ObjectStore
	LocalStore   *localstore.Store
	FilesRepo    files.FilesRepo
	LeadsRepo    leads.LeadsRepo
	FilesService *files.Service
	Refresher    *reconcile.Refresher
	Orphans      *reconcile.OrphanReconciler
	LeadExpirer  *reconcile.LeadExpirer
	Scheduler    *scheduler.Scheduler
	Router       *gin.Engine
}

// Build connects stores and wires every reconciler, the scheduler and the ops router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	telemetry.SetLevel(cfg.LogLevel)

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB}
	if err := app.buildStore(ctx); err != nil {
		app.Close()
		return nil, err
	}
	app.buildRepos()
	app.buildJobs()

	deps := server.Deps{
		Jobs:        app.Scheduler,
		TriggerRule: middleware.Rule{Rate: 1.0 / 30, Burst: 2},
		LocalStore:  app.LocalStore,
	}
	if sqlDB != nil {
		deps.DB = sqlDB
	}
	app.Router = server.NewRouter(deps)

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":          cfg.Env,
		"object_store": cfg.ObjectStoreType,
		"database":     sqlDB != nil,
		"jobs":         app.JobNames(),
	})
	return app, nil
}

// buildDB falls back to memory repos only when no DATABASE_URL is configured
// in a dev-like env. A configured database that cannot be reached or migrated
// is an error: jobs must never reconcile against an empty record set.
func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func (a *App) buildStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.ObjectStoreType {
	case "s3":
		store, err := s3store.New(ctx, s3store.Options{
			Region:          cfg.AWSRegion,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			KMSKeyID:        cfg.SSEKMSKeyID,
		})
		if err != nil {
			return fmt.Errorf("s3 store: %w", err)
		}
		a.Store = store
	default:
		key := cfg.LocalSigningKey
		if key == "" {
			if !isDevLike(cfg.Env) {
				return fmt.Errorf("LOCAL_SIGNING_KEY is required outside dev")
			}
			key = randomKey()
			telemetry.Warn("bootstrap.ephemeral_signing_key", map[string]any{"reason": "LOCAL_SIGNING_KEY empty"})
		}
		store, err := localstore.New(localstore.Options{
			BaseDir:       cfg.LocalStoreDir,
			PublicBaseURL: cfg.LocalPublicBaseURL,
			SigningKey:    key,
		})
		if err != nil {
			return fmt.Errorf("local store: %w", err)
		}
		a.Store = store
		a.LocalStore = store
	}
	return nil
}

func (a *App) buildRepos() {
	if a.DB != nil {
		a.FilesRepo = &files.PGRepo{DB: a.DB}
		a.LeadsRepo = &leads.PGRepo{DB: a.DB}
	} else {
		a.FilesRepo = files.NewMemoryRepo()
		a.LeadsRepo = leads.NewMemoryRepo()
	}
	a.FilesService = &files.Service{
		Store:    a.Store,
		Repo:     a.FilesRepo,
		Validity: a.Config.SignedURLValidity,
	}
}

func (a *App) buildJobs() {
	cfg := a.Config
	a.Refresher = &reconcile.Refresher{
		Files:       a.FilesRepo,
		Signer:      a.Store,
		Validity:    cfg.SignedURLValidity,
		Lookahead:   cfg.Jobs.Refresh.Lookahead,
		PageSize:    cfg.Jobs.Refresh.PageSize,
		Concurrency: cfg.BatchConcurrency,
	}
	a.LeadExpirer = &reconcile.LeadExpirer{
		Leads: a.LeadsRepo,
		TTL:   cfg.Jobs.Leads.TTL,
	}
	entries := []scheduler.Entry{
		{Job: a.Refresher, Interval: cfg.Jobs.Refresh.Interval},
		{Job: a.LeadExpirer, Interval: cfg.Jobs.Leads.Interval},
	}

	// Memory repos only know about files uploaded by this process, so orphan
	// cleanup is limited to the process-local dev store.
	if a.DB == nil && a.LocalStore == nil {
		telemetry.Warn("bootstrap.orphan_cleanup_disabled", map[string]any{
			"reason":       "memory repos with a shared object store",
			"object_store": cfg.ObjectStoreType,
		})
	} else {
		a.Orphans = &reconcile.OrphanReconciler{
			Files:       a.FilesRepo,
			Store:       a.Store,
			GracePeriod: cfg.Jobs.Orphans.GracePeriod,
			Concurrency: cfg.BatchConcurrency,
		}
		entries = append(entries, scheduler.Entry{Job: a.Orphans, Interval: cfg.Jobs.Orphans.Interval})
	}
	a.Scheduler = scheduler.New(cfg.ShutdownTimeout, entries...)
}

// Jobs returns every reconciler.
func (a *App) Jobs() []reconcile.Job {
	jobs := []reconcile.Job{a.Refresher, a.LeadExpirer}
	if a.Orphans != nil {
		jobs = append(jobs, a.Orphans)
	}
	return jobs
}

// JobNames returns the registered job names, sorted.
func (a *App) JobNames() []string {
	var names []string
	for _, j := range a.Jobs() {
		names = append(names, j.Name())
	}
	sort.Strings(names)
	return names
}

// Job looks a reconciler up by name.
func (a *App) Job(name string) (reconcile.Job, error) {
	for _, j := range a.Jobs() {
		if j.Name() == name {
			return j, nil
		}
	}
	return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownJob, name, strings.Join(a.JobNames(), ", "))
}

// Close releases the database pool.
func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func randomKey() string {
	var b [32]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
