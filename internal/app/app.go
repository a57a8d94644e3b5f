// Package app wires configuration into a runnable sync pipeline.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthsync/internal/checkpoint"
	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/coordinator"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/epoch"
	"example.com/healthsync/internal/logging"
	"example.com/healthsync/internal/observability"
	"example.com/healthsync/internal/persistence/postgres"
	"example.com/healthsync/internal/persistence/sqlite"
	"example.com/healthsync/internal/reconcile"
	"example.com/healthsync/internal/remote"
	"example.com/healthsync/internal/upload"
)

// App owns the long-lived collaborators of the syncer.
type App struct {
	cfg         config.Config
	catalog     domain.Catalog
	loc         *time.Location
	db          *sql.DB
	pool        *pgxpool.Pool
	store       checkpoint.Store
	samples     *sqlite.SampleSource
	deadLetters *sqlite.DeadLetterStore
	client      *remote.Client
	sink        *logging.Sink
	now         func() time.Time
}

// New opens the local database, the checkpoint backend and the server client.
func New(ctx context.Context, cfg config.Config, sink *logging.Sink) (*App, error) {
	if sink == nil {
		sink = logging.NewSink("")
	}
	catalog := domain.DefaultCatalog()
	if len(cfg.Activities) > 0 {
		subset, err := catalog.Subset(cfg.Activities)
		if err != nil {
			return nil, err
		}
		catalog = subset
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	db, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:         cfg,
		catalog:     catalog,
		loc:         loc,
		db:          db,
		samples:     sqlite.NewSampleSource(db, cfg.UserID),
		deadLetters: sqlite.NewDeadLetterStore(db),
		client:      remote.NewClient(cfg.ServerURL, cfg.UserID, cfg.ServerToken, &http.Client{Timeout: cfg.HTTPTimeout}),
		sink:        sink,
		now:         time.Now,
	}

	switch cfg.CheckpointBackend {
	case config.BackendSQLite:
		a.store = sqlite.NewCheckpointStore(db)
	case config.BackendFile:
		a.store, err = checkpoint.NewFileStore(cfg.CheckpointFile)
	case config.BackendMemory:
		a.store = checkpoint.NewMemoryStore()
	case config.BackendPostgres:
		a.pool, err = pgxpool.New(ctx, cfg.PostgresURL)
		if err == nil {
			a.store = postgres.NewCheckpointStore(a.pool, cfg.UserID)
		}
	default:
		err = fmt.Errorf("unknown checkpoint backend %q", cfg.CheckpointBackend)
	}
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Catalog returns the activities this App syncs.
func (a *App) Catalog() domain.Catalog { return a.catalog }

// Samples returns the local sample source.
func (a *App) Samples() *sqlite.SampleSource { return a.samples }

// DeadLetters returns the dead-letter store.
func (a *App) DeadLetters() *sqlite.DeadLetterStore { return a.deadLetters }

// Plan returns the epochs a pass started now would walk.
func (a *App) Plan() []domain.Epoch {
	return epoch.Generate(a.now().In(a.loc), a.cfg.PastPeriods)
}

// Checkpoints lists the stored checkpoints ordered by activity.
func (a *App) Checkpoints(ctx context.Context) ([]checkpoint.Entry, error) {
	return checkpoint.Sorted(ctx, a.store)
}

// RunPass walks every work unit once. progress may be nil.
func (a *App) RunPass(ctx context.Context, progress chan<- coordinator.Progress) (coordinator.Summary, error) {
	epochs := a.Plan()
	resolver, err := reconcile.New(a.store, a.client, epoch.EarliestStart(epochs),
		reconcile.WithLogger(a.sink.Logger("reconcile")))
	if err != nil {
		return coordinator.Summary{}, err
	}
	queue, err := upload.NewQueue(a.client,
		upload.WithLogger(a.sink.Logger("upload")),
		upload.WithDeadLetters(a.deadLetters),
		upload.WithMaxAttempts(a.cfg.UploadMaxAttempts),
		upload.WithBackoff(a.cfg.UploadBaseDelay, a.cfg.UploadMaxDelay),
	)
	if err != nil {
		return coordinator.Summary{}, err
	}
	opts := []coordinator.Option{
		coordinator.WithLogger(a.sink.Logger("coordinator")),
		coordinator.WithClock(a.now),
	}
	if progress != nil {
		opts = append(opts, coordinator.WithProgress(progress))
	}
	coord, err := coordinator.New(a.catalog, epochs, resolver, a.samples, queue, a.store, opts...)
	if err != nil {
		return coordinator.Summary{}, err
	}

	summary, err := coord.Run(ctx)
	if all, allErr := a.store.All(ctx); allErr == nil {
		observability.RecordCheckpoints(all)
	}
	if err != nil {
		return summary, err
	}
	observability.RecordPassCompleted(a.now())
	return summary, nil
}

// Close releases the databases.
func (a *App) Close() error {
	var errs error
	if a.pool != nil {
		a.pool.Close()
	}
	if a.db != nil {
		errs = errors.Join(errs, a.db.Close())
	}
	return errs
}
