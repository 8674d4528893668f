package runindex

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

const defaultListLimit = 50

type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	mu     sync.Mutex
	closed bool
}

func newRepository(cfg Config, log logger.Logger) (*repository, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Debug().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Run index opened")

	return &repository{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (r *repository) Record(ctx context.Context, entry *Entry) error {
	errFactory := errors.New()

	if entry == nil || entry.Dir == "" || entry.Trial <= 0 {
		return errFactory.New(ErrInvalidEntry)
	}

	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, insertRunSQL,
		entry.Dir,
		entry.Animal,
		entry.Sample,
		entry.Trial,
		entry.Protocol,
		entry.Outcome,
		entry.Steps,
		entry.Rows,
		entry.Duration.Milliseconds(),
		created.UnixMilli(),
	)
	if err != nil {
		if ctx.Err() != nil {
			return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
		}
		return errFactory.Wrap(ErrRecordFailed, err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}

	r.logger.Debug().
		Str("dir", entry.Dir).
		Int64("id", entry.ID).
		Msg("Run recorded in index")

	return nil
}

func (r *repository) List(ctx context.Context, limit int) ([]Entry, error) {
	errFactory := errors.New()

	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			duration int64
			created  int64
		)
		if err := rows.Scan(
			&e.ID, &e.Dir, &e.Animal, &e.Sample, &e.Trial, &e.Protocol,
			&e.Outcome, &e.Steps, &e.Rows, &duration, &created,
		); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		e.Duration = time.Duration(duration) * time.Millisecond
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return entries, nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to checkpoint run index")
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	return nil
}
