// Package archive persists finished runs to an embedded sqlite
// database: the run summary, its fault report if any, and the full
// dispatch journal. Live run state never lives here; a run is archived
// once, after it reaches a terminal state.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/NK-639/ALHS-Backend/internal/journal"
	"github.com/NK-639/ALHS-Backend/internal/orchestrator"
	"github.com/NK-639/ALHS-Backend/pkg/metrics"
)

// ErrNotFound is returned when a run id is not archived.
var ErrNotFound = errors.New("run not found in archive")

// Config holds archive configuration.
type Config struct {
	// Path is the sqlite database file. ":memory:" gives an ephemeral
	// archive for tests and dry runs.
	Path string `validate:"required"`

	// BusyTimeout bounds waiting on the sqlite write lock.
	BusyTimeout time.Duration
}

// DefaultConfig returns the default archive configuration.
func DefaultConfig() Config {
	return Config{
		Path:        "alhs-archive.db",
		BusyTimeout: 5 * time.Second,
	}
}

// Record is one archived run.
type Record struct {
	ID             uuid.UUID                 `json:"id"`
	CompilationID  uuid.UUID                 `json:"compilation_id"`
	SourceName     string                    `json:"source_name"`
	State          string                    `json:"state"`
	CommandsTotal  int                       `json:"commands_total"`
	CommandsDone   int                       `json:"commands_done"`
	Fault          *orchestrator.FaultReport `json:"fault,omitempty"`
	StartedAt      time.Time                 `json:"started_at"`
	FinishedAt     time.Time                 `json:"finished_at"`
	ArchivedAt     time.Time                 `json:"archived_at"`
	JournalEntries int                       `json:"journal_entries"`
}

// Entry is one archived journal entry.
type Entry struct {
	Seq          uint64     `json:"seq"`
	Attempt      int        `json:"attempt"`
	Command      string     `json:"command"`
	Outcome      string     `json:"outcome"`
	Reason       string     `json:"reason,omitempty"`
	DispatchedAt time.Time  `json:"dispatched_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// Archive is a sqlite-backed run archive. Safe for concurrent use;
// sqlite serializes writers internally.
type Archive struct {
	db     *sql.DB
	config Config
}

// Open opens (or creates) the archive database and applies the schema.
func Open(cfg Config) (*Archive, error) {
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = DefaultConfig().BusyTimeout
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive schema: %w", err)
	}

	return &Archive{db: db, config: cfg}, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Health reports whether the database is reachable.
func (a *Archive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// ArchiveRun stores a finished run and its journal atomically.
func (a *Archive) ArchiveRun(ctx context.Context, rec Record, entries []journal.Entry) (err error) {
	timer := metrics.Global().Archive().NewOpTimer(metrics.ArchiveOpInsert)
	defer func() { timer.Done(err) }()

	var faultJSON *string
	if rec.Fault != nil {
		data, jerr := json.Marshal(rec.Fault)
		if jerr != nil {
			return fmt.Errorf("encode fault report: %w", jerr)
		}
		s := string(data)
		faultJSON = &s
	}
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now().UTC()
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, compilation_id, source_name, state, commands_total,
			commands_done, fault_json, started_at, finished_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID.String(), rec.CompilationID.String(), rec.SourceName, rec.State,
		rec.CommandsTotal, rec.CommandsDone, faultJSON,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(), rec.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, entry := range entries {
		var resolvedAt *time.Time
		if !entry.ResolvedAt.IsZero() {
			t := entry.ResolvedAt.UTC()
			resolvedAt = &t
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO journal_entries (run_id, seq, attempt, command, outcome,
				reason, dispatched_at, resolved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID.String(), entry.Seq, entry.Attempt, entry.Command.Format(),
			entry.Outcome.String(), entry.Reason, entry.DispatchedAt.UTC(), resolvedAt,
		)
		if err != nil {
			return fmt.Errorf("insert journal entry seq %d attempt %d: %w",
				entry.Seq, entry.Attempt, err)
		}
	}

	return tx.Commit()
}

// GetRun returns one archived run.
func (a *Archive) GetRun(ctx context.Context, id uuid.UUID) (rec *Record, err error) {
	timer := metrics.Global().Archive().NewOpTimer(metrics.ArchiveOpSelect)
	defer func() { timer.Done(err) }()

	row := a.db.QueryRowContext(ctx, `
		SELECT r.id, r.compilation_id, r.source_name, r.state, r.commands_total,
			r.commands_done, r.fault_json, r.started_at, r.finished_at, r.archived_at,
			(SELECT COUNT(*) FROM journal_entries j WHERE j.run_id = r.id)
		FROM runs r
		WHERE r.id = ?
	`, id.String())

	rec, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, err
	}
	return rec, err
}

// ListRuns returns archived runs newest first.
func (a *Archive) ListRuns(ctx context.Context, limit, offset int) (recs []Record, err error) {
	timer := metrics.Global().Archive().NewOpTimer(metrics.ArchiveOpSelect)
	defer func() { timer.Done(err) }()

	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT r.id, r.compilation_id, r.source_name, r.state, r.commands_total,
			r.commands_done, r.fault_json, r.started_at, r.finished_at, r.archived_at,
			(SELECT COUNT(*) FROM journal_entries j WHERE j.run_id = r.id)
		FROM runs r
		ORDER BY r.archived_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		recs = append(recs, *rec)
	}
	err = rows.Err()
	return recs, err
}

// Journal returns the archived dispatch journal of a run, in dispatch
// order.
func (a *Archive) Journal(ctx context.Context, runID uuid.UUID) (entries []Entry, err error) {
	timer := metrics.Global().Archive().NewOpTimer(metrics.ArchiveOpSelect)
	defer func() { timer.Done(err) }()

	rows, err := a.db.QueryContext(ctx, `
		SELECT seq, attempt, command, outcome, reason, dispatched_at, resolved_at
		FROM journal_entries
		WHERE run_id = ?
		ORDER BY dispatched_at, seq, attempt
	`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var reason sql.NullString
		var resolvedAt sql.NullTime
		if err = rows.Scan(&e.Seq, &e.Attempt, &e.Command, &e.Outcome,
			&reason, &e.DispatchedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Reason = reason.String
		if resolvedAt.Valid {
			t := resolvedAt.Time
			e.ResolvedAt = &t
		}
		entries = append(entries, e)
	}
	err = rows.Err()
	return entries, err
}

// DeleteBefore removes runs archived before the cutoff, cascading to
// their journal entries. Returns the number of runs removed.
func (a *Archive) DeleteBefore(ctx context.Context, cutoff time.Time) (deleted int64, err error) {
	timer := metrics.Global().Archive().NewOpTimer(metrics.ArchiveOpDelete)
	defer func() { timer.Done(err) }()

	res, err := a.db.ExecContext(ctx,
		`DELETE FROM runs WHERE archived_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var id, compilationID string
	var faultJSON sql.NullString

	err := row.Scan(&id, &compilationID, &rec.SourceName, &rec.State,
		&rec.CommandsTotal, &rec.CommandsDone, &faultJSON,
		&rec.StartedAt, &rec.FinishedAt, &rec.ArchivedAt, &rec.JournalEntries)
	if err != nil {
		return nil, err
	}

	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	if rec.CompilationID, err = uuid.Parse(compilationID); err != nil {
		return nil, fmt.Errorf("parse compilation id: %w", err)
	}
	if faultJSON.Valid {
		var fault orchestrator.FaultReport
		if err := json.Unmarshal([]byte(faultJSON.String), &fault); err != nil {
			return nil, fmt.Errorf("decode fault report: %w", err)
		}
		rec.Fault = &fault
	}
	return &rec, nil
}
