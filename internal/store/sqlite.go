package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/svylabs/ilumina/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas apply per connection; a single pooled connection keeps them
	// in force and serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id              TEXT PRIMARY KEY,
	repository_url  TEXT NOT NULL,
	run_id          TEXT,
	step            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'created',
	message         TEXT NOT NULL DEFAULT '',
	completed_steps TEXT NOT NULL DEFAULT '[]',
	step_metadata   TEXT NOT NULL DEFAULT '{}',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS submission_logs (
	id            TEXT PRIMARY KEY,
	submission_id TEXT NOT NULL REFERENCES submissions(id),
	step          TEXT NOT NULL,
	status        TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS action_analyses (
	id            TEXT PRIMARY KEY,
	submission_id TEXT NOT NULL,
	contract_name TEXT NOT NULL,
	function_name TEXT NOT NULL,
	step          TEXT NOT NULL,
	status        TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	workspace_id  TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(submission_id, contract_name, function_name)
);

CREATE TABLE IF NOT EXISTS snapshot_analyses (
	id            TEXT PRIMARY KEY,
	submission_id TEXT NOT NULL,
	contract_name TEXT NOT NULL,
	step          TEXT NOT NULL,
	status        TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	workspace_id  TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(submission_id, contract_name)
);

CREATE TABLE IF NOT EXISTS artifact_counters (
	submission_id TEXT NOT NULL,
	kind          TEXT NOT NULL,
	version       INTEGER NOT NULL,
	PRIMARY KEY (submission_id, kind)
);

CREATE TABLE IF NOT EXISTS simulation_runs (
	id              TEXT PRIMARY KEY,
	submission_id   TEXT NOT NULL,
	batch_id        TEXT NOT NULL DEFAULT '',
	type            TEXT NOT NULL,
	status          TEXT NOT NULL,
	branch          TEXT NOT NULL DEFAULT '',
	num_simulations INTEGER NOT NULL DEFAULT 0,
	message         TEXT NOT NULL DEFAULT '',
	gas_used        INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
CREATE INDEX IF NOT EXISTS idx_submission_logs_submission ON submission_logs(submission_id, created_at);
CREATE INDEX IF NOT EXISTS idx_action_analyses_submission ON action_analyses(submission_id);
CREATE INDEX IF NOT EXISTS idx_snapshot_analyses_submission ON snapshot_analyses(submission_id);
CREATE INDEX IF NOT EXISTS idx_simulation_runs_submission ON simulation_runs(submission_id);
CREATE INDEX IF NOT EXISTS idx_simulation_runs_batch ON simulation_runs(batch_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if sub.Status == "" {
		sub.Status = model.StatusCreated
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, repository_url, run_id, step, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.RepositoryURL, sub.RunID, string(sub.Step), string(sub.Status), now, now,
	)
	return eris.Wrapf(err, "sqlite: insert submission %s", sub.ID)
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, repository_url, run_id, step, status, message, completed_steps, step_metadata, created_at, updated_at
		 FROM submissions WHERE id = ?`,
		id,
	)
	return scanSubmission(row)
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT id, repository_url, run_id, step, status, message, completed_steps, step_metadata, created_at, updated_at
	          FROM submissions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Step != "" {
		query += ` AND step = ?`
		args = append(args, string(filter.Step))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: list submissions iterate")
}

func (s *SQLiteStore) UpdateStepStatus(ctx context.Context, id string, step model.Step, status model.Status, message string, meta *model.StepMetadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update step status")
	}
	defer tx.Rollback()

	sub, err := scanSubmission(tx.QueryRowContext(ctx,
		`SELECT id, repository_url, run_id, step, status, message, completed_steps, step_metadata, created_at, updated_at
		 FROM submissions WHERE id = ?`,
		id,
	))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	sub.Step = step
	sub.Status = status
	sub.Message = message
	sub.CompletedSteps = append(sub.CompletedSteps, model.CompletedStep{
		Step:      step,
		Status:    status,
		UpdatedAt: now,
	})
	if meta != nil {
		if sub.StepMetadata == nil {
			sub.StepMetadata = make(map[model.Step]model.StepMetadata)
		}
		sub.StepMetadata[step] = *meta
	}

	completedJSON, err := json.Marshal(sub.CompletedSteps)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal completed steps")
	}
	metaJSON, err := json.Marshal(sub.StepMetadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal step metadata")
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET step = ?, status = ?, message = ?, completed_steps = ?, step_metadata = ?, updated_at = ?
		 WHERE id = ?`,
		string(step), string(status), message, string(completedJSON), string(metaJSON), now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update step status %s", id)
	}
	if err := checkRowsAffected(res, "submission", id); err != nil {
		return err
	}

	// Append-only audit snapshot.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO submission_logs (id, submission_id, step, status, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), id, string(step), string(status), message, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert submission log %s", id)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit update step status")
}

func (s *SQLiteStore) ListSubmissionLogs(ctx context.Context, submissionID string) ([]model.SubmissionLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, submission_id, step, status, message, created_at FROM submission_logs
		 WHERE submission_id = ? ORDER BY created_at ASC`,
		submissionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submission logs")
	}
	defer rows.Close()

	var logs []model.SubmissionLog
	for rows.Next() {
		var l model.SubmissionLog
		if err := rows.Scan(&l.ID, &l.SubmissionID, &l.Step, &l.Status, &l.Message, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission log")
		}
		logs = append(logs, l)
	}
	return logs, eris.Wrap(rows.Err(), "sqlite: list submission logs iterate")
}

func (s *SQLiteStore) CreateActionAnalysis(ctx context.Context, rec *model.ActionAnalysis) (bool, error) {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO action_analyses (id, submission_id, contract_name, function_name, step, status, message, workspace_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(submission_id, contract_name, function_name) DO NOTHING`,
		rec.ID, rec.SubmissionID, rec.ContractName, rec.FunctionName,
		string(rec.Step), string(rec.Status), rec.Message, rec.WorkspaceID, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert action analysis %s/%s", rec.ContractName, rec.FunctionName)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateActionAnalysis(ctx context.Context, submissionID, contract, function string, step model.Step, status model.Status, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE action_analyses SET step = ?, status = ?, message = ?, updated_at = ?
		 WHERE submission_id = ? AND contract_name = ? AND function_name = ?`,
		string(step), string(status), message, time.Now().UTC(), submissionID, contract, function,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update action analysis %s/%s", contract, function)
	}
	return checkRowsAffected(res, "action analysis", contract+"/"+function)
}

func (s *SQLiteStore) ListActionAnalyses(ctx context.Context, submissionID string) ([]model.ActionAnalysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, submission_id, contract_name, function_name, step, status, message, workspace_id, created_at, updated_at
		 FROM action_analyses WHERE submission_id = ? ORDER BY contract_name, function_name`,
		submissionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list action analyses")
	}
	defer rows.Close()

	var recs []model.ActionAnalysis
	for rows.Next() {
		var r model.ActionAnalysis
		if err := rows.Scan(&r.ID, &r.SubmissionID, &r.ContractName, &r.FunctionName, &r.Step, &r.Status, &r.Message, &r.WorkspaceID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan action analysis")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list action analyses iterate")
}

func (s *SQLiteStore) CreateSnapshotAnalysis(ctx context.Context, rec *model.SnapshotAnalysis) (bool, error) {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshot_analyses (id, submission_id, contract_name, step, status, message, workspace_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(submission_id, contract_name) DO NOTHING`,
		rec.ID, rec.SubmissionID, rec.ContractName,
		string(rec.Step), string(rec.Status), rec.Message, rec.WorkspaceID, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert snapshot analysis %s", rec.ContractName)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateSnapshotAnalysis(ctx context.Context, submissionID, contract string, step model.Step, status model.Status, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE snapshot_analyses SET step = ?, status = ?, message = ?, updated_at = ?
		 WHERE submission_id = ? AND contract_name = ?`,
		string(step), string(status), message, time.Now().UTC(), submissionID, contract,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update snapshot analysis %s", contract)
	}
	return checkRowsAffected(res, "snapshot analysis", contract)
}

func (s *SQLiteStore) ListSnapshotAnalyses(ctx context.Context, submissionID string) ([]model.SnapshotAnalysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, submission_id, contract_name, step, status, message, workspace_id, created_at, updated_at
		 FROM snapshot_analyses WHERE submission_id = ? ORDER BY contract_name`,
		submissionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshot analyses")
	}
	defer rows.Close()

	var recs []model.SnapshotAnalysis
	for rows.Next() {
		var r model.SnapshotAnalysis
		if err := rows.Scan(&r.ID, &r.SubmissionID, &r.ContractName, &r.Step, &r.Status, &r.Message, &r.WorkspaceID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot analysis")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list snapshot analyses iterate")
}

func (s *SQLiteStore) AllocateVersion(ctx context.Context, submissionID string, kind model.ArtifactKind) (model.ArtifactVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO artifact_counters (submission_id, kind, version) VALUES (?, ?, 1)
		 ON CONFLICT(submission_id, kind) DO UPDATE SET version = version + 1
		 RETURNING version`,
		submissionID, string(kind),
	)

	var version int
	if err := row.Scan(&version); err != nil {
		return model.ArtifactVersion{}, eris.Wrapf(err, "sqlite: allocate version %s/%s", submissionID, kind)
	}
	return model.ArtifactVersion{SubmissionID: submissionID, Kind: kind, Version: version}, nil
}

func (s *SQLiteStore) CreateSimulationRun(ctx context.Context, run *model.SimulationRun) error {
	now := time.Now().UTC()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = now
	run.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO simulation_runs (id, submission_id, batch_id, type, status, branch, num_simulations, message, gas_used, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SubmissionID, run.BatchID, string(run.Type), string(run.Status),
		run.Branch, run.NumSimulations, run.Message, run.GasUsed, now, now,
	)
	return eris.Wrapf(err, "sqlite: insert simulation run %s", run.ID)
}

func (s *SQLiteStore) GetSimulationRun(ctx context.Context, id string) (*model.SimulationRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, submission_id, batch_id, type, status, branch, num_simulations, message, gas_used, created_at, updated_at
		 FROM simulation_runs WHERE id = ?`,
		id,
	)
	return scanSimulationRun(row)
}

func (s *SQLiteStore) UpdateSimulationRunStatus(ctx context.Context, id string, status model.Status, message string, gasUsed int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE simulation_runs SET status = ?, message = ?, gas_used = ?, updated_at = ? WHERE id = ?`,
		string(status), message, gasUsed, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update simulation run %s", id)
	}
	return checkRowsAffected(res, "simulation run", id)
}

func (s *SQLiteStore) ListSimulationRuns(ctx context.Context, submissionID string) ([]model.SimulationRun, error) {
	return s.listRuns(ctx, `submission_id = ?`, submissionID)
}

func (s *SQLiteStore) ListBatchRuns(ctx context.Context, batchID string) ([]model.SimulationRun, error) {
	return s.listRuns(ctx, `batch_id = ?`, batchID)
}

func (s *SQLiteStore) listRuns(ctx context.Context, where string, arg any) ([]model.SimulationRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, submission_id, batch_id, type, status, branch, num_simulations, message, gas_used, created_at, updated_at
		 FROM simulation_runs WHERE `+where+` ORDER BY created_at ASC`,
		arg,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list simulation runs")
	}
	defer rows.Close()

	var runs []model.SimulationRun
	for rows.Next() {
		r, err := scanSimulationRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list simulation runs iterate")
}

func (s *SQLiteStore) BatchProgress(ctx context.Context, batchID string) (model.BatchProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM simulation_runs WHERE batch_id = ? GROUP BY status`,
		batchID,
	)
	if err != nil {
		return model.BatchProgress{}, eris.Wrap(err, "sqlite: batch progress")
	}
	defer rows.Close()

	var p model.BatchProgress
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return model.BatchProgress{}, eris.Wrap(err, "sqlite: scan batch progress")
		}
		tallyProgress(&p, model.Status(status), n)
	}
	return p, eris.Wrap(rows.Err(), "sqlite: batch progress iterate")
}

// helpers

func tallyProgress(p *model.BatchProgress, status model.Status, n int) {
	p.Total += n
	switch status {
	case model.StatusScheduled, model.StatusCreated:
		p.Scheduled += n
	case model.StatusInProgress:
		p.InProgress += n
	case model.StatusSuccess:
		p.Succeeded += n
	case model.StatusError:
		p.Failed += n
	}
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubmission(row scannable) (*model.Submission, error) {
	var sub model.Submission
	var runID sql.NullString
	var completedJSON, metaJSON string

	err := row.Scan(&sub.ID, &sub.RepositoryURL, &runID, &sub.Step, &sub.Status, &sub.Message,
		&completedJSON, &metaJSON, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "submission")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan submission")
	}
	sub.RunID = runID.String

	if err := json.Unmarshal([]byte(completedJSON), &sub.CompletedSteps); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal completed steps")
	}
	if err := json.Unmarshal([]byte(metaJSON), &sub.StepMetadata); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal step metadata")
	}
	return &sub, nil
}

func scanSimulationRun(row scannable) (*model.SimulationRun, error) {
	var r model.SimulationRun
	err := row.Scan(&r.ID, &r.SubmissionID, &r.BatchID, &r.Type, &r.Status, &r.Branch,
		&r.NumSimulations, &r.Message, &r.GasUsed, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "simulation run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan simulation run")
	}
	return &r, nil
}
