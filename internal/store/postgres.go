package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/svylabs/ilumina/internal/db"
	"github.com/svylabs/ilumina/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hottest store operations (every step transition touches these).
var preparedStatements = map[string]string{
	"get_submission": `SELECT id, repository_url, run_id, step, status, message, completed_steps, step_metadata, created_at, updated_at FROM submissions WHERE id = $1`,
	"insert_log":     `INSERT INTO submission_logs (id, submission_id, step, status, message, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_action":  `UPDATE action_analyses SET step = $1, status = $2, message = $3, updated_at = $4 WHERE submission_id = $5 AND contract_name = $6 AND function_name = $7`,
	"allocate_version": `INSERT INTO artifact_counters (submission_id, kind, version) VALUES ($1, $2, 1)
		ON CONFLICT (submission_id, kind) DO UPDATE SET version = artifact_counters.version + 1
		RETURNING version`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id              TEXT PRIMARY KEY,
	repository_url  TEXT NOT NULL,
	run_id          TEXT,
	step            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'created',
	message         TEXT NOT NULL DEFAULT '',
	completed_steps JSONB NOT NULL DEFAULT '[]',
	step_metadata   JSONB NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submission_logs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	submission_id TEXT NOT NULL REFERENCES submissions(id),
	step          TEXT NOT NULL,
	status        TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS action_analyses (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	submission_id TEXT NOT NULL,
	contract_name TEXT NOT NULL,
	function_name TEXT NOT NULL,
	step          TEXT NOT NULL,
	status        TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	workspace_id  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(submission_id, contract_name, function_name)
);

CREATE TABLE IF NOT EXISTS snapshot_analyses (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	submission_id TEXT NOT NULL,
	contract_name TEXT NOT NULL,
	step          TEXT NOT NULL,
	status        TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	workspace_id  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	gas_used        BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
CREATE INDEX IF NOT EXISTS idx_submission_logs_submission ON submission_logs(submission_id, created_at);
CREATE INDEX IF NOT EXISTS idx_action_analyses_submission ON action_analyses(submission_id);
CREATE INDEX IF NOT EXISTS idx_snapshot_analyses_submission ON snapshot_analyses(submission_id);
CREATE INDEX IF NOT EXISTS idx_simulation_runs_submission ON simulation_runs(submission_id);
CREATE INDEX IF NOT EXISTS idx_simulation_runs_batch ON simulation_runs(batch_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if sub.Status == "" {
		sub.Status = model.StatusCreated
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO submissions (id, repository_url, run_id, step, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.RepositoryURL, sub.RunID, string(sub.Step), string(sub.Status), now, now,
	)
	return eris.Wrapf(err, "postgres: insert submission %s", sub.ID)
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, repository_url, run_id, step, status, message, completed_steps, step_metadata, created_at, updated_at
		 FROM submissions WHERE id = $1`,
		id,
	)
	return scanPgSubmission(row)
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT id, repository_url, run_id, step, status, message, completed_steps, step_metadata, created_at, updated_at
	          FROM submissions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Step != "" {
		query += ` AND step = ` + arg(string(filter.Step))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanPgSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: list submissions iterate")
}

func (s *PostgresStore) UpdateStepStatus(ctx context.Context, id string, step model.Step, status model.Status, message string, meta *model.StepMetadata) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update step status")
	}
	defer tx.Rollback(ctx)

	sub, err := scanPgSubmission(tx.QueryRow(ctx,
		`SELECT id, repository_url, run_id, step, status, message, completed_steps, step_metadata, created_at, updated_at
		 FROM submissions WHERE id = $1 FOR UPDATE`,
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
		return eris.Wrap(err, "postgres: marshal completed steps")
	}
	metaJSON, err := json.Marshal(sub.StepMetadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal step metadata")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE submissions SET step = $1, status = $2, message = $3, completed_steps = $4, step_metadata = $5, updated_at = $6
		 WHERE id = $7`,
		string(step), string(status), message, completedJSON, metaJSON, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update step status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "submission %s", id)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO submission_logs (id, submission_id, step, status, message, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), id, string(step), string(status), message, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert submission log %s", id)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit update step status")
}

func (s *PostgresStore) ListSubmissionLogs(ctx context.Context, submissionID string) ([]model.SubmissionLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, submission_id, step, status, message, created_at FROM submission_logs
		 WHERE submission_id = $1 ORDER BY created_at ASC`,
		submissionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submission logs")
	}
	defer rows.Close()

	var logs []model.SubmissionLog
	for rows.Next() {
		var l model.SubmissionLog
		if err := rows.Scan(&l.ID, &l.SubmissionID, &l.Step, &l.Status, &l.Message, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission log")
		}
		logs = append(logs, l)
	}
	return logs, eris.Wrap(rows.Err(), "postgres: list submission logs iterate")
}

func (s *PostgresStore) CreateActionAnalysis(ctx context.Context, rec *model.ActionAnalysis) (bool, error) {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO action_analyses (id, submission_id, contract_name, function_name, step, status, message, workspace_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (submission_id, contract_name, function_name) DO NOTHING`,
		rec.ID, rec.SubmissionID, rec.ContractName, rec.FunctionName,
		string(rec.Step), string(rec.Status), rec.Message, rec.WorkspaceID, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert action analysis %s/%s", rec.ContractName, rec.FunctionName)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateActionAnalysis(ctx context.Context, submissionID, contract, function string, step model.Step, status model.Status, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE action_analyses SET step = $1, status = $2, message = $3, updated_at = $4
		 WHERE submission_id = $5 AND contract_name = $6 AND function_name = $7`,
		string(step), string(status), message, time.Now().UTC(), submissionID, contract, function,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update action analysis %s/%s", contract, function)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "action analysis %s/%s", contract, function)
	}
	return nil
}

func (s *PostgresStore) ListActionAnalyses(ctx context.Context, submissionID string) ([]model.ActionAnalysis, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, submission_id, contract_name, function_name, step, status, message, workspace_id, created_at, updated_at
		 FROM action_analyses WHERE submission_id = $1 ORDER BY contract_name, function_name`,
		submissionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list action analyses")
	}
	defer rows.Close()

	var recs []model.ActionAnalysis
	for rows.Next() {
		var r model.ActionAnalysis
		if err := rows.Scan(&r.ID, &r.SubmissionID, &r.ContractName, &r.FunctionName, &r.Step, &r.Status, &r.Message, &r.WorkspaceID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan action analysis")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list action analyses iterate")
}

func (s *PostgresStore) CreateSnapshotAnalysis(ctx context.Context, rec *model.SnapshotAnalysis) (bool, error) {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO snapshot_analyses (id, submission_id, contract_name, step, status, message, workspace_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (submission_id, contract_name) DO NOTHING`,
		rec.ID, rec.SubmissionID, rec.ContractName,
		string(rec.Step), string(rec.Status), rec.Message, rec.WorkspaceID, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert snapshot analysis %s", rec.ContractName)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateSnapshotAnalysis(ctx context.Context, submissionID, contract string, step model.Step, status model.Status, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE snapshot_analyses SET step = $1, status = $2, message = $3, updated_at = $4
		 WHERE submission_id = $5 AND contract_name = $6`,
		string(step), string(status), message, time.Now().UTC(), submissionID, contract,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update snapshot analysis %s", contract)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "snapshot analysis %s", contract)
	}
	return nil
}

func (s *PostgresStore) ListSnapshotAnalyses(ctx context.Context, submissionID string) ([]model.SnapshotAnalysis, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, submission_id, contract_name, step, status, message, workspace_id, created_at, updated_at
		 FROM snapshot_analyses WHERE submission_id = $1 ORDER BY contract_name`,
		submissionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshot analyses")
	}
	defer rows.Close()

	var recs []model.SnapshotAnalysis
	for rows.Next() {
		var r model.SnapshotAnalysis
		if err := rows.Scan(&r.ID, &r.SubmissionID, &r.ContractName, &r.Step, &r.Status, &r.Message, &r.WorkspaceID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot analysis")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list snapshot analyses iterate")
}

func (s *PostgresStore) AllocateVersion(ctx context.Context, submissionID string, kind model.ArtifactKind) (model.ArtifactVersion, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO artifact_counters (submission_id, kind, version) VALUES ($1, $2, 1)
		 ON CONFLICT (submission_id, kind) DO UPDATE SET version = artifact_counters.version + 1
		 RETURNING version`,
		submissionID, string(kind),
	)

	var version int
	if err := row.Scan(&version); err != nil {
		return model.ArtifactVersion{}, eris.Wrapf(err, "postgres: allocate version %s/%s", submissionID, kind)
	}
	return model.ArtifactVersion{SubmissionID: submissionID, Kind: kind, Version: version}, nil
}

func (s *PostgresStore) CreateSimulationRun(ctx context.Context, run *model.SimulationRun) error {
	now := time.Now().UTC()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = now
	run.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO simulation_runs (id, submission_id, batch_id, type, status, branch, num_simulations, message, gas_used, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.SubmissionID, run.BatchID, string(run.Type), string(run.Status),
		run.Branch, run.NumSimulations, run.Message, run.GasUsed, now, now,
	)
	return eris.Wrapf(err, "postgres: insert simulation run %s", run.ID)
}

func (s *PostgresStore) GetSimulationRun(ctx context.Context, id string) (*model.SimulationRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, submission_id, batch_id, type, status, branch, num_simulations, message, gas_used, created_at, updated_at
		 FROM simulation_runs WHERE id = $1`,
		id,
	)
	return scanPgSimulationRun(row)
}

func (s *PostgresStore) UpdateSimulationRunStatus(ctx context.Context, id string, status model.Status, message string, gasUsed int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE simulation_runs SET status = $1, message = $2, gas_used = $3, updated_at = $4 WHERE id = $5`,
		string(status), message, gasUsed, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update simulation run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "simulation run %s", id)
	}
	return nil
}

func (s *PostgresStore) ListSimulationRuns(ctx context.Context, submissionID string) ([]model.SimulationRun, error) {
	return s.listRuns(ctx, `submission_id = $1`, submissionID)
}

func (s *PostgresStore) ListBatchRuns(ctx context.Context, batchID string) ([]model.SimulationRun, error) {
	return s.listRuns(ctx, `batch_id = $1`, batchID)
}

func (s *PostgresStore) listRuns(ctx context.Context, where string, arg any) ([]model.SimulationRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, submission_id, batch_id, type, status, branch, num_simulations, message, gas_used, created_at, updated_at
		 FROM simulation_runs WHERE `+where+` ORDER BY created_at ASC`,
		arg,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list simulation runs")
	}
	defer rows.Close()

	var runs []model.SimulationRun
	for rows.Next() {
		r, err := scanPgSimulationRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list simulation runs iterate")
}

func (s *PostgresStore) BatchProgress(ctx context.Context, batchID string) (model.BatchProgress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM simulation_runs WHERE batch_id = $1 GROUP BY status`,
		batchID,
	)
	if err != nil {
		return model.BatchProgress{}, eris.Wrap(err, "postgres: batch progress")
	}
	defer rows.Close()

	var p model.BatchProgress
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return model.BatchProgress{}, eris.Wrap(err, "postgres: scan batch progress")
		}
		tallyProgress(&p, model.Status(status), n)
	}
	return p, eris.Wrap(rows.Err(), "postgres: batch progress iterate")
}

// helpers

func placeholder(n int) string {
	const digits = "0123456789"
	if n < 10 {
		return "$" + digits[n:n+1]
	}
	return "$" + digits[n/10:n/10+1] + digits[n%10:n%10+1]
}

func scanPgSubmission(row pgx.Row) (*model.Submission, error) {
	var sub model.Submission
	var runID *string
	var completedJSON, metaJSON []byte

	err := row.Scan(&sub.ID, &sub.RepositoryURL, &runID, &sub.Step, &sub.Status, &sub.Message,
		&completedJSON, &metaJSON, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "submission")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan submission")
	}
	if runID != nil {
		sub.RunID = *runID
	}

	if err := json.Unmarshal(completedJSON, &sub.CompletedSteps); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal completed steps")
	}
	if err := json.Unmarshal(metaJSON, &sub.StepMetadata); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal step metadata")
	}
	return &sub, nil
}

func scanPgSimulationRun(row pgx.Row) (*model.SimulationRun, error) {
	var r model.SimulationRun
	err := row.Scan(&r.ID, &r.SubmissionID, &r.BatchID, &r.Type, &r.Status, &r.Branch,
		&r.NumSimulations, &r.Message, &r.GasUsed, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "simulation run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan simulation run")
	}
	return &r, nil
}
