package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/models"
	"github.com/callsched/core/pkg/utils"
)

// DB is the subset of *pgxpool.Pool the Postgres store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres implements JobStore, and TaskStore through Tasks, on the tables
// created by EnsureSchema.
type Postgres struct {
	db DB
}

// NewPostgres wraps a pool (or any DB).
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    key             TEXT PRIMARY KEY,
    name            TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    tags            TEXT[] NOT NULL DEFAULT '{}',
    cron_expression TEXT NOT NULL DEFAULT '',
    method          TEXT NOT NULL,
    url             TEXT NOT NULL,
    headers         JSONB NOT NULL DEFAULT '{}',
    auth_strategy   TEXT NOT NULL DEFAULT 'NONE',
    body            TEXT,
    validations     JSONB NOT NULL,
    actions         JSONB NOT NULL DEFAULT '[]',
    disabled        BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
    job_key              TEXT NOT NULL,
    id                   BIGINT NOT NULL,
    status               TEXT NOT NULL,
    message              TEXT,
    meta_data            JSONB NOT NULL DEFAULT '{}',
    post_actions_message TEXT,
    created_at           TIMESTAMPTZ NOT NULL,
    updated_at           TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (job_key, id)
);
CREATE INDEX IF NOT EXISTS tasks_created_at_idx ON tasks (created_at);
CREATE TABLE IF NOT EXISTS task_counters (
    job_key TEXT PRIMARY KEY,
    last_id BIGINT NOT NULL
);`

// EnsureSchema creates the tables if they do not exist yet
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "create schema")
	}
	return nil
}

const jobColumns = `key, name, description, tags, cron_expression, method, url, headers,
	auth_strategy, body, validations, actions, disabled, created_at, updated_at`

func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "check job %s", key)
	}
	return exists, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (*models.JobDefinition, error) {
	row := p.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE key = $1`, key)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, jobNotFound(key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get job %s", key)
	}
	return job, nil
}

func (p *Postgres) Save(ctx context.Context, job *models.JobDefinition) error {
	args, err := jobArgs(job)
	if err != nil {
		return err
	}

	err = p.db.QueryRow(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			tags = EXCLUDED.tags,
			cron_expression = EXCLUDED.cron_expression,
			method = EXCLUDED.method,
			url = EXCLUDED.url,
			headers = EXCLUDED.headers,
			auth_strategy = EXCLUDED.auth_strategy,
			body = EXCLUDED.body,
			validations = EXCLUDED.validations,
			actions = EXCLUDED.actions,
			disabled = EXCLUDED.disabled,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`, args...).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "save job %s", job.Key)
	}
	return nil
}

// Insert stores a new job. An existing key is left untouched and reported as
// KEY_ALREADY_IN_USE.
func (p *Postgres) Insert(ctx context.Context, job *models.JobDefinition) error {
	args, err := jobArgs(job)
	if err != nil {
		return err
	}

	err = p.db.QueryRow(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		ON CONFLICT (key) DO NOTHING
		RETURNING created_at, updated_at
	`, args...).Scan(&job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return keyInUse(job.Key)
	}
	if err != nil {
		return errors.Wrapf(err, "insert job %s", job.Key)
	}
	return nil
}

// jobArgs returns the column values of job in jobColumns order, timestamps last
func jobArgs(job *models.JobDefinition) ([]any, error) {
	headers, err := json.Marshal(nonNilHeaders(job.Headers))
	if err != nil {
		return nil, errors.Wrap(err, "marshal headers")
	}
	validations, err := json.Marshal(job.Validations)
	if err != nil {
		return nil, errors.Wrap(err, "marshal validations")
	}
	actions, err := json.Marshal(nonNilActions(job.Actions))
	if err != nil {
		return nil, errors.Wrap(err, "marshal actions")
	}

	return []any{
		job.Key, job.Name, job.Description, utils.NormalizeTags(job.Tags), job.CronExpression,
		job.Method, job.URL, headers, string(job.AuthStrategy.OrNone()), job.Body,
		validations, actions, job.Disabled, time.Now().UTC(),
	}, nil
}

// Delete removes the job and its tasks in one transaction. The task counter is
// kept so IDs are never handed out twice for the same key.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE job_key = $1`, key); err != nil {
		return errors.Wrapf(err, "delete tasks of %s", key)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM jobs WHERE key = $1`, key)
	if err != nil {
		return errors.Wrapf(err, "delete job %s", key)
	}
	if tag.RowsAffected() == 0 {
		return jobNotFound(key)
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func (p *Postgres) Search(ctx context.Context, filter models.JobFilter) ([]*models.JobDefinition, error) {
	tags := utils.NormalizeTags(filter.Tags)
	if tags == nil {
		tags = []string{}
	}
	rows, err := p.db.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE ($1::text = '' OR key = $1)
		  AND (cardinality($2::text[]) = 0 OR tags && $2::text[])
		ORDER BY key
	`, filter.Key, tags)
	if err != nil {
		return nil, errors.Wrap(err, "search jobs")
	}
	defer rows.Close()

	var out []*models.JobDefinition
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		out = append(out, job)
	}
	return out, errors.Wrap(rows.Err(), "iterate jobs")
}

func (p *Postgres) List(ctx context.Context) ([]*models.JobDefinition, error) {
	return p.Search(ctx, models.JobFilter{})
}

func scanJob(row pgx.Row) (*models.JobDefinition, error) {
	var (
		job                           models.JobDefinition
		auth                          string
		headers, validations, actions []byte
	)
	err := row.Scan(&job.Key, &job.Name, &job.Description, &job.Tags, &job.CronExpression,
		&job.Method, &job.URL, &headers, &auth, &job.Body, &validations, &actions,
		&job.Disabled, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.AuthStrategy = models.AuthStrategy(auth)
	if err := json.Unmarshal(headers, &job.Headers); err != nil {
		return nil, errors.Wrap(err, "unmarshal headers")
	}
	if err := json.Unmarshal(validations, &job.Validations); err != nil {
		return nil, errors.Wrap(err, "unmarshal validations")
	}
	if err := json.Unmarshal(actions, &job.Actions); err != nil {
		return nil, errors.Wrap(err, "unmarshal actions")
	}
	return &job, nil
}

// Tasks returns the TaskStore view of p.
func (p *Postgres) Tasks() TaskStore {
	return postgresTasks{p.db}
}

type postgresTasks struct {
	db DB
}

const taskColumns = `job_key, id, status, message, meta_data, post_actions_message, created_at, updated_at`

func (t postgresTasks) Save(ctx context.Context, task *models.Task) (*models.Task, error) {
	meta, err := json.Marshal(nonNilMeta(task.MetaData))
	if err != nil {
		return nil, errors.Wrap(err, "marshal metadata")
	}
	now := time.Now().UTC()

	if task.ID != 0 {
		row := t.db.QueryRow(ctx, `
			UPDATE tasks SET status = $3, message = $4, meta_data = $5,
				post_actions_message = $6, updated_at = $7
			WHERE job_key = $1 AND id = $2
			RETURNING `+taskColumns,
			task.JobKey, task.ID, string(task.Status), task.Message, meta, task.PostActionsMessage, now)
		saved, err := scanTask(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, taskNotFound(task.JobKey, task.ID)
		}
		return saved, errors.Wrapf(err, "update task %d of %s", task.ID, task.JobKey)
	}

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO task_counters (job_key, last_id) VALUES ($1, 1)
		ON CONFLICT (job_key) DO UPDATE SET last_id = task_counters.last_id + 1
		RETURNING last_id
	`, task.JobKey).Scan(&id)
	if err != nil {
		return nil, errors.Wrapf(err, "next task id for %s", task.JobKey)
	}

	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+taskColumns,
		task.JobKey, id, string(task.Status), task.Message, meta, task.PostActionsMessage, createdAt, now)
	saved, err := scanTask(row)
	if err != nil {
		return nil, errors.Wrapf(err, "insert task for %s", task.JobKey)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return saved, nil
}

func (t postgresTasks) FindLatest(ctx context.Context, jobKey string) (*models.Task, error) {
	row := t.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE job_key = $1 ORDER BY id DESC LIMIT 1`, jobKey)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, noTasks(jobKey)
	}
	return task, errors.Wrapf(err, "latest task of %s", jobKey)
}

func (t postgresTasks) FindByJobKeyAndID(ctx context.Context, jobKey string, id int64) (*models.Task, error) {
	row := t.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE job_key = $1 AND id = $2`, jobKey, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, taskNotFound(jobKey, id)
	}
	return task, errors.Wrapf(err, "get task %d of %s", id, jobKey)
}

func (t postgresTasks) FindAll(ctx context.Context, jobKey string) ([]*models.Task, error) {
	rows, err := t.db.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE job_key = $1 ORDER BY id DESC`, jobKey)
	if err != nil {
		return nil, errors.Wrapf(err, "list tasks of %s", jobKey)
	}
	return collectTasks(rows)
}

func (t postgresTasks) DeleteAllByJobKey(ctx context.Context, jobKey string) error {
	_, err := t.db.Exec(ctx, `DELETE FROM tasks WHERE job_key = $1`, jobKey)
	return errors.Wrapf(err, "delete tasks of %s", jobKey)
}

func (t postgresTasks) Search(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}
	var after *time.Time
	if !filter.CreatedAfter.IsZero() {
		after = &filter.CreatedAfter
	}

	rows, err := t.db.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE ($1::text = '' OR job_key = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		ORDER BY created_at, job_key, id
	`, filter.JobKey, statuses, after)
	if err != nil {
		return nil, errors.Wrap(err, "search tasks")
	}
	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]*models.Task, error) {
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan task")
		}
		out = append(out, task)
	}
	return out, errors.Wrap(rows.Err(), "iterate tasks")
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var (
		task   models.Task
		status string
		meta   []byte
	)
	err := row.Scan(&task.JobKey, &task.ID, &status, &task.Message, &meta,
		&task.PostActionsMessage, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	task.Status = models.Status(status)
	if err := json.Unmarshal(meta, &task.MetaData); err != nil {
		return nil, errors.Wrap(err, "unmarshal metadata")
	}
	return &task, nil
}

func nonNilHeaders(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}

func nonNilMeta(m map[string]string) map[string]string {
	return nonNilHeaders(m)
}

func nonNilActions(a []models.ActionSpec) []models.ActionSpec {
	if a == nil {
		return []models.ActionSpec{}
	}
	return a
}
