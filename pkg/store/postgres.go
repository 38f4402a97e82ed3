// Package store persists task records, chat history and provider settings in
// Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/internal/types"
)

type StoreConfig struct {
	ConnString string
	// TablePrefix is prepended to every table name.
	TablePrefix string
}

// Store owns the connection pool shared by the task, chat and provider stores.
type Store struct {
	config StoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config StoreConfig) (*Store, error) {
	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := &Store{config: config, pool: pool}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) table(name string) string {
	return pgx.Identifier{s.config.TablePrefix + name}.Sanitize()
}

func (s *Store) initialize(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			result JSONB,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL
		)`, s.table("tasks")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (scope, created_at DESC)`,
			pgx.Identifier{s.config.TablePrefix + "tasks_scope_idx"}.Sanitize(), s.table("tasks")),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			sources JSONB NOT NULL,
			chunks JSONB NOT NULL,
			chunk_sources JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, s.table("chat_messages")),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			chat_id TEXT PRIMARY KEY REFERENCES %s (id) ON DELETE CASCADE,
			rating TEXT NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`, s.table("chat_feedback"), s.table("chat_messages")),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			scope TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			credential TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, s.table("provider_configs")),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Tasks() *TaskStore {
	return &TaskStore{s: s}
}

func (s *Store) Chats() *ChatStore {
	return &ChatStore{s: s}
}

func (s *Store) Providers() *ProviderStore {
	return &ProviderStore{s: s}
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// TaskStore implements types.TaskStore.
type TaskStore struct {
	s *Store
}

const taskColumns = `id, scope, kind, status, progress, message, result, error, created_at, started_at, finished_at, updated_at`

func scanTask(row pgx.Row) (models.TaskRecord, error) {
	var rec models.TaskRecord
	var kind, status string
	err := row.Scan(&rec.ID, &rec.Scope, &kind, &status, &rec.Progress, &rec.Message,
		&rec.Result, &rec.Error, &rec.CreatedAt, &rec.StartedAt, &rec.FinishedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, types.ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("failed to scan task: %w", err)
	}
	rec.Kind = models.TaskKind(kind)
	rec.Status = models.TaskStatus(status)
	return rec, nil
}

func (t *TaskStore) Create(ctx context.Context, rec models.TaskRecord) error {
	_, err := t.s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, t.s.table("tasks")),
		rec.ID, rec.Scope, string(rec.Kind), string(rec.Status), rec.Progress,
		sanitizeUTF8(rec.Message), rec.Result, sanitizeUTF8(rec.Error),
		rec.CreatedAt, rec.StartedAt, rec.FinishedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (t *TaskStore) Get(ctx context.Context, id string) (models.TaskRecord, error) {
	row := t.s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT `+taskColumns+` FROM %s WHERE id = $1`, t.s.table("tasks")), id)
	return scanTask(row)
}

// Update locks the row for the duration of fn so concurrent updates
// serialise.
func (t *TaskStore) Update(ctx context.Context, id string, fn func(*models.TaskRecord) error) (models.TaskRecord, error) {
	tx, err := t.s.pool.Begin(ctx)
	if err != nil {
		return models.TaskRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, fmt.Sprintf(`SELECT `+taskColumns+` FROM %s WHERE id = $1 FOR UPDATE`, t.s.table("tasks")), id)
	rec, err := scanTask(row)
	if err != nil {
		return rec, err
	}

	work := rec.Clone()
	if err := fn(&work); err != nil {
		return rec, err
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET status = $2, progress = $3, message = $4, result = $5, error = $6,
			started_at = $7, finished_at = $8, updated_at = $9
		WHERE id = $1`, t.s.table("tasks")),
		id, string(work.Status), work.Progress, sanitizeUTF8(work.Message), work.Result,
		sanitizeUTF8(work.Error), work.StartedAt, work.FinishedAt, work.UpdatedAt)
	if err != nil {
		return rec, fmt.Errorf("failed to update task: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return rec, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return work, nil
}

func (t *TaskStore) List(ctx context.Context, scope string, limit int) ([]models.TaskRecord, error) {
	var (
		where []string
		args  []any
	)
	if scope != "" {
		args = append(args, scope)
		where = append(where, fmt.Sprintf("scope = $%d", len(args)))
	}
	query := fmt.Sprintf(`SELECT `+taskColumns+` FROM %s`, t.s.table("tasks"))
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := t.s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	out := []models.TaskRecord{}
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ChatStore implements types.ChatHistory.
type ChatStore struct {
	s *Store
}

func (c *ChatStore) Save(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if msg.Sources == nil {
		msg.Sources = []string{}
	}
	if msg.Chunks == nil {
		msg.Chunks = []string{}
	}
	if msg.ChunkSources == nil {
		msg.ChunkSources = []string{}
	}
	_, err := c.s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (`+chatColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, c.s.table("chat_messages")),
		msg.ID, msg.Scope, sanitizeUTF8(msg.Question), sanitizeUTF8(msg.Answer),
		msg.Sources, sanitizeAll(msg.Chunks), msg.ChunkSources, msg.CreatedAt)
	if err != nil {
		return msg, fmt.Errorf("failed to insert chat message: %w", err)
	}
	return msg, nil
}

const chatColumns = `id, scope, question, answer, sources, chunks, chunk_sources, created_at`

func scanChat(row pgx.Row) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := row.Scan(&msg.ID, &msg.Scope, &msg.Question, &msg.Answer, &msg.Sources, &msg.Chunks, &msg.ChunkSources, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return msg, types.ErrNotFound
	}
	if err != nil {
		return msg, fmt.Errorf("failed to scan chat message: %w", err)
	}
	return msg, nil
}

func (c *ChatStore) List(ctx context.Context, scope string, limit int) ([]models.ChatMessage, error) {
	query := fmt.Sprintf(`SELECT `+chatColumns+` FROM %s WHERE scope = $1 ORDER BY created_at DESC, id DESC`, c.s.table("chat_messages"))
	args := []any{scope}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := c.s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	out := []models.ChatMessage{}
	for rows.Next() {
		msg, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (c *ChatStore) Get(ctx context.Context, scope, id string) (models.ChatMessage, error) {
	row := c.s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT `+chatColumns+` FROM %s WHERE id = $1 AND scope = $2`, c.s.table("chat_messages")), id, scope)
	return scanChat(row)
}

// SaveFeedback creates or replaces the feedback on a chat message. The bool
// reports whether a new row was created.
func (c *ChatStore) SaveFeedback(ctx context.Context, scope string, fb models.Feedback) (models.Feedback, bool, error) {
	if _, err := c.Get(ctx, scope, fb.ChatID); err != nil {
		return fb, false, err
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}

	var created bool
	err := c.s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (chat_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id) DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment
		RETURNING created_at, (xmax = 0)`, c.s.table("chat_feedback")),
		fb.ChatID, fb.Rating, sanitizeUTF8(fb.Comment), fb.CreatedAt,
	).Scan(&fb.CreatedAt, &created)
	if err != nil {
		return fb, false, fmt.Errorf("failed to save feedback: %w", err)
	}
	return fb, created, nil
}

// ProviderStore implements types.ProviderConfigs.
type ProviderStore struct {
	s *Store
}

func (p *ProviderStore) Get(ctx context.Context, scope string) (models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	err := p.s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT provider, model, credential, updated_at FROM %s WHERE scope = $1`, p.s.table("provider_configs")), scope,
	).Scan(&cfg.Provider, &cfg.Model, &cfg.Credential, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return cfg, types.ErrNotFound
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read provider config: %w", err)
	}
	return cfg, nil
}

func (p *ProviderStore) Set(ctx context.Context, scope string, cfg models.ProviderConfig) error {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	_, err := p.s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (scope, provider, model, credential, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope) DO UPDATE SET provider = EXCLUDED.provider, model = EXCLUDED.model,
			credential = EXCLUDED.credential, updated_at = EXCLUDED.updated_at`, p.s.table("provider_configs")),
		scope, cfg.Provider, cfg.Model, cfg.Credential, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save provider config: %w", err)
	}
	return nil
}

// sanitizeUTF8 drops invalid bytes and NULs, which Postgres text rejects.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) && !strings.ContainsRune(s, 0) {
		return s
	}
	s = strings.ToValidUTF8(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}

func sanitizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = sanitizeUTF8(s)
	}
	return out
}
