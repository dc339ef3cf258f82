package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"memeWatch/internal/model"
	"memeWatch/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

const pgErrUniqueViolation = "23505"

const tokenColumns = `id, address, next_15m, next_30m, next_1h, history, created_at, updated_at`

// Store provides Postgres persistence for tracked tokens.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Insert adds a new token. Returns ErrDuplicateKey if the address exists.
func (s *Store) Insert(ctx context.Context, token model.TrackedToken) error {
	if token.Address == "" {
		return storage.ErrInvalidInput
	}
	history, err := json.Marshal(token.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tracked_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
	`,
		token.ID,
		token.Address,
		token.Next15m,
		token.Next30m,
		token.Next1h,
		string(history),
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert tracked token: %w", err)
	}
	return nil
}

// Get returns the token for an address. Returns ErrNotFound if not tracked.
func (s *Store) Get(ctx context.Context, address string) (model.TrackedToken, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tracked_tokens WHERE address = $1`, address)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TrackedToken{}, storage.ErrNotFound
		}
		return model.TrackedToken{}, fmt.Errorf("get tracked token: %w", err)
	}
	return token, nil
}

// List returns all tokens, newest first.
func (s *Store) List(ctx context.Context) ([]model.TrackedToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tokenColumns+`
		FROM tracked_tokens
		ORDER BY created_at DESC, address
	`)
	if err != nil {
		return nil, fmt.Errorf("list tracked tokens: %w", err)
	}
	return collectTokens(rows)
}

// ListDue returns tokens with at least one interval due at now, oldest first.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]model.TrackedToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tokenColumns+`
		FROM tracked_tokens
		WHERE next_15m <= $1 OR next_30m <= $1 OR next_1h <= $1
		ORDER BY created_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list due tokens: %w", err)
	}
	return collectTokens(rows)
}

// ApplyUpdate merges the update in a single statement. The WHERE clause only
// matches while every targeted interval is still set, so a concurrent writer
// that already cleared one of them turns this call into ErrConflict.
func (s *Store) ApplyUpdate(ctx context.Context, address string, update model.RefreshUpdate) error {
	if len(update.Intervals) == 0 {
		return storage.ErrInvalidInput
	}
	patch, err := json.Marshal(update.HistoryPatch())
	if err != nil {
		return fmt.Errorf("marshal history patch: %w", err)
	}

	cleared := make(map[model.Interval]bool, len(update.Intervals))
	for _, i := range update.Intervals {
		cleared[i] = true
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE tracked_tokens SET
			history = history || $2::jsonb,
			next_15m = CASE WHEN $3::boolean THEN NULL ELSE next_15m END,
			next_30m = CASE WHEN $4::boolean THEN NULL ELSE next_30m END,
			next_1h = CASE WHEN $5::boolean THEN NULL ELSE next_1h END,
			updated_at = $6
		WHERE address = $1
			AND (NOT $3::boolean OR next_15m IS NOT NULL)
			AND (NOT $4::boolean OR next_30m IS NOT NULL)
			AND (NOT $5::boolean OR next_1h IS NOT NULL)
	`,
		address,
		string(patch),
		cleared[model.Interval15m],
		cleared[model.Interval30m],
		cleared[model.Interval1h],
		update.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("apply refresh update: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.Get(ctx, address); err != nil {
		return err
	}
	return storage.ErrConflict
}

// LoadState returns the last run time for a name.
func (s *Store) LoadState(ctx context.Context, name string) (time.Time, bool, error) {
	if name == "" {
		return time.Time{}, false, fmt.Errorf("state name required")
	}
	var ts time.Time
	row := s.pool.QueryRow(ctx, `SELECT last_run FROM tracker_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return ts.UTC(), true, nil
}

// SaveState upserts the last run time for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts time.Time) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracker_state (name, last_run, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_run = EXCLUDED.last_run, updated_at = now()
	`, name, ts)
	return err
}

func collectTokens(rows pgx.Rows) ([]model.TrackedToken, error) {
	defer rows.Close()

	tokens := make([]model.TrackedToken, 0)
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked tokens: %w", err)
	}
	return tokens, nil
}

func scanToken(row pgx.Row) (model.TrackedToken, error) {
	var (
		token   model.TrackedToken
		history []byte
	)
	err := row.Scan(
		&token.ID,
		&token.Address,
		&token.Next15m,
		&token.Next30m,
		&token.Next1h,
		&history,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if err != nil {
		return model.TrackedToken{}, err
	}
	if err := json.Unmarshal(history, &token.History); err != nil {
		return model.TrackedToken{}, fmt.Errorf("decode history: %w", err)
	}
	token.CreatedAt = token.CreatedAt.UTC()
	token.UpdatedAt = token.UpdatedAt.UTC()
	for _, i := range model.Intervals {
		if at := token.Get(i); at != nil {
			utc := at.UTC()
			*at = utc
		}
	}
	return token, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

var (
	_ storage.TokenStore   = (*Store)(nil)
	_ storage.StateBackend = (*Store)(nil)
)
