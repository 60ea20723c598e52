package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/otel"
)

// TracerName is the name used for the store tracer
const TracerName = "github.com/yagnadeepxo/avici-internal-dashboard/store"

// upsertChunkSize bounds the number of statements sent in one pgx batch
const upsertChunkSize = 500

const (
	insertUserSQL = `
INSERT INTO users (user_id, email, ip_address, identifier_type, created_at, updated_at, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id) DO NOTHING`

	selectNeedingEnrichmentSQL = `
SELECT user_id, email, ip_address, identifier_type, created_at, updated_at, ingested_at,
       country_name_official, state, city, district, country_code
FROM users
WHERE ip_address IS NOT NULL
  AND (country_name_official IS NULL
    OR state IS NULL
    OR city IS NULL
    OR district IS NULL
    OR country_code IS NULL)
ORDER BY user_id
LIMIT $1 OFFSET $2`

	getEnrichmentSQL = `
SELECT country_name_official, state, city, district, country_code
FROM users
WHERE user_id = $1`

	// COALESCE keeps any value that was written after the caller's re-read
	updateEnrichmentSQL = `
UPDATE users SET
    country_name_official = COALESCE(country_name_official, $2),
    state                 = COALESCE(state, $3),
    city                  = COALESCE(city, $4),
    district              = COALESCE(district, $5),
    country_code          = COALESCE(country_code, $6)
WHERE user_id = $1
  AND ((country_name_official IS NULL AND $2::text IS NOT NULL)
    OR (state IS NULL AND $3::text IS NOT NULL)
    OR (city IS NULL AND $4::text IS NOT NULL)
    OR (district IS NULL AND $5::text IS NOT NULL)
    OR (country_code IS NULL AND $6::text IS NOT NULL))`

	getCheckpointSQL = `
SELECT key, value, updated_at
FROM sync_checkpoints
WHERE key = $1`

	setCheckpointSQL = `
INSERT INTO sync_checkpoints (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
)

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	now    func() time.Time
}

// PostgresOption configures a PostgresStore
type PostgresOption func(*PostgresStore)

// WithTracer enables spans around store operations
func WithTracer(tracer trace.Tracer) PostgresOption {
	return func(s *PostgresStore) {
		s.tracer = tracer
	}
}

// NewPostgresStore creates a store on the given pool.
// The caller is responsible for closing the pool when done.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	s := &PostgresStore{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *PostgresStore) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append([]trace.SpanStartOption{trace.WithAttributes(semconv.DBSystemPostgreSQL)}, opts...)
	return otel.StartSpan(ctx, s.tracer, name, opts...)
}

// Ping implements Store
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetCheckpoint implements CheckpointStore
func (s *PostgresStore) GetCheckpoint(ctx context.Context, key string) (*Checkpoint, error) {
	ctx, span := s.startSpan(ctx, "store.GetCheckpoint")
	defer span.End()

	var cp Checkpoint
	err := s.pool.QueryRow(ctx, getCheckpointSQL, key).Scan(&cp.Key, &cp.Value, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to read checkpoint %q: %w", key, err)
	}
	return &cp, nil
}

// SetCheckpoint implements CheckpointStore
func (s *PostgresStore) SetCheckpoint(ctx context.Context, key, value string) error {
	ctx, span := s.startSpan(ctx, "store.SetCheckpoint")
	defer span.End()

	if _, err := s.pool.Exec(ctx, setCheckpointSQL, key, value); err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to write checkpoint %q: %w", key, err)
	}
	return nil
}

// UpsertUsers implements UserWriter. All users are written in one
// transaction; the inserted count comes from the command tags, so rows that
// already existed are not counted.
func (s *PostgresStore) UpsertUsers(ctx context.Context, users []User) (int64, error) {
	if len(users) == 0 {
		return 0, nil
	}

	ctx, span := s.startSpan(ctx, "store.UpsertUsers",
		trace.WithAttributes(otel.AttrResultCount.Int(len(users))),
	)
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ingestedAt := s.now().UTC()
	var inserted int64
	for start := 0; start < len(users); start += upsertChunkSize {
		end := min(start+upsertChunkSize, len(users))
		n, err := insertChunk(ctx, tx, users[start:end], ingestedAt)
		if err != nil {
			otel.RecordError(span, err)
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(ctx); err != nil {
		otel.RecordError(span, err)
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

func insertChunk(ctx context.Context, tx pgx.Tx, users []User, ingestedAt time.Time) (int64, error) {
	batch := &pgx.Batch{}
	for i := range users {
		u := &users[i]
		at := u.IngestedAt
		if at.IsZero() {
			at = ingestedAt
		}
		batch.Queue(insertUserSQL,
			u.UserID, nullIfEmpty(u.Email), u.IPAddress, nullIfEmpty(u.IdentifierType),
			u.CreatedAt, u.UpdatedAt, at,
		)
	}

	br := tx.SendBatch(ctx, batch)
	var inserted int64
	for i := range users {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("failed to insert user %q: %w", users[i].UserID, err)
		}
		inserted += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch: %w", err)
	}
	return inserted, nil
}

// SelectNeedingEnrichment implements EnrichmentStore
func (s *PostgresStore) SelectNeedingEnrichment(ctx context.Context, limit, offset int) ([]User, error) {
	ctx, span := s.startSpan(ctx, "store.SelectNeedingEnrichment",
		trace.WithAttributes(otel.AttrBatchSize.Int(limit), otel.AttrBatchOffset.Int(offset)),
	)
	defer span.End()

	rows, err := s.pool.Query(ctx, selectNeedingEnrichmentSQL, limit, offset)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to select users needing enrichment: %w", err)
	}

	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(users)))
	return users, nil
}

func scanUser(row pgx.CollectableRow) (User, error) {
	var (
		u             User
		email, idType *string
	)
	err := row.Scan(
		&u.UserID, &email, &u.IPAddress, &idType, &u.CreatedAt, &u.UpdatedAt, &u.IngestedAt,
		&u.CountryNameOfficial, &u.State, &u.City, &u.District, &u.CountryCode,
	)
	if email != nil {
		u.Email = *email
	}
	if idType != nil {
		u.IdentifierType = *idType
	}
	return u, err
}

// GetEnrichment implements EnrichmentStore
func (s *PostgresStore) GetEnrichment(ctx context.Context, userID string) (Enrichment, error) {
	ctx, span := s.startSpan(ctx, "store.GetEnrichment", trace.WithAttributes(otel.AttrUserID.String(userID)))
	defer span.End()

	var e Enrichment
	err := s.pool.QueryRow(ctx, getEnrichmentSQL, userID).
		Scan(&e.CountryNameOfficial, &e.State, &e.City, &e.District, &e.CountryCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Enrichment{}, ErrNotFound
		}
		otel.RecordError(span, err)
		return Enrichment{}, fmt.Errorf("failed to read enrichment for %q: %w", userID, err)
	}
	return e, nil
}

// UpdateEnrichment implements EnrichmentStore
func (s *PostgresStore) UpdateEnrichment(ctx context.Context, userID string, e Enrichment) (bool, error) {
	if e.Empty() {
		return false, nil
	}

	ctx, span := s.startSpan(ctx, "store.UpdateEnrichment", trace.WithAttributes(otel.AttrUserID.String(userID)))
	defer span.End()

	tag, err := s.pool.Exec(ctx, updateEnrichmentSQL,
		userID, e.CountryNameOfficial, e.State, e.City, e.District, e.CountryCode,
	)
	if err != nil {
		otel.RecordError(span, err)
		return false, fmt.Errorf("failed to update enrichment for %q: %w", userID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
