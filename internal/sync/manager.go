package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/feed"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/otel"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/store"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/telemetry"
)

// TracerName is the name used for the sync tracer
const TracerName = "github.com/yagnadeepxo/avici-internal-dashboard/sync"

// DefaultCheckpointKey is the checkpoint row holding the most recent synced user_id
const DefaultCheckpointKey = "last_synced_user_id"

// Mode is the sync strategy selected for a run
type Mode string

const (
	// ModeFull fetches every page and bulk upserts; used when no checkpoint exists
	ModeFull Mode = "full"
	// ModeIncremental fetches pages until the checkpointed user is seen
	ModeIncremental Mode = "incremental"
)

// Failure reasons carried by Error
const (
	ReasonFetchFailed            = "FetchFailed"
	ReasonStorageFailed          = "StorageFailed"
	ReasonCheckpointUndetermined = "CheckpointUndetermined"
	ReasonCheckpointFailed       = "CheckpointFailed"
)

// Result contains the result of a successful sync operation
type Result struct {
	Mode         Mode
	PagesFetched int
	// Upserted is the number of users submitted to the store
	Upserted int
	// Inserted is the number of users the store actually created
	Inserted   int64
	Checkpoint string
}

// Error represents a failed sync run. No checkpoint is written when a run
// returns an Error.
type Error struct {
	Err     error
	Message string
	Reason  string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DataError reports feed content that makes the run impossible to complete,
// such as an empty first page when a new checkpoint is needed.
type DataError struct {
	Message string
}

func (e *DataError) Error() string {
	return e.Message
}

// Manager runs user syncs from the upstream feed into the store
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/yagnadeepxo/avici-internal-dashboard/internal/sync Manager
type Manager interface {
	// PerformSync runs one sync, full or incremental depending on whether a
	// checkpoint exists.
	PerformSync(ctx context.Context) (*Result, *Error)
}

// Option configures the default manager
type Option func(*defaultManager)

// WithCheckpointKey overrides the checkpoint row key
func WithCheckpointKey(key string) Option {
	return func(m *defaultManager) {
		if key != "" {
			m.checkpointKey = key
		}
	}
}

// WithMetrics records page and upsert counters
func WithMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(m *defaultManager) {
		m.metrics = metrics
	}
}

// WithTracer enables a span per run
func WithTracer(tracer trace.Tracer) Option {
	return func(m *defaultManager) {
		m.tracer = tracer
	}
}

type defaultManager struct {
	fetcher       feed.PageFetcher
	checkpoints   store.CheckpointStore
	users         store.UserWriter
	checkpointKey string
	metrics       *telemetry.SyncMetrics
	tracer        trace.Tracer
}

// NewManager creates a Manager reading from fetcher and writing to the given stores
func NewManager(
	fetcher feed.PageFetcher,
	checkpoints store.CheckpointStore,
	users store.UserWriter,
	opts ...Option,
) Manager {
	m := &defaultManager{
		fetcher:       fetcher,
		checkpoints:   checkpoints,
		users:         users,
		checkpointKey: DefaultCheckpointKey,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PerformSync implements Manager
func (m *defaultManager) PerformSync(ctx context.Context) (*Result, *Error) {
	checkpoint, err := m.checkpoints.GetCheckpoint(ctx, m.checkpointKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.ErrorContext(ctx, "Failed to read sync checkpoint", "key", m.checkpointKey, "error", err)
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("Failed to read checkpoint: %v", err),
			Reason:  ReasonStorageFailed,
		}
	}

	mode := ModeFull
	if checkpoint != nil && checkpoint.Value != "" {
		mode = ModeIncremental
	}

	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.PerformSync",
		trace.WithAttributes(otel.AttrSyncMode.String(string(mode))),
	)
	defer span.End()

	var (
		result  *Result
		syncErr *Error
	)
	if mode == ModeFull {
		result, syncErr = m.fullSync(ctx)
	} else {
		result, syncErr = m.incrementalSync(ctx, checkpoint.Value)
	}
	if syncErr != nil {
		otel.RecordError(span, syncErr)
		return nil, syncErr
	}

	if err := m.checkpoints.SetCheckpoint(ctx, m.checkpointKey, result.Checkpoint); err != nil {
		slog.ErrorContext(ctx, "Failed to write sync checkpoint", "key", m.checkpointKey, "error", err)
		otel.RecordError(span, err)
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("Failed to write checkpoint: %v", err),
			Reason:  ReasonCheckpointFailed,
		}
	}

	slog.InfoContext(ctx, "Sync completed",
		"mode", result.Mode,
		"pages", result.PagesFetched,
		"upserted", result.Upserted,
		"inserted", result.Inserted,
		"checkpoint", result.Checkpoint)

	return result, nil
}

func (m *defaultManager) fullSync(ctx context.Context) (*Result, *Error) {
	result := &Result{Mode: ModeFull}
	var users []store.User

	for n := 1; ; n++ {
		page, syncErr := m.fetchPage(ctx, result, n)
		if syncErr != nil {
			return nil, syncErr
		}
		if len(page.Users) == 0 {
			break
		}
		users = append(users, page.Users...)
		if !page.HasNextPage {
			break
		}
	}

	slog.InfoContext(ctx, "Full sync fetched feed", "pages", result.PagesFetched, "users", len(users))

	if syncErr := m.upsert(ctx, result, users); syncErr != nil {
		return nil, syncErr
	}

	// The first page may have moved on while the later pages were read.
	page, syncErr := m.fetchPage(ctx, result, 1)
	if syncErr != nil {
		return nil, syncErr
	}
	if len(page.Users) == 0 {
		return nil, undeterminedCheckpoint("first feed page is empty after full sync")
	}
	result.Checkpoint = page.Users[0].UserID
	return result, nil
}

func (m *defaultManager) incrementalSync(ctx context.Context, checkpoint string) (*Result, *Error) {
	result := &Result{Mode: ModeIncremental}

	for n := 1; ; n++ {
		page, syncErr := m.fetchPage(ctx, result, n)
		if syncErr != nil {
			return nil, syncErr
		}
		if len(page.Users) == 0 {
			break
		}
		if n == 1 {
			result.Checkpoint = page.Users[0].UserID
		}

		if i := indexOf(page.Users, checkpoint); i >= 0 {
			slog.DebugContext(ctx, "Reached sync checkpoint", "page", n, "index", i, "checkpoint", checkpoint)
			if syncErr := m.upsert(ctx, result, page.Users[:i]); syncErr != nil {
				return nil, syncErr
			}
			break
		}

		if syncErr := m.upsert(ctx, result, page.Users); syncErr != nil {
			return nil, syncErr
		}
		if !page.HasNextPage {
			slog.WarnContext(ctx, "Checkpoint not found in feed, synced all pages", "checkpoint", checkpoint)
			break
		}
	}

	if result.Checkpoint == "" {
		page, syncErr := m.fetchPage(ctx, result, 1)
		if syncErr != nil {
			return nil, syncErr
		}
		if len(page.Users) == 0 {
			return nil, undeterminedCheckpoint("first feed page is empty, cannot determine new checkpoint")
		}
		result.Checkpoint = page.Users[0].UserID
	}
	return result, nil
}

func (m *defaultManager) fetchPage(ctx context.Context, result *Result, n int) (*feed.Page, *Error) {
	page, err := m.fetcher.FetchPage(ctx, n)
	if err != nil {
		slog.ErrorContext(ctx, "Fetch operation failed", "page", n, "error", err)
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("Fetch failed: %v", err),
			Reason:  ReasonFetchFailed,
		}
	}
	result.PagesFetched++
	m.metrics.RecordPageFetched(ctx, string(result.Mode))

	if i := firstOutOfOrder(page.Users); i > 0 {
		slog.WarnContext(ctx, "Feed page is not ordered most recent first",
			"page", n,
			"index", i,
			"user_id", page.Users[i].UserID)
	}
	return page, nil
}

func (m *defaultManager) upsert(ctx context.Context, result *Result, users []store.User) *Error {
	if len(users) == 0 {
		return nil
	}
	inserted, err := m.users.UpsertUsers(ctx, users)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to store users", "count", len(users), "error", err)
		return &Error{
			Err:     err,
			Message: fmt.Sprintf("Storage failed: %v", err),
			Reason:  ReasonStorageFailed,
		}
	}
	result.Upserted += len(users)
	result.Inserted += inserted
	m.metrics.RecordUpsert(ctx, string(result.Mode), int64(len(users)), inserted)
	return nil
}

func undeterminedCheckpoint(msg string) *Error {
	err := &DataError{Message: msg}
	return &Error{
		Err:     err,
		Message: fmt.Sprintf("Data error: %s", msg),
		Reason:  ReasonCheckpointUndetermined,
	}
}

func indexOf(users []store.User, userID string) int {
	for i := range users {
		if users[i].UserID == userID {
			return i
		}
	}
	return -1
}

// firstOutOfOrder returns the index of the first user created after its
// predecessor, or -1. Users without a creation time are not compared.
func firstOutOfOrder(users []store.User) int {
	for i := 1; i < len(users); i++ {
		prev, cur := users[i-1].CreatedAt, users[i].CreatedAt
		if prev != nil && cur != nil && cur.After(*prev) {
			return i
		}
	}
	return -1
}
