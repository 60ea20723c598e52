// Package store defines the persistence contract shared by the sync and
// enrichment services: a single checkpoint slot and the users table.
package store

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go CheckpointStore,UserWriter,EnrichmentStore

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// User is a row of the users table
type User struct {
	UserID         string
	Email          string
	IPAddress      *string
	IdentifierType string
	CreatedAt      *time.Time
	UpdatedAt      *time.Time
	IngestedAt     time.Time

	Enrichment
}

// Enrichment holds the independently nullable geolocation columns.
// Once a column is non-null it is never overwritten.
type Enrichment struct {
	CountryNameOfficial *string
	State               *string
	City                *string
	District            *string
	CountryCode         *string
}

// Complete reports whether every enrichment column is set
func (e Enrichment) Complete() bool {
	return e.CountryNameOfficial != nil &&
		e.State != nil &&
		e.City != nil &&
		e.District != nil &&
		e.CountryCode != nil
}

// Empty reports whether no enrichment column is set
func (e Enrichment) Empty() bool {
	return e.CountryNameOfficial == nil &&
		e.State == nil &&
		e.City == nil &&
		e.District == nil &&
		e.CountryCode == nil
}

// FillMissing returns the columns of candidate that are null in e, leaving
// every other column nil. The result is Empty when nothing qualifies.
func (e Enrichment) FillMissing(candidate Enrichment) Enrichment {
	pick := func(current, next *string) *string {
		if current != nil {
			return nil
		}
		return next
	}
	return Enrichment{
		CountryNameOfficial: pick(e.CountryNameOfficial, candidate.CountryNameOfficial),
		State:               pick(e.State, candidate.State),
		City:                pick(e.City, candidate.City),
		District:            pick(e.District, candidate.District),
		CountryCode:         pick(e.CountryCode, candidate.CountryCode),
	}
}

// Checkpoint is the marker left by the last completed sync
type Checkpoint struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// CheckpointStore reads and writes the checkpoint slot
type CheckpointStore interface {
	// GetCheckpoint returns ErrNotFound when the slot has never been written
	GetCheckpoint(ctx context.Context, key string) (*Checkpoint, error)

	// SetCheckpoint creates or replaces the slot
	SetCheckpoint(ctx context.Context, key, value string) error
}

// UserWriter persists users coming from the feed
type UserWriter interface {
	// UpsertUsers inserts users whose key is not yet stored and leaves existing
	// rows untouched. It returns how many rows were actually created.
	UpsertUsers(ctx context.Context, users []User) (int64, error)
}

// EnrichmentStore backs the enrichment pass
type EnrichmentStore interface {
	// SelectNeedingEnrichment returns up to limit users with an IP address and
	// at least one null enrichment column, skipping the first offset matches.
	SelectNeedingEnrichment(ctx context.Context, limit, offset int) ([]User, error)

	// GetEnrichment re-reads the enrichment columns of one user
	GetEnrichment(ctx context.Context, userID string) (Enrichment, error)

	// UpdateEnrichment writes the non-nil columns of e that are still null in
	// the store. It reports whether any column changed.
	UpdateEnrichment(ctx context.Context, userID string, e Enrichment) (bool, error)
}

// Store is the full persistence contract
type Store interface {
	CheckpointStore
	UserWriter
	EnrichmentStore

	// Ping checks connectivity
	Ping(ctx context.Context) error
}
