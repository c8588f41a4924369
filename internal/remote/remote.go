// Package remote defines the relational source of truth the sync
// coordinator reconciles against. The client never touches local state.
package remote

import (
	"context"

	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

// Table is one owner-scoped remote table.
//
// Insert returns the stored record; the remote side may have assigned a
// different id than the one sent. Update reports a not-found error when no
// row matched. Delete of an absent row succeeds.
type Table[T any] interface {
	Insert(ctx context.Context, rec T) (T, error)
	Update(ctx context.Context, rec T) error
	Delete(ctx context.Context, id string) error
	SelectByOwner(ctx context.Context, ownerID string) ([]T, error)
}

// StatsTable holds one UserStats row per owner. Get returns nil, nil when
// the owner has no row yet.
type StatsTable interface {
	Get(ctx context.Context, ownerID string) (*models.UserStats, error)
	Upsert(ctx context.Context, stats models.UserStats) error
}

// Store groups every remote table.
type Store interface {
	Tasks() Table[models.Task]
	Habits() Table[models.Habit]
	Completions() Table[models.HabitCompletion]
	Sessions() Table[models.FocusSession]
	SessionTasks() Table[models.SessionTaskLink]
	SessionHabits() Table[models.SessionHabitLink]
	Stats() StatsTable

	// ReassignOwner moves every row owned by guestID to authID in one
	// transaction, merging the two stats rows. Running it again is a no-op.
	ReassignOwner(ctx context.Context, guestID, authID string) error
}
