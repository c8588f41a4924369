// Package identity owns the guest and account ids and moves guest data onto
// an account exactly once, right after the first sign-in.
package identity

import (
	"context"
	"errors"

	"github.com/AjCodes/FocusUp-sub000/internal/daily"
	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
	"github.com/AjCodes/FocusUp-sub000/internal/remote"
)

// Coordinator is the part of the sync coordinator migration drives.
type Coordinator interface {
	Wait()
	SyncPending(ctx context.Context, ownerID string) error
	ReassignLocal(guestID, authID string, authStats *models.UserStats) error
}

// Migrator re-parents guest records to an account.
type Migrator struct {
	coord   Coordinator
	remote  remote.Store
	tracker *daily.Tracker
}

// NewMigrator creates a migrator. A nil remote migrates the cache only.
func NewMigrator(coord Coordinator, r remote.Store, tracker *daily.Tracker) *Migrator {
	return &Migrator{coord: coord, remote: r, tracker: tracker}
}

func migrationFailure(id string, err error) error {
	return &apperrors.SyncError{Kind: apperrors.KindMigrationFailure, Op: "migrate", ID: id, Err: err}
}

// Migrate moves everything guestID owns to authID. Running it again with the
// same ids changes nothing, so a failed run can simply be retried.
//
// Guest writes still pending are flushed first, otherwise the remote
// re-parenting would miss them. The remote store then moves all rows and
// merges the stats rows in one transaction, and the local cache adopts the
// merged stats instead of merging a second time.
func (m *Migrator) Migrate(ctx context.Context, guestID, authID string) error {
	if guestID == "" || authID == "" {
		return migrationFailure(guestID, errors.New("guest id and account id are required"))
	}
	if guestID == authID {
		return nil
	}

	m.coord.Wait()

	var authStats *models.UserStats
	if m.remote != nil {
		if err := m.coord.SyncPending(ctx, guestID); err != nil {
			logger.Warn("Guest data not fully synced, migration postponed", "guest", guestID, "error", err)
			return migrationFailure(guestID, err)
		}
		if err := m.remote.ReassignOwner(ctx, guestID, authID); err != nil {
			logger.Error("Remote owner reassignment failed", "guest", guestID, "account", authID, "error", err)
			return migrationFailure(guestID, err)
		}
		stats, err := m.remote.Stats().Get(ctx, authID)
		if err != nil {
			return migrationFailure(guestID, err)
		}
		authStats = stats
	}

	if err := m.coord.ReassignLocal(guestID, authID, authStats); err != nil {
		return migrationFailure(guestID, err)
	}
	if m.tracker != nil {
		if err := m.tracker.Reassign(guestID, authID); err != nil {
			return migrationFailure(guestID, err)
		}
	}

	logger.Info("Migrated guest data", "guest", guestID, "account", authID)
	return nil
}
