package syncer

import (
	"errors"
	"fmt"

	"github.com/AjCodes/FocusUp-sub000/internal/cache"
	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

// ReassignLocal moves every cached record of guestID to authID and removes
// the guest snapshots. Records both owners hold keep the account's version.
//
// authStats, when given, are the account's stats as the remote store holds
// them after its own re-parenting, and replace the local ones. Without them
// the guest stats are merged into the account's locally. Running it again
// finds no guest state and changes nothing.
func (c *Coordinator) ReassignLocal(guestID, authID string, authStats *models.UserStats) error {
	if guestID == "" || authID == "" {
		return fmt.Errorf("reassign: owner ids must not be empty")
	}
	if guestID == authID {
		return nil
	}

	c.mu.Lock()
	from, to := c.state(guestID), c.state(authID)

	reassign(taskKind, from, to, authID)
	reassign(habitKind, from, to, authID)
	reassign(completionKind, from, to, authID)
	reassign(sessionKind, from, to, authID)
	reassign(taskLinkKind, from, to, authID)
	reassign(habitLinkKind, from, to, authID)
	for k, v := range from.aliases {
		if _, ok := to.aliases[k]; !ok {
			to.aliases[k] = v
		}
	}

	switch {
	case authStats != nil:
		s := *authStats
		s.UserID = authID
		s.Normalize()
		to.stats = &s
		to.statsPending = false
		to.statsAck = c.nextSeq()
	case from.stats != nil:
		merged := models.UserStats{UserID: authID}
		if to.stats != nil {
			merged = *to.stats
		}
		merged.Merge(*from.stats)
		to.stats = &merged
		to.statsPending = true
		to.statsVersion++
	}
	c.persistAll(authID, to)

	var errs []error
	for _, collection := range []string{
		constants.CollectionTasks,
		constants.CollectionHabits,
		constants.CollectionCompletions,
		constants.CollectionProgress,
	} {
		if err := c.cache.Remove(cache.Key(collection, guestID)); err != nil {
			errs = append(errs, fmt.Errorf("remove guest %s snapshot: %w", collection, err))
		}
	}
	delete(c.owners, guestID)

	var stats models.UserStats
	if to.stats != nil {
		stats = *to.stats
	}
	c.mu.Unlock()

	if stats.UserID != "" {
		c.publishStats(stats)
	}
	logger.Info("Reassigned cached records", "guest", guestID, "account", authID)
	return errors.Join(errs...)
}
