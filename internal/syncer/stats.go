package syncer

import (
	"context"
	"time"

	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

// GetStats returns the owner's stats. An owner without stats gets zeroes.
func (c *Coordinator) GetStats(ownerID string) models.UserStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st := c.state(ownerID); st.stats != nil {
		return *st.stats
	}
	return models.UserStats{UserID: ownerID}
}

// ApplyStatsDelta adds delta to the owner's stats and pushes the result.
// The local stats stand when the push fails.
func (c *Coordinator) ApplyStatsDelta(ctx context.Context, ownerID string, delta models.StatsDelta, at time.Time) (models.UserStats, error) {
	if delta.IsZero() {
		return c.GetStats(ownerID), nil
	}

	c.mu.Lock()
	st := c.state(ownerID)
	stats := c.applyDelta(ownerID, st, delta, at)
	c.persist(ownerID, st, constants.CollectionProgress)
	c.mu.Unlock()

	c.publishStats(stats)
	c.scheduleRefresh(ownerID)
	if c.remote == nil {
		return stats, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
	defer cancel()
	return stats, c.pushStats(ctx, ownerID)
}

// SubscribeStats calls fn with every stats change of ownerID.
func (c *Coordinator) SubscribeStats(ownerID string, fn func(models.UserStats)) (unsubscribe func()) {
	return c.statsObs.Subscribe(func(s models.UserStats) {
		if s.UserID == ownerID {
			fn(s)
		}
	})
}

// applyDelta creates stats lazily and marks them pending. Caller holds c.mu.
func (c *Coordinator) applyDelta(ownerID string, st *ownerState, delta models.StatsDelta, at time.Time) models.UserStats {
	if st.stats == nil {
		st.stats = &models.UserStats{UserID: ownerID}
	}
	if !delta.IsZero() {
		st.stats.Apply(delta, at.UTC())
		st.statsPending = true
		st.statsVersion++
	}
	return *st.stats
}

func (c *Coordinator) publishStats(stats models.UserStats) {
	c.statsObs.Set(stats)
}

// pushStats upserts pending stats.
func (c *Coordinator) pushStats(ctx context.Context, ownerID string) error {
	c.mu.Lock()
	st := c.state(ownerID)
	if st.stats == nil || !st.statsPending || st.statsInflight {
		c.mu.Unlock()
		return nil
	}
	stats, ver := *st.stats, st.statsVersion
	st.statsInflight = true
	c.mu.Unlock()

	err := c.remote.Stats().Upsert(ctx, stats)

	c.mu.Lock()
	defer c.mu.Unlock()
	st = c.state(ownerID)
	st.statsInflight = false
	if err != nil {
		err = apperrors.Wrap("upsert stats", ownerID, err)
		logger.Warn("Remote stats upsert failed, keeping local stats", "owner", ownerID, "error", err)
		return err
	}
	if st.statsVersion == ver {
		st.statsPending = false
		st.statsAck = c.nextSeq()
		c.persist(ownerID, st, constants.CollectionProgress)
	}
	return nil
}
