package syncer

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

// RefreshAll fetches every remote table for ownerID, merges it into the
// local state and then pushes whatever is still pending. Merging first lets
// a placeholder whose insert landed without an acknowledgement be adopted
// instead of inserted twice. It is safe to call any number of times.
// Without a remote store it does nothing.
func (c *Coordinator) RefreshAll(ctx context.Context, ownerID string) error {
	if c.remote == nil {
		return nil
	}
	if err := c.fetchAndMerge(ctx, ownerID); err != nil {
		return err
	}
	if err := c.SyncPending(ctx, ownerID); err != nil {
		logger.Warn("Pending writes not confirmed", "owner", ownerID, "error", err)
		return err
	}
	return nil
}

func (c *Coordinator) fetchAndMerge(ctx context.Context, ownerID string) error {
	c.mu.Lock()
	fetchSeq := c.nextSeq()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
	defer cancel()

	var (
		tasks       []models.Task
		habits      []models.Habit
		completions []models.HabitCompletion
		sessions    []models.FocusSession
		taskLinks   []models.SessionTaskLink
		habitLinks  []models.SessionHabitLink
		stats       *models.UserStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tasks, err = c.remote.Tasks().SelectByOwner(gctx, ownerID)
		return apperrors.Wrap("select tasks", ownerID, err)
	})
	g.Go(func() (err error) {
		habits, err = c.remote.Habits().SelectByOwner(gctx, ownerID)
		return apperrors.Wrap("select habits", ownerID, err)
	})
	g.Go(func() (err error) {
		completions, err = c.remote.Completions().SelectByOwner(gctx, ownerID)
		return apperrors.Wrap("select habit completions", ownerID, err)
	})
	g.Go(func() (err error) {
		sessions, err = c.remote.Sessions().SelectByOwner(gctx, ownerID)
		return apperrors.Wrap("select focus sessions", ownerID, err)
	})
	g.Go(func() (err error) {
		taskLinks, err = c.remote.SessionTasks().SelectByOwner(gctx, ownerID)
		return apperrors.Wrap("select session tasks", ownerID, err)
	})
	g.Go(func() (err error) {
		habitLinks, err = c.remote.SessionHabits().SelectByOwner(gctx, ownerID)
		return apperrors.Wrap("select session habits", ownerID, err)
	})
	g.Go(func() (err error) {
		stats, err = c.remote.Stats().Get(gctx, ownerID)
		return apperrors.Wrap("get stats", ownerID, err)
	})
	if err := g.Wait(); err != nil {
		logger.Warn("Refresh failed, keeping cached state", "owner", ownerID, "error", err)
		return err
	}

	c.mu.Lock()
	st := c.state(ownerID)
	// Parents first so adoption re-keys references before children merge
	merge(taskKind, st, tasks, fetchSeq)
	merge(habitKind, st, habits, fetchSeq)
	merge(sessionKind, st, sessions, fetchSeq)
	merge(completionKind, st, completions, fetchSeq)
	merge(taskLinkKind, st, taskLinks, fetchSeq)
	merge(habitLinkKind, st, habitLinks, fetchSeq)

	adopted := false
	if stats != nil && !st.statsPending && !st.statsInflight && st.statsAck < fetchSeq {
		s := *stats
		s.Normalize()
		st.stats = &s
		adopted = true
	}
	c.persistAll(ownerID, st)
	var published models.UserStats
	if adopted {
		published = *st.stats
	}
	c.mu.Unlock()

	if adopted {
		c.publishStats(published)
	}
	logger.Debug("Refreshed from remote", "owner", ownerID, "tasks", len(tasks), "habits", len(habits), "sessions", len(sessions))
	return nil
}

// SyncPending retries every unconfirmed write of ownerID, parents before
// children. It stops early when the remote store is unreachable.
func (c *Coordinator) SyncPending(ctx context.Context, ownerID string) error {
	if c.remote == nil {
		return nil
	}

	steps := []func(context.Context) error{
		func(ctx context.Context) error { return syncKind(ctx, c, taskKind, ownerID) },
		func(ctx context.Context) error { return syncKind(ctx, c, habitKind, ownerID) },
		func(ctx context.Context) error { return syncKind(ctx, c, sessionKind, ownerID) },
		func(ctx context.Context) error { return syncKind(ctx, c, completionKind, ownerID) },
		func(ctx context.Context) error { return syncKind(ctx, c, taskLinkKind, ownerID) },
		func(ctx context.Context) error { return syncKind(ctx, c, habitLinkKind, ownerID) },
		func(ctx context.Context) error { return c.pushStats(ctx, ownerID) },
	}

	var errs []error
	for _, step := range steps {
		stepCtx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
		err := step(stepCtx)
		cancel()
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if apperrors.Classify(err) == apperrors.KindNetworkUnavailable {
			break
		}
	}
	return errors.Join(errs...)
}

// PendingCount returns how many local writes of ownerID the remote store
// has not confirmed yet.
func (c *Coordinator) PendingCount(ownerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(ownerID)

	n := countPending(&st.tasks) + countPending(&st.habits) + countPending(&st.completions) +
		countPending(&st.sessions) + countPending(&st.taskLinks) + countPending(&st.habitLinks)
	if st.statsPending {
		n++
	}
	return n
}

func countPending[T any](col *collection[T]) int {
	n := 0
	for _, e := range col.Items {
		if e.Pending != pendingNone {
			n++
		}
	}
	for _, ts := range col.Tombstones {
		if !ts.Confirmed {
			n++
		}
	}
	return n
}
