// Package syncer keeps the local cache and the remote store in step.
//
// Every mutation is applied to memory and written through to the cache
// before any remote call is made, so reads always see the caller's own
// writes. Remote writes that fail leave the record pending; RefreshAll and
// SyncPending retry them and merge the authoritative remote state back in.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/AjCodes/FocusUp-sub000/internal/cache"
	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
	"github.com/AjCodes/FocusUp-sub000/internal/observable"
	"github.com/AjCodes/FocusUp-sub000/internal/remote"
	"github.com/AjCodes/FocusUp-sub000/internal/validation"
)

type Options struct {
	// Cache receives every snapshot. Nil uses an in-memory cache.
	Cache cache.Cache
	// Remote is the source of truth. Nil runs cache-only.
	Remote remote.Store
	// RefreshDelay is how long after a mutation RefreshAll runs. Zero disables it.
	RefreshDelay time.Duration
	// RemoteTimeout bounds every remote call. Zero uses the default.
	RemoteTimeout time.Duration
	// Now is the clock. Nil uses time.Now.
	Now func() time.Time
}

// ownerState is everything the coordinator holds for one owner.
type ownerState struct {
	tasks       collection[models.Task]
	habits      collection[models.Habit]
	completions collection[models.HabitCompletion]
	sessions    collection[models.FocusSession]
	taskLinks   collection[models.SessionTaskLink]
	habitLinks  collection[models.SessionHabitLink]

	stats         *models.UserStats
	statsPending  bool
	statsVersion  int
	statsAck      uint64
	statsInflight bool

	// completing holds sessions between BeginCompletion and commit. Never persisted.
	completing map[string]bool
	// aliases maps replaced placeholder ids to their remote ids.
	aliases map[string]string
}

func newOwnerState() *ownerState {
	return &ownerState{
		completing: make(map[string]bool),
		aliases:    make(map[string]string),
	}
}

// progressSnapshot is stored as one cache value so a session completion
// lands atomically with its links and stats.
type progressSnapshot struct {
	Sessions     collection[models.FocusSession]     `json:"sessions"`
	TaskLinks    collection[models.SessionTaskLink]  `json:"task_links"`
	HabitLinks   collection[models.SessionHabitLink] `json:"habit_links"`
	Stats        *models.UserStats                   `json:"stats,omitempty"`
	StatsPending bool                                `json:"stats_pending,omitempty"`
	Aliases      map[string]string                   `json:"aliases,omitempty"`
}

type Coordinator struct {
	opts   Options
	cache  cache.Cache
	remote remote.Store
	now    func() time.Time

	validator *validation.Validator

	mu     sync.Mutex
	owners map[string]*ownerState
	seq    uint64

	wg       sync.WaitGroup
	timerMu  sync.Mutex
	timers   map[string]*time.Timer
	closed   bool
	statsObs *observable.Store[models.UserStats]
}

func New(opts Options) *Coordinator {
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryCache()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = constants.DefaultRemoteTimeout
	}
	return &Coordinator{
		opts:      opts,
		cache:     opts.Cache,
		remote:    opts.Remote,
		now:       opts.Now,
		validator: validation.New(),
		owners:    make(map[string]*ownerState),
		seq:       1,
		timers:    make(map[string]*time.Timer),
		statsObs:  observable.New(models.UserStats{}),
	}
}

// Online reports whether a remote store is configured.
func (c *Coordinator) Online() bool {
	return c.remote != nil
}

func (c *Coordinator) nextSeq() uint64 {
	c.seq++
	return c.seq
}

// state returns the loaded state for owner, reading it from the cache on
// first use. Caller holds c.mu.
func (c *Coordinator) state(ownerID string) *ownerState {
	if st, ok := c.owners[ownerID]; ok {
		return st
	}

	st := newOwnerState()
	load := func(collection string, v any) {
		if _, err := cache.GetJSON(c.cache, cache.Key(collection, ownerID), v); err != nil {
			logger.Warn("Failed to load cached snapshot, starting empty", "collection", collection, "owner", ownerID, "error", err)
		}
	}
	load(constants.CollectionTasks, &st.tasks)
	load(constants.CollectionHabits, &st.habits)
	load(constants.CollectionCompletions, &st.completions)

	var progress progressSnapshot
	load(constants.CollectionProgress, &progress)
	st.sessions = progress.Sessions
	st.taskLinks = progress.TaskLinks
	st.habitLinks = progress.HabitLinks
	st.stats = progress.Stats
	st.statsPending = progress.StatsPending
	for k, v := range progress.Aliases {
		st.aliases[k] = v
	}

	c.owners[ownerID] = st
	return st
}

// persist writes one snapshot through to the cache. Failures are logged and
// the in-memory state stands. Caller holds c.mu.
func (c *Coordinator) persist(ownerID string, st *ownerState, snapshot string) {
	var v any
	switch snapshot {
	case constants.CollectionTasks:
		v = &st.tasks
	case constants.CollectionHabits:
		v = &st.habits
	case constants.CollectionCompletions:
		v = &st.completions
	case constants.CollectionProgress:
		v = progressSnapshot{
			Sessions:     st.sessions,
			TaskLinks:    st.taskLinks,
			HabitLinks:   st.habitLinks,
			Stats:        st.stats,
			StatsPending: st.statsPending,
			Aliases:      st.aliases,
		}
	default:
		logger.Error("Unknown snapshot", "snapshot", snapshot)
		return
	}
	if err := cache.SetJSON(c.cache, cache.Key(snapshot, ownerID), v); err != nil {
		logger.Warn("Failed to write cache snapshot", "snapshot", snapshot, "owner", ownerID, "error", err)
	}
}

func (c *Coordinator) persistAll(ownerID string, st *ownerState) {
	for _, s := range []string{
		constants.CollectionTasks,
		constants.CollectionHabits,
		constants.CollectionCompletions,
		constants.CollectionProgress,
	} {
		c.persist(ownerID, st, s)
	}
}

// background runs fn against the remote store without blocking the caller.
func (c *Coordinator) background(fn func(ctx context.Context)) {
	if c.remote == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RemoteTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// scheduleRefresh (re)arms the debounced RefreshAll for owner.
func (c *Coordinator) scheduleRefresh(ownerID string) {
	if c.remote == nil || c.opts.RefreshDelay <= 0 {
		return
	}

	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.closed {
		return
	}
	if t, ok := c.timers[ownerID]; ok && t.Stop() {
		// The stopped timer will never run, release its slot
		c.wg.Done()
	}
	c.wg.Add(1)
	c.timers[ownerID] = time.AfterFunc(c.opts.RefreshDelay, func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*c.opts.RemoteTimeout)
		defer cancel()
		if err := c.RefreshAll(ctx, ownerID); err != nil {
			logger.Debug("Scheduled refresh failed", "owner", ownerID, "error", err)
		}
	})
}

// Wait blocks until background remote work and fired refreshes finish.
// Armed but unfired refresh timers are waited for too.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels pending refreshes and waits for in-flight work.
func (c *Coordinator) Close() {
	c.timerMu.Lock()
	c.closed = true
	for owner, t := range c.timers {
		if t.Stop() {
			c.wg.Done()
		}
		delete(c.timers, owner)
	}
	c.timerMu.Unlock()
	c.wg.Wait()
}

// ResolveID maps a replaced placeholder id to the record's current id.
func (c *Coordinator) ResolveID(ownerID, id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return resolve(c.state(ownerID), id)
}

func resolve(st *ownerState, id string) string {
	for i := 0; i < 8; i++ {
		next, ok := st.aliases[id]
		if !ok {
			break
		}
		id = next
	}
	return id
}
