// Package daily tracks how many tasks and habits an owner has been rewarded
// for on the current local day. Counters reset lazily when the day changes.
package daily

import (
	"sync"
	"time"

	"github.com/AjCodes/FocusUp-sub000/internal/cache"
	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

type Tracker struct {
	mu    sync.Mutex
	cache cache.Cache
	now   func() time.Time
}

// NewTracker creates a tracker persisting into c. A nil clock uses time.Now.
func NewTracker(c cache.Cache, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{cache: c, now: now}
}

func (t *Tracker) today() string {
	return t.now().Format(constants.DateFormat)
}

// load returns today's counter for owner, starting a fresh one when the
// stored counter belongs to an earlier day. Caller holds t.mu.
func (t *Tracker) load(ownerID string) models.DailyCounter {
	today := t.today()
	var c models.DailyCounter
	found, err := cache.GetJSON(t.cache, cache.Key(constants.CollectionDaily, ownerID), &c)
	if err != nil {
		logger.Warn("Failed to read daily counter, starting fresh", "owner", ownerID, "error", err)
	}
	if !found || err != nil || c.Day != today {
		c = models.DailyCounter{UserID: ownerID, Day: today}
	}
	if c.AttributeCounts == nil {
		c.AttributeCounts = make(map[models.Attribute]int)
	}
	if c.Rewarded == nil {
		c.Rewarded = make(map[string]time.Time)
	}
	return c
}

func (t *Tracker) save(c models.DailyCounter) {
	if err := cache.SetJSON(t.cache, cache.Key(constants.CollectionDaily, c.UserID), c); err != nil {
		logger.Warn("Failed to persist daily counter", "owner", c.UserID, "error", err)
	}
}

// Snapshot returns today's counter.
func (t *Tracker) Snapshot(ownerID string) models.DailyCounter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ownerID)
}

func (t *Tracker) GetTaskCount(ownerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ownerID).TaskCount
}

func (t *Tracker) GetHabitCount(ownerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ownerID).HabitCount
}

// IncrementTask records one more rewarded task today and returns the new count.
func (t *Tracker) IncrementTask(ownerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.load(ownerID)
	c.TaskCount++
	t.save(c)
	return c.TaskCount
}

// IncrementHabit records one more rewarded habit of attr today and returns the new habit count.
func (t *Tracker) IncrementHabit(ownerID string, attr models.Attribute) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.load(ownerID)
	c.HabitCount++
	if attr.IsValid() {
		c.AttributeCounts[attr]++
	}
	t.save(c)
	return c.HabitCount
}

// AllAttributesWorkedToday reports whether every attribute has at least one rewarded habit today.
func (t *Tracker) AllAttributesWorkedToday(ownerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.load(ownerID)
	for _, attr := range models.AllAttributes {
		if c.AttributeCounts[attr] == 0 {
			return false
		}
	}
	return true
}

// MarkRewarded remembers that itemID was rewarded at the current time.
func (t *Tracker) MarkRewarded(ownerID, itemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.load(ownerID)
	c.Rewarded[itemID] = t.now()
	t.save(c)
}

// LastRewarded returns when itemID was rewarded today, if it was.
func (t *Tracker) LastRewarded(ownerID, itemID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.load(ownerID).Rewarded[itemID]
	return at, ok
}

// Grant is one rewarded item. Attribute is empty for tasks.
type Grant struct {
	ItemID    string
	Habit     bool
	Attribute models.Attribute
}

// Record advances today's counters and marks every granted item rewarded,
// in one write.
func (t *Tracker) Record(ownerID string, grants []Grant) {
	if len(grants) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.load(ownerID)
	now := t.now()
	for _, g := range grants {
		if g.Habit {
			c.HabitCount++
			if g.Attribute.IsValid() {
				c.AttributeCounts[g.Attribute]++
			}
		} else {
			c.TaskCount++
		}
		c.Rewarded[g.ItemID] = now
	}
	t.save(c)
}

// Revoke undoes a Record whose reward was never applied.
func (t *Tracker) Revoke(ownerID string, grants []Grant) {
	if len(grants) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.load(ownerID)
	for _, g := range grants {
		if g.Habit {
			c.HabitCount = max(c.HabitCount-1, 0)
			if c.AttributeCounts[g.Attribute] > 0 {
				c.AttributeCounts[g.Attribute]--
			}
		} else {
			c.TaskCount = max(c.TaskCount-1, 0)
		}
		delete(c.Rewarded, g.ItemID)
	}
	t.save(c)
}

// Rekey moves the rewarded mark of oldID to newID. The later mark wins when
// both exist.
func (t *Tracker) Rekey(ownerID, oldID, newID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.load(ownerID)
	if rekeyMark(c.Rewarded, oldID, newID) {
		t.save(c)
	}
}

// Resolve rekeys every rewarded mark whose id resolve maps elsewhere, so
// marks follow records that were given a new id.
func (t *Tracker) Resolve(ownerID string, resolve func(id string) string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.load(ownerID)
	changed := false
	for id := range c.Rewarded {
		if to := resolve(id); to != "" && to != id {
			changed = rekeyMark(c.Rewarded, id, to) || changed
		}
	}
	if changed {
		t.save(c)
	}
}

func rekeyMark(marks map[string]time.Time, oldID, newID string) bool {
	at, ok := marks[oldID]
	if !ok || oldID == newID {
		return false
	}
	delete(marks, oldID)
	if prev, exists := marks[newID]; !exists || at.After(prev) {
		marks[newID] = at
	}
	return true
}

// ForgetRewarded drops itemID from today's rewarded set.
func (t *Tracker) ForgetRewarded(ownerID, itemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.load(ownerID)
	if _, ok := c.Rewarded[itemID]; !ok {
		return
	}
	delete(c.Rewarded, itemID)
	t.save(c)
}

// Reassign moves today's counter from one owner to another, summing counts.
func (t *Tracker) Reassign(fromID, toID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	from := t.load(fromID)
	to := t.load(toID)

	to.TaskCount += from.TaskCount
	to.HabitCount += from.HabitCount
	for attr, n := range from.AttributeCounts {
		to.AttributeCounts[attr] += n
	}
	for id, at := range from.Rewarded {
		if prev, ok := to.Rewarded[id]; !ok || at.After(prev) {
			to.Rewarded[id] = at
		}
	}

	if err := cache.SetJSON(t.cache, cache.Key(constants.CollectionDaily, toID), to); err != nil {
		return err
	}
	return t.cache.Remove(cache.Key(constants.CollectionDaily, fromID))
}
