package syncer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/AjCodes/FocusUp-sub000/internal/cache"
	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
	"github.com/AjCodes/FocusUp-sub000/internal/testutil"
)

const owner = "guest-test"

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)

func newTestCoordinator(t *testing.T, r *testutil.Remote, c cache.Cache) (*Coordinator, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(start)
	opts := Options{Cache: c, Now: clock.Now}
	if r != nil {
		opts.Remote = r
	}
	coord := New(opts)
	t.Cleanup(coord.Close)
	return coord, clock
}

func titles(tasks []models.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	sort.Strings(out)
	return out
}

func TestCreateTaskIsVisibleAndCachedOffline(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	r := testutil.NewRemote()
	r.SetOffline(true)
	c, _ := newTestCoordinator(t, r, mem)

	task, err := c.CreateTask(ctx, owner, models.TaskFields{Title: "  Write report "})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Title != "Write report" || task.Priority != models.PriorityMedium || task.UserID != owner {
		t.Errorf("unexpected task %+v", task)
	}
	if got := c.ListTasks(owner); len(got) != 1 || got[0].ID != task.ID {
		t.Fatalf("task not visible: %+v", got)
	}
	c.Wait()
	if n := c.PendingCount(owner); n != 1 {
		t.Errorf("PendingCount = %d, want 1", n)
	}

	// A fresh coordinator over the same cache sees the pending task
	reloaded, _ := newTestCoordinator(t, nil, mem)
	if got := reloaded.ListTasks(owner); len(got) != 1 || got[0].ID != task.ID {
		t.Fatalf("task not cached: %+v", got)
	}
	if n := reloaded.PendingCount(owner); n != 1 {
		t.Errorf("reloaded PendingCount = %d, want 1", n)
	}

	r.SetOffline(false)
	if err := c.SyncPending(ctx, owner); err != nil {
		t.Fatalf("SyncPending failed: %v", err)
	}
	if n := c.PendingCount(owner); n != 0 {
		t.Errorf("PendingCount after sync = %d, want 0", n)
	}
	if rows := r.TaskRows(); len(rows) != 1 || rows[0].ID != task.ID {
		t.Errorf("remote rows = %+v", rows)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	c, _ := newTestCoordinator(t, nil, nil)
	if _, err := c.CreateTask(context.Background(), owner, models.TaskFields{Title: " "}); err == nil {
		t.Fatal("expected validation error")
	}
	if got := c.ListTasks(owner); len(got) != 0 {
		t.Errorf("invalid task was stored: %+v", got)
	}
}

func TestRemoteIDIsAdoptedInPlace(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	r.SetRemapIDs(true)
	c, _ := newTestCoordinator(t, r, nil)

	task, err := c.CreateTask(ctx, owner, models.TaskFields{Title: "Plan week"})
	if err != nil {
		t.Fatal(err)
	}
	c.Wait()

	got := c.ListTasks(owner)
	if len(got) != 1 {
		t.Fatalf("expected one task, got %+v", got)
	}
	if !strings.HasPrefix(got[0].ID, "srv-") {
		t.Errorf("task not re-keyed to remote id: %s", got[0].ID)
	}
	if c.ResolveID(owner, task.ID) != got[0].ID {
		t.Errorf("placeholder id does not resolve to %s", got[0].ID)
	}
	if _, ok := c.GetTask(owner, task.ID); !ok {
		t.Error("lookup by placeholder id failed")
	}

	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	if got := c.ListTasks(owner); len(got) != 1 {
		t.Errorf("refresh duplicated the task: %+v", got)
	}
	if rows := r.TaskRows(); len(rows) != 1 {
		t.Errorf("remote rows = %d, want 1", len(rows))
	}
}

func TestRefreshAdoptsPlaceholderByNaturalKey(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	r.SetOffline(true)
	c, clock := newTestCoordinator(t, r, nil)

	task, err := c.CreateTask(ctx, owner, models.TaskFields{Title: "Call bank"})
	if err != nil {
		t.Fatal(err)
	}
	c.Wait()

	// The insert reached the remote store but the acknowledgement was lost
	landed := task
	landed.ID = "srv-landed"
	r.PutTask(landed)
	clock.Advance(time.Minute)
	r.SetOffline(false)

	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	got := c.ListTasks(owner)
	if len(got) != 1 || got[0].ID != "srv-landed" {
		t.Fatalf("placeholder not adopted: %+v", got)
	}
	if rows := r.TaskRows(); len(rows) != 1 {
		t.Errorf("remote rows = %d, want 1", len(rows))
	}
	if n := c.PendingCount(owner); n != 0 {
		t.Errorf("PendingCount = %d, want 0", n)
	}
}

func TestRefreshDoesNotAdoptOutsideWindow(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	r.SetOffline(true)
	c, _ := newTestCoordinator(t, r, nil)

	task, _ := c.CreateTask(ctx, owner, models.TaskFields{Title: "Stretch"})
	c.Wait()

	other := task
	other.ID = "srv-old"
	other.CreatedAt = task.CreatedAt.Add(-constants.NaturalKeyWindow - time.Second)
	r.PutTask(other)
	r.SetOffline(false)

	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if got := c.ListTasks(owner); len(got) != 2 {
		t.Errorf("expected both tasks, got %+v", got)
	}
}

func TestUpdateOfflineKeepsOptimisticValue(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	c, _ := newTestCoordinator(t, r, nil)

	task, _ := c.CreateTask(ctx, owner, models.TaskFields{Title: "Draft"})
	c.Wait()

	r.SetOffline(true)
	title := "Final"
	done := true
	err := c.UpdateTask(ctx, task.ID, models.TaskPatch{Title: &title, Done: &done}, owner)
	if !errors.Is(err, apperrors.ErrNetworkUnavailable) || !apperrors.IsRecoverable(err) {
		t.Fatalf("expected recoverable network error, got %v", err)
	}
	got, _ := c.GetTask(owner, task.ID)
	if got.Title != "Final" || !got.Done || got.CompletedAt == nil {
		t.Errorf("optimistic value lost: %+v", got)
	}

	r.SetOffline(false)
	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	got, _ = c.GetTask(owner, task.ID)
	if got.Title != "Final" {
		t.Errorf("refresh reverted pending update: %+v", got)
	}
	if rows := r.TaskRows(); len(rows) != 1 || rows[0].Title != "Final" {
		t.Errorf("pending update not pushed: %+v", rows)
	}
}

func TestUpdateUnknownTask(t *testing.T) {
	c, _ := newTestCoordinator(t, nil, nil)
	title := "x"
	err := c.UpdateTask(context.Background(), "missing", models.TaskPatch{Title: &title}, owner)
	if !errors.Is(err, ErrNoSuchRecord) {
		t.Errorf("expected ErrNoSuchRecord, got %v", err)
	}
}

func TestDeleteIsNeverResurrected(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	c, _ := newTestCoordinator(t, r, nil)

	task, _ := c.CreateTask(ctx, owner, models.TaskFields{Title: "Old"})
	c.Wait()

	r.SetOffline(true)
	if err := c.DeleteTask(ctx, task.ID, owner); !apperrors.IsRecoverable(err) {
		t.Fatalf("expected recoverable error, got %v", err)
	}
	if got := c.ListTasks(owner); len(got) != 0 {
		t.Fatalf("task still listed: %+v", got)
	}

	r.SetOffline(false)
	for i := 0; i < 2; i++ {
		if err := c.RefreshAll(ctx, owner); err != nil {
			t.Fatalf("RefreshAll %d failed: %v", i, err)
		}
		if got := c.ListTasks(owner); len(got) != 0 {
			t.Fatalf("refresh %d resurrected the task: %+v", i, got)
		}
	}
	if rows := r.TaskRows(); len(rows) != 0 {
		t.Errorf("remote delete not retried: %+v", rows)
	}
	if n := c.PendingCount(owner); n != 0 {
		t.Errorf("PendingCount = %d, want 0", n)
	}
}

func TestDeletedElsewhereIsDropped(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	c, _ := newTestCoordinator(t, r, nil)

	task, _ := c.CreateTask(ctx, owner, models.TaskFields{Title: "Shared"})
	c.Wait()
	r.RemoveTask(task.ID)

	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if got := c.ListTasks(owner); len(got) != 0 {
		t.Errorf("task deleted remotely still listed: %+v", got)
	}
}

// waitHeld blocks until n inserts are waiting on a hold.
func waitHeld(t *testing.T, r *testutil.Remote, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Held() < n {
		if time.Now().After(deadline) {
			t.Fatalf("held inserts = %d, want %d", r.Held(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLateInsertForDeletedTaskIsCleanedUp(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	r.SetRemapIDs(true)
	c, _ := newTestCoordinator(t, r, nil)

	release := r.HoldInserts()
	task, _ := c.CreateTask(ctx, owner, models.TaskFields{Title: "Oops"})
	waitHeld(t, r, 1)

	if err := c.DeleteTask(ctx, task.ID, owner); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	release()
	c.Wait()

	if rows := r.TaskRows(); len(rows) != 0 {
		t.Errorf("stray remote row left behind: %+v", rows)
	}
	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if got := c.ListTasks(owner); len(got) != 0 {
		t.Errorf("deleted task came back: %+v", got)
	}
	if n := c.PendingCount(owner); n != 0 {
		t.Errorf("PendingCount = %d, want 0", n)
	}
}

func TestRefreshDuringSlowAcksKeepsSameTitleTasks(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	r.SetRemapIDs(true)
	c, _ := newTestCoordinator(t, r, nil)

	release := r.HoldInsertAcks()
	first, _ := c.CreateTask(ctx, owner, models.TaskFields{Title: "Read"})
	second, _ := c.CreateTask(ctx, owner, models.TaskFields{Title: "Read"})
	waitHeld(t, r, 2)

	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	if got := c.ListTasks(owner); len(got) != 2 {
		t.Errorf("after refresh local = %d tasks, want 2: %+v", len(got), got)
	}
	release()
	c.Wait()

	check := func(stage string) {
		t.Helper()
		local := c.ListTasks(owner)
		if len(local) != 2 {
			t.Fatalf("%s: local = %d tasks, want 2: %+v", stage, len(local), local)
		}
		if local[0].ID == local[1].ID {
			t.Errorf("%s: both tasks share id %s", stage, local[0].ID)
		}
		if rows := r.TaskRows(); len(rows) != 2 {
			t.Errorf("%s: remote rows = %d, want 2", stage, len(rows))
		}
	}
	check("after acks")

	a, b := c.ResolveID(owner, first.ID), c.ResolveID(owner, second.ID)
	if a == b || !strings.HasPrefix(a, "srv-") || !strings.HasPrefix(b, "srv-") {
		t.Errorf("placeholders resolve to %q and %q", a, b)
	}

	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatal(err)
	}
	c.Wait()
	check("after second refresh")
	if n := c.PendingCount(owner); n != 0 {
		t.Errorf("PendingCount = %d, want 0", n)
	}
}

func TestLateAckForFetchedRowKeepsOneRecord(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	r.SetRemapIDs(true)
	c, _ := newTestCoordinator(t, r, nil)

	release := r.HoldInsertAcks()
	task, _ := c.CreateTask(ctx, owner, models.TaskFields{Title: "Draft"})
	waitHeld(t, r, 1)

	// The rename breaks the natural key, so the refresh lists the row as its own record
	title := "Final"
	if err := c.UpdateTask(ctx, task.ID, models.TaskPatch{Title: &title}, owner); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	release()
	c.Wait()

	local := c.ListTasks(owner)
	if len(local) != 1 || local[0].Title != "Final" {
		t.Fatalf("local = %+v, want one task titled Final", local)
	}
	if c.ResolveID(owner, task.ID) != local[0].ID {
		t.Errorf("placeholder resolves to %s, want %s", c.ResolveID(owner, task.ID), local[0].ID)
	}
	rows := r.TaskRows()
	if len(rows) != 1 || rows[0].Title != "Final" {
		t.Errorf("remote rows = %+v, want one task titled Final", rows)
	}
}

func TestRandomizedInterleavingsConverge(t *testing.T) {
	high := models.PriorityHigh
	for seed := int64(1); seed <= 24; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			ctx := context.Background()
			rng := rand.New(rand.NewSource(seed))
			r := testutil.NewRemote()
			r.SetRemapIDs(seed%2 == 0)
			c, _ := newTestCoordinator(t, r, nil)

			// alive maps a label to the task's placeholder id; titles repeat
			alive := make(map[string]string)
			titleOf := make(map[string]string)
			next := 0
			pick := func() (string, string, bool) {
				if len(alive) == 0 {
					return "", "", false
				}
				keys := make([]string, 0, len(alive))
				for k := range alive {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				k := keys[rng.Intn(len(keys))]
				return k, alive[k], true
			}
			add := func(title string) string {
				label := fmt.Sprintf("t%03d", next)
				next++
				task, err := c.CreateTask(ctx, owner, models.TaskFields{Title: title})
				if err != nil {
					t.Fatal(err)
				}
				alive[label] = task.ID
				titleOf[label] = title
				return label
			}

			for step := 0; step < 80; step++ {
				switch op := rng.Intn(12); {
				case op < 3:
					title := fmt.Sprintf("task-%03d", next)
					if rng.Intn(3) == 0 {
						title = "Read"
					}
					add(title)
				case op < 5:
					if _, id, ok := pick(); ok {
						_ = c.UpdateTask(ctx, id, models.TaskPatch{Priority: &high}, owner)
					}
				case op < 7:
					if label, id, ok := pick(); ok {
						_ = c.DeleteTask(ctx, id, owner)
						delete(alive, label)
					}
				case op < 8:
					_ = c.RefreshAll(ctx, owner)
				case op < 9:
					r.SetOffline(rng.Intn(2) == 0)
				case op < 10:
					c.Wait()
				default:
					// Same-title creates whose rows land before their acks,
					// with a refresh in between
					r.SetOffline(false)
					c.Wait()
					_ = c.SyncPending(ctx, owner)
					release := r.HoldInsertAcks()
					before := r.Held()
					n := 1 + rng.Intn(2)
					var labels []string
					for i := 0; i < n; i++ {
						labels = append(labels, add("Read"))
					}
					waitHeld(t, r, before+n)
					if rng.Intn(3) == 0 {
						_ = c.DeleteTask(ctx, alive[labels[0]], owner)
						delete(alive, labels[0])
					}
					_ = c.RefreshAll(ctx, owner)
					release()
					c.Wait()
				}
			}

			c.Wait()
			r.SetOffline(false)
			for i := 0; i < 2; i++ {
				if err := c.RefreshAll(ctx, owner); err != nil {
					t.Fatalf("final RefreshAll failed: %v", err)
				}
				c.Wait()
			}

			want := make([]string, 0, len(alive))
			for label := range alive {
				want = append(want, titleOf[label])
			}
			sort.Strings(want)

			local := c.ListTasks(owner)
			ids := make(map[string]bool)
			for _, task := range local {
				if ids[task.ID] {
					t.Errorf("duplicate id %s", task.ID)
				}
				ids[task.ID] = true
			}
			for label, id := range alive {
				if !ids[c.ResolveID(owner, id)] {
					t.Errorf("task %s (%s) lost", label, titleOf[label])
				}
			}
			if got := titles(local); strings.Join(got, ",") != strings.Join(want, ",") {
				t.Errorf("local titles = %v, want %v", got, want)
			}
			if got := titles(r.TaskRows()); strings.Join(got, ",") != strings.Join(want, ",") {
				t.Errorf("remote titles = %v, want %v", got, want)
			}
			if n := c.PendingCount(owner); n != 0 {
				t.Errorf("PendingCount = %d, want 0", n)
			}
		})
	}
}

func TestMergeKeepsRecordAcknowledgedAfterFetchStarted(t *testing.T) {
	st := newOwnerState()
	st.tasks.Items = []*entry[models.Task]{
		{Record: models.Task{ID: "a", Title: "newer"}, ackSeq: 10},
		{Record: models.Task{ID: "b", Title: "local"}, ackSeq: 2},
	}
	rows := []models.Task{{ID: "a", Title: "stale"}, {ID: "b", Title: "remote"}}

	merge(taskKind, st, rows, 5)

	got := map[string]string{}
	for _, e := range st.tasks.Items {
		got[e.Record.ID] = e.Record.Title
	}
	if got["a"] != "newer" {
		t.Errorf("stale fetch reverted a later write: %q", got["a"])
	}
	if got["b"] != "remote" {
		t.Errorf("remote did not win for an older record: %q", got["b"])
	}
}

func TestMergeKeepsOneCompletionPerHabitDay(t *testing.T) {
	rows := []models.HabitCompletion{
		{ID: "c-a", HabitID: "h1", UserID: owner, CompletedAt: start},
		{ID: "c-b", HabitID: "h1", UserID: owner, CompletedAt: start.Add(time.Hour)},
		{ID: "c-next", HabitID: "h1", UserID: owner, CompletedAt: start.Add(24 * time.Hour)},
	}
	tests := []struct {
		name  string
		local []string
		want  []string
	}{
		{name: "first listed wins", want: []string{"c-a", "c-next"}},
		{name: "local copy wins", local: []string{"c-b"}, want: []string{"c-b", "c-next"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newOwnerState()
			for _, id := range tt.local {
				for _, r := range rows {
					if r.ID == id {
						st.completions.Items = append(st.completions.Items, &entry[models.HabitCompletion]{Record: r})
					}
				}
			}

			merge(completionKind, st, rows, 5)

			var got []string
			for _, e := range st.completions.Items {
				got = append(got, e.Record.ID)
			}
			sort.Strings(got)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("completions = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHabitCompletionToggleTwiceRestoresState(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	c, clock := newTestCoordinator(t, r, nil)

	habit, err := c.CreateHabit(ctx, owner, models.HabitFields{Title: "Read", Attribute: models.AttributeCognitive})
	if err != nil {
		t.Fatal(err)
	}
	day := clock.Now().Format(constants.DateFormat)

	done, err := c.ToggleHabitCompletion(ctx, owner, habit.ID, clock.Now())
	if err != nil || !done {
		t.Fatalf("first toggle = %v, %v", done, err)
	}
	if !c.IsHabitCompletedOn(owner, habit.ID, day) {
		t.Error("habit not completed after first toggle")
	}

	clock.Advance(time.Hour)
	done, err = c.ToggleHabitCompletion(ctx, owner, habit.ID, clock.Now())
	if err != nil || done {
		t.Fatalf("second toggle = %v, %v", done, err)
	}
	if got := c.CompletionsOn(owner, day); len(got) != 0 {
		t.Errorf("completions left after toggling twice: %+v", got)
	}

	c.Wait()
	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if got := c.Completions(owner); len(got) != 0 {
		t.Errorf("refresh brought a completion back: %+v", got)
	}
	if rows := r.CompletionRows(); len(rows) != 0 {
		t.Errorf("remote completions = %+v", rows)
	}
}

func TestCompletionInsertMatchingDeletedRowIsRetried(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	r.SetUniqueCompletionDays(true)
	c, clock := newTestCoordinator(t, r, nil)

	habit, err := c.CreateHabit(ctx, owner, models.HabitFields{Title: "Walk", Attribute: models.AttributePhysical})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ToggleHabitCompletion(ctx, owner, habit.ID, clock.Now()); err != nil {
		t.Fatal(err)
	}
	c.Wait()
	first := c.Completions(owner)[0].ID

	// Undo and redo while offline: the old row is still stored remotely
	r.SetOffline(true)
	for i := 0; i < 2; i++ {
		if _, err := c.ToggleHabitCompletion(ctx, owner, habit.ID, clock.Now()); err != nil {
			t.Fatal(err)
		}
	}
	c.Wait()
	r.SetOffline(false)
	second := c.Completions(owner)[0].ID

	// The store answers the insert with the row that is about to be deleted
	if err := pushCreate(ctx, c, completionKind, owner, second); err != nil {
		t.Fatalf("pushCreate failed: %v", err)
	}
	if got := c.Completions(owner); len(got) != 1 || got[0].ID != second {
		t.Fatalf("completion adopted the deleted row: %+v", got)
	}

	if err := c.SyncPending(ctx, owner); err != nil {
		t.Fatalf("SyncPending failed: %v", err)
	}
	rows := r.CompletionRows()
	if len(rows) != 1 || rows[0].ID == first {
		t.Errorf("remote completions = %+v, want one new row", rows)
	}
	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if !c.IsHabitCompletedOn(owner, habit.ID, clock.Now().Format(constants.DateFormat)) {
		t.Error("redone completion was lost")
	}
	if n := c.PendingCount(owner); n != 0 {
		t.Errorf("PendingCount = %d, want 0", n)
	}
}

func TestHabitCompletionIsPerDay(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCoordinator(t, nil, nil)
	habit, _ := c.CreateHabit(ctx, owner, models.HabitFields{Title: "Walk", Attribute: models.AttributePhysical})

	if done, _ := c.ToggleHabitCompletion(ctx, owner, habit.ID, clock.Now()); !done {
		t.Fatal("expected completion")
	}
	clock.Advance(24 * time.Hour)
	if done, _ := c.ToggleHabitCompletion(ctx, owner, habit.ID, clock.Now()); !done {
		t.Fatal("next day toggle should complete again")
	}
	if got := c.Completions(owner); len(got) != 2 {
		t.Errorf("expected one completion per day, got %+v", got)
	}

	if _, err := c.ToggleHabitCompletion(ctx, owner, "missing", clock.Now()); !errors.Is(err, ErrNoSuchRecord) {
		t.Errorf("expected ErrNoSuchRecord, got %v", err)
	}
}

func TestDeleteHabitRemovesCompletions(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCoordinator(t, nil, nil)
	habit, _ := c.CreateHabit(ctx, owner, models.HabitFields{Title: "Pray", Attribute: models.AttributeSoul})
	_, _ = c.ToggleHabitCompletion(ctx, owner, habit.ID, clock.Now())

	if err := c.DeleteHabit(ctx, habit.ID, owner); err != nil {
		t.Fatal(err)
	}
	if len(c.ListHabits(owner)) != 0 || len(c.Completions(owner)) != 0 {
		t.Error("habit or completions left behind")
	}
}

func newActiveSession(t *testing.T, c *Coordinator, clock *testutil.Clock) models.FocusSession {
	t.Helper()
	ctx := context.Background()
	s, err := c.CreateSession(ctx, owner, clock.Now(), 25*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	// Offline starts report a recoverable error and still apply locally
	if err := c.StartSession(ctx, owner, s.ID); err != nil && !apperrors.IsRecoverable(err) {
		t.Fatal(err)
	}
	return s
}

func TestSessionStateMachine(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	c, clock := newTestCoordinator(t, nil, mem)

	s, _ := c.CreateSession(ctx, owner, clock.Now(), 25*time.Minute)
	if _, err := c.BeginCompletion(owner, s.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("completing a scheduled session: %v", err)
	}
	if err := c.StartSession(ctx, owner, s.ID); err != nil {
		t.Fatal(err)
	}
	if err := c.StartSession(ctx, owner, s.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("starting twice: %v", err)
	}

	if _, err := c.BeginCompletion(owner, s.ID); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.GetSession(owner, s.ID); got.State != models.SessionCompleting {
		t.Errorf("state = %s, want completing", got.State)
	}
	if _, err := c.BeginCompletion(owner, s.ID); !errors.Is(err, ErrCompletionInProgress) {
		t.Errorf("second BeginCompletion: %v", err)
	}

	// Completing is never persisted; a restart finds the session active
	reloaded, _ := newTestCoordinator(t, nil, mem)
	if got, _ := reloaded.GetSession(owner, s.ID); got.State != models.SessionActive {
		t.Errorf("reloaded state = %s, want active", got.State)
	}

	c.AbortCompletion(owner, s.ID)
	if got, _ := c.GetSession(owner, s.ID); got.State != models.SessionActive {
		t.Errorf("state after abort = %s, want active", got.State)
	}
}

func TestLinksAreDeduplicated(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCoordinator(t, nil, nil)
	s := newActiveSession(t, c, clock)
	task, _ := c.CreateTask(ctx, owner, models.TaskFields{Title: "A"})

	l1, err := c.LinkTask(ctx, owner, s.ID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	l2, _ := c.LinkTask(ctx, owner, s.ID, task.ID)
	if l1.ID != l2.ID {
		t.Error("linking twice created a second link")
	}
	if _, err := c.LinkTask(ctx, owner, s.ID, "missing"); !errors.Is(err, ErrNoSuchRecord) {
		t.Errorf("linking unknown task: %v", err)
	}
	tasks, habits := c.SessionLinks(owner, s.ID)
	if len(tasks) != 1 || len(habits) != 0 {
		t.Errorf("links = %d tasks, %d habits", len(tasks), len(habits))
	}
}

func TestCommitSessionCompletionIsAtomicAndIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	r := testutil.NewRemote()
	c, clock := newTestCoordinator(t, r, mem)

	s := newActiveSession(t, c, clock)
	task, _ := c.CreateTask(ctx, owner, models.TaskFields{Title: "A"})
	habit, _ := c.CreateHabit(ctx, owner, models.HabitFields{Title: "Read", Attribute: models.AttributeCognitive})
	_, _ = c.LinkTask(ctx, owner, s.ID, task.ID)
	_, _ = c.LinkHabit(ctx, owner, s.ID, habit.ID)

	if _, err := c.BeginCompletion(owner, s.ID); err != nil {
		t.Fatal(err)
	}
	comp := Completion{
		SessionID:         s.ID,
		At:                clock.Now(),
		ActualSeconds:     1500,
		CompletedTaskIDs:  []string{task.ID},
		PerformedHabitIDs: []string{habit.ID},
		Coins:             12,
		XP:                models.AttributeXP{CO: 9},
		Delta:             models.StatsDelta{Coins: 12, XP: models.AttributeXP{CO: 9}, FocusSeconds: 1500, Sessions: 1, Sprints: 1, ActiveDay: "2026-03-02"},
	}
	done, applied, err := c.CommitSessionCompletion(ctx, owner, comp)
	if err != nil || !applied {
		t.Fatalf("commit = %v, %v", applied, err)
	}
	if done.State != models.SessionCompleted || done.RewardCoins != 12 || done.RewardXP.CO != 9 {
		t.Errorf("unexpected session %+v", done)
	}

	again, applied, err := c.CommitSessionCompletion(ctx, owner, comp)
	if err != nil || applied {
		t.Fatalf("second commit = %v, %v", applied, err)
	}
	if again.RewardCoins != 12 {
		t.Errorf("recorded reward changed: %+v", again)
	}
	stats := c.GetStats(owner)
	if stats.Coins != 12 || stats.XP.CO != 9 || stats.SessionCount != 1 || stats.CurrentStreak != 1 {
		t.Errorf("stats double counted or missing: %+v", stats)
	}

	tasks, habits := c.SessionLinks(owner, s.ID)
	if len(tasks) != 1 || !tasks[0].Completed || len(habits) != 1 || !habits[0].Performed {
		t.Errorf("link flags not set: %+v %+v", tasks, habits)
	}
	// Session flags are independent of the task's own done flag
	if got, _ := c.GetTask(owner, task.ID); got.Done {
		t.Error("session completion must not mark the task done")
	}

	reloaded, _ := newTestCoordinator(t, nil, mem)
	if got, _ := reloaded.GetSession(owner, s.ID); got.State != models.SessionCompleted {
		t.Errorf("reloaded session state = %s", got.State)
	}
	if got := reloaded.GetStats(owner); got.Coins != 12 {
		t.Errorf("reloaded stats = %+v", got)
	}

	c.Wait()
	if row, ok := r.StatsRow(owner); !ok || row.Coins != 12 {
		t.Errorf("remote stats = %+v, %v", row, ok)
	}
	if rows := r.SessionTaskRows(); len(rows) != 1 || !rows[0].Completed {
		t.Errorf("remote session tasks = %+v", rows)
	}
}

func TestOfflineLinksFollowRemoteIDs(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	r.SetOffline(true)
	c, clock := newTestCoordinator(t, r, nil)

	s := newActiveSession(t, c, clock)
	task, _ := c.CreateTask(ctx, owner, models.TaskFields{Title: "A"})
	if _, err := c.LinkTask(ctx, owner, s.ID, task.ID); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	r.SetOffline(false)
	r.SetRemapIDs(true)
	if err := c.SyncPending(ctx, owner); err != nil {
		t.Fatalf("SyncPending failed: %v", err)
	}

	newTask := c.ResolveID(owner, task.ID)
	newSession := c.ResolveID(owner, s.ID)
	if newTask == task.ID || newSession == s.ID {
		t.Fatal("records were not re-keyed")
	}
	rows := r.SessionTaskRows()
	if len(rows) != 1 || rows[0].TaskID != newTask || rows[0].SessionID != newSession {
		t.Errorf("remote link does not reference remote ids: %+v", rows)
	}
}

func TestStatsSubscription(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCoordinator(t, nil, nil)

	var seen []int
	unsubscribe := c.SubscribeStats(owner, func(s models.UserStats) { seen = append(seen, s.Coins) })
	other := 0
	c.SubscribeStats("someone-else", func(models.UserStats) { other++ })

	if _, err := c.ApplyStatsDelta(ctx, owner, models.StatsDelta{Coins: 5}, clock.Now()); err != nil {
		t.Fatal(err)
	}
	unsubscribe()
	_, _ = c.ApplyStatsDelta(ctx, owner, models.StatsDelta{Coins: 5}, clock.Now())

	if len(seen) != 1 || seen[0] != 5 {
		t.Errorf("seen = %v, want [5]", seen)
	}
	if other != 0 {
		t.Errorf("subscriber of another owner was notified %d times", other)
	}
	if got := c.GetStats(owner); got.Coins != 10 {
		t.Errorf("coins = %d, want 10", got.Coins)
	}
}

func TestRefreshAdoptsRemoteStatsUnlessPending(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewRemote()
	c, clock := newTestCoordinator(t, r, nil)

	r.PutStats(models.UserStats{UserID: owner, Coins: 40})
	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if got := c.GetStats(owner); got.Coins != 40 {
		t.Fatalf("remote stats not adopted: %+v", got)
	}

	r.SetOffline(true)
	_, _ = c.ApplyStatsDelta(ctx, owner, models.StatsDelta{Coins: 2}, clock.Now())
	r.SetOffline(false)
	if err := c.RefreshAll(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if got := c.GetStats(owner); got.Coins != 42 {
		t.Errorf("pending stats overwritten: %+v", got)
	}
	if row, _ := r.StatsRow(owner); row.Coins != 42 {
		t.Errorf("pending stats not pushed: %+v", row)
	}
}

func TestReassignLocalMovesRecordsOnce(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	c, clock := newTestCoordinator(t, nil, mem)
	const auth = "account-1"

	task, _ := c.CreateTask(ctx, owner, models.TaskFields{Title: "Guest task"})
	_, _ = c.ApplyStatsDelta(ctx, owner, models.StatsDelta{Coins: 7, ActiveDay: "2026-03-02"}, clock.Now())
	_, _ = c.ApplyStatsDelta(ctx, auth, models.StatsDelta{Coins: 3}, clock.Now())

	for i := 0; i < 2; i++ {
		if err := c.ReassignLocal(owner, auth, nil); err != nil {
			t.Fatalf("ReassignLocal %d failed: %v", i, err)
		}
		got := c.ListTasks(auth)
		if len(got) != 1 || got[0].ID != task.ID || got[0].UserID != auth {
			t.Fatalf("run %d: tasks = %+v", i, got)
		}
		if stats := c.GetStats(auth); stats.Coins != 10 || stats.CurrentStreak != 1 {
			t.Errorf("run %d: stats = %+v", i, stats)
		}
	}

	if len(c.ListTasks(owner)) != 0 {
		t.Error("guest still owns tasks")
	}
	for _, key := range mem.Keys() {
		if strings.HasSuffix(key, "-"+owner) {
			t.Errorf("guest snapshot %s left in cache", key)
		}
	}
}
