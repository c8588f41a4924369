package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/AjCodes/FocusUp-sub000/internal/cache"
	"github.com/AjCodes/FocusUp-sub000/internal/daily"
	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/keyring"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
	"github.com/AjCodes/FocusUp-sub000/internal/syncer"
	"github.com/AjCodes/FocusUp-sub000/internal/testutil"
)

const (
	guest = "guest-1234"
	auth  = "account-42"
)

type env struct {
	coord   *syncer.Coordinator
	remote  *testutil.Remote
	tracker *daily.Tracker
	clock   *testutil.Clock
}

func newEnv(t *testing.T, withRemote bool) *env {
	t.Helper()
	clock := testutil.NewClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local))
	mem := cache.NewMemoryCache()
	e := &env{clock: clock, tracker: daily.NewTracker(mem, clock.Now)}
	opts := syncer.Options{Cache: mem, Now: clock.Now}
	if withRemote {
		e.remote = testutil.NewRemote()
		opts.Remote = e.remote
	}
	e.coord = syncer.New(opts)
	t.Cleanup(e.coord.Close)
	return e
}

func (e *env) migrator() *Migrator {
	if e.remote == nil {
		return NewMigrator(e.coord, nil, e.tracker)
	}
	return NewMigrator(e.coord, e.remote, e.tracker)
}

func (e *env) seedGuest(t *testing.T) models.Task {
	t.Helper()
	ctx := context.Background()
	task, err := e.coord.CreateTask(ctx, guest, models.TaskFields{Title: "Guest task"})
	if err != nil {
		t.Fatal(err)
	}
	habit, err := e.coord.CreateHabit(ctx, guest, models.HabitFields{Title: "Guest habit", Attribute: models.AttributeHeart})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.coord.ToggleHabitCompletion(ctx, guest, habit.ID, e.clock.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := e.coord.ApplyStatsDelta(ctx, guest, models.StatsDelta{Coins: 7, XP: models.AttributeXP{EM: 4}, ActiveDay: "2026-03-02"}, e.clock.Now()); err != nil && !apperrors.IsRecoverable(err) {
		t.Fatal(err)
	}
	e.tracker.IncrementTask(guest)
	return task
}

func TestMigrateTwiceEqualsOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, true)
	e.remote.PutStats(models.UserStats{UserID: auth, Coins: 3, CurrentStreak: 2, LongestStreak: 5})
	task := e.seedGuest(t)
	m := e.migrator()

	if err := m.Migrate(ctx, guest, auth); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}
	once, ok := e.remote.StatsRow(auth)
	if !ok {
		t.Fatal("account stats row missing")
	}
	if once.Coins != 10 || once.XP.EM != 4 || once.LongestStreak != 5 {
		t.Errorf("merged stats = %+v", once)
	}
	if _, ok := e.remote.StatsRow(guest); ok {
		t.Error("guest stats row left behind")
	}

	if err := m.Migrate(ctx, guest, auth); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	twice, _ := e.remote.StatsRow(auth)
	if twice.Coins != once.Coins || twice.XP != once.XP || twice.CurrentStreak != once.CurrentStreak || twice.LongestStreak != once.LongestStreak {
		t.Errorf("second run changed stats: %+v vs %+v", twice, once)
	}
	if local := e.coord.GetStats(auth); local.Coins != once.Coins {
		t.Errorf("local stats = %+v, want coins %d", local, once.Coins)
	}

	tasks := e.coord.ListTasks(auth)
	if len(tasks) != 1 || tasks[0].ID != task.ID || tasks[0].UserID != auth {
		t.Errorf("local tasks = %+v", tasks)
	}
	for _, row := range e.remote.TaskRows() {
		if row.UserID != auth {
			t.Errorf("remote task still owned by %s", row.UserID)
		}
	}
	if len(e.coord.ListTasks(guest)) != 0 {
		t.Error("guest still has local tasks")
	}
	if n := e.tracker.GetTaskCount(auth); n != 1 {
		t.Errorf("daily task count = %d, want 1", n)
	}
}

func TestMigrateOfflineKeepsGuestData(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, true)
	e.remote.SetOffline(true)
	e.seedGuest(t)

	err := e.migrator().Migrate(ctx, guest, auth)
	if !errors.Is(err, apperrors.ErrMigrationFailure) {
		t.Fatalf("expected migration failure, got %v", err)
	}
	if len(e.coord.ListTasks(guest)) != 1 {
		t.Error("failed migration moved local data")
	}
	if e.remote.Calls("reassign") != 0 {
		t.Error("remote reassignment ran with unsynced guest data")
	}
}

func TestMigrateLocalOnly(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, false)
	e.seedGuest(t)
	if _, err := e.coord.ApplyStatsDelta(ctx, auth, models.StatsDelta{Coins: 1}, e.clock.Now()); err != nil {
		t.Fatal(err)
	}
	m := e.migrator()

	for i := 0; i < 2; i++ {
		if err := m.Migrate(ctx, guest, auth); err != nil {
			t.Fatalf("Migrate %d failed: %v", i, err)
		}
		if stats := e.coord.GetStats(auth); stats.Coins != 8 || stats.XP.EM != 4 {
			t.Errorf("run %d: stats = %+v", i, stats)
		}
		if len(e.coord.Completions(auth)) != 1 {
			t.Errorf("run %d: completions not moved", i)
		}
	}
}

func TestMigrateRejectsEmptyIDs(t *testing.T) {
	e := newEnv(t, false)
	if err := e.migrator().Migrate(context.Background(), "", auth); !errors.Is(err, apperrors.ErrMigrationFailure) {
		t.Errorf("expected migration failure, got %v", err)
	}
	if err := e.migrator().Migrate(context.Background(), auth, auth); err != nil {
		t.Errorf("same ids should be a no-op, got %v", err)
	}
}

func TestManagerCreatesGuestOnce(t *testing.T) {
	gokeyring.MockInit()
	m := NewManager(OSKeyStore(), nil, nil)

	first, err := m.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if !first.Guest || !IsGuestID(first.UserID) {
		t.Fatalf("expected guest identity, got %+v", first)
	}
	second, _ := m.Current()
	if second.UserID != first.UserID {
		t.Errorf("guest id changed: %s -> %s", first.UserID, second.UserID)
	}
}

func TestManagerSignInMigratesOnce(t *testing.T) {
	gokeyring.MockInit()
	ctx := context.Background()
	e := newEnv(t, true)
	e.seedGuest(t)
	if err := keyring.SetGuestID(guest); err != nil {
		t.Fatal(err)
	}

	backups := 0
	m := NewManager(OSKeyStore(), e.migrator(), func() (string, error) {
		backups++
		return "/tmp/backup.db", nil
	})
	var seen []Identity
	unsubscribe := m.Subscribe(func(id Identity) { seen = append(seen, id) })
	defer unsubscribe()

	e.remote.SetOffline(true)
	if err := m.SignIn(ctx, auth); !errors.Is(err, apperrors.ErrMigrationFailure) {
		t.Fatalf("offline sign-in: %v", err)
	}
	if id, err := keyring.GetGuestID(); err != nil || id != guest {
		t.Fatalf("guest id must survive a failed migration: %q, %v", id, err)
	}
	if _, err := keyring.GetAuthID(); !errors.Is(err, keyring.ErrNotFound) {
		t.Error("account id stored despite failed migration")
	}

	e.remote.SetOffline(false)
	if err := m.SignIn(ctx, auth); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if _, err := keyring.GetGuestID(); !errors.Is(err, keyring.ErrNotFound) {
		t.Error("guest id not discarded after migration")
	}
	if backups != 2 {
		t.Errorf("backups = %d, want one per migration attempt", backups)
	}
	current, _ := m.Current()
	if current.UserID != auth || current.Guest {
		t.Errorf("current = %+v", current)
	}
	if len(seen) == 0 || seen[0].UserID != auth {
		t.Errorf("subscribers saw %+v", seen)
	}

	// Signing in again finds no guest id and does not migrate
	calls := e.remote.Calls("reassign")
	if err := m.SignIn(ctx, auth); err != nil {
		t.Fatal(err)
	}
	if e.remote.Calls("reassign") != calls {
		t.Error("second sign-in migrated again")
	}
}

func TestManagerSignOutStartsNewGuest(t *testing.T) {
	gokeyring.MockInit()
	m := NewManager(OSKeyStore(), nil, nil)
	if err := m.SignIn(context.Background(), auth); err != nil {
		t.Fatal(err)
	}
	if err := m.SignOut(); err != nil {
		t.Fatal(err)
	}
	id, _ := m.Current()
	if !id.Guest {
		t.Errorf("expected guest after sign-out, got %+v", id)
	}
	if err := m.SignIn(context.Background(), "guest-forged"); err == nil {
		t.Error("guest-prefixed account id accepted")
	}
}
