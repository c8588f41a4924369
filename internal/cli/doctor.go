package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	"github.com/AjCodes/FocusUp-sub000/internal/keyring"
	"github.com/AjCodes/FocusUp-sub000/internal/migration"
	"github.com/AjCodes/FocusUp-sub000/migrations"
)

type DoctorCmd struct{}

type checkStatus int

const (
	checkOK checkStatus = iota
	checkWarn
	checkFail
	checkSkipped
)

type doctorCheck struct {
	name string
	run  func(ctx *Context) (checkStatus, error)
}

var doctorChecks = []doctorCheck{
	{"Cache reachable", checkCacheReachable},
	{"Cache schema", checkCacheSchema},
	{"Remote store", checkRemote},
	{"Backups present", checkBackupsPresent},
	{"Data validation", checkValidation},
	{"OS keyring", checkKeyring},
	{"Pending changes", checkPending},
	{"Clock/timezone", checkClockTimezone},
}

func (cmd *DoctorCmd) Run(ctx *Context) error {
	fmt.Println("Running diagnostics...")
	fmt.Println()

	hasError := false
	for _, c := range doctorChecks {
		status, err := c.run(ctx)
		switch status {
		case checkOK:
			fmt.Printf("✓ %s: OK\n", c.name)
		case checkWarn:
			fmt.Printf("⚠ %s: WARNING\n", c.name)
		case checkSkipped:
			fmt.Printf("⊘ %s: SKIPPED\n", c.name)
		case checkFail:
			fmt.Printf("❌ %s: FAIL\n", c.name)
			hasError = true
		}
		if err != nil {
			fmt.Printf("   %v\n", err)
		}
	}

	fmt.Println()
	if hasError {
		fmt.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}
	fmt.Println("All diagnostics passed!")
	return nil
}

func checkCacheReachable(ctx *Context) (checkStatus, error) {
	db := ctx.Cache.DB()
	if db == nil {
		return checkFail, fmt.Errorf("cache connection is nil")
	}
	var result int
	if err := db.QueryRow("SELECT 1").Scan(&result); err != nil {
		return checkFail, fmt.Errorf("failed to query cache: %w", err)
	}
	return checkOK, nil
}

func checkCacheSchema(ctx *Context) (checkStatus, error) {
	db := ctx.Cache.DB()
	if db == nil {
		return checkSkipped, nil
	}
	subFS, err := migrations.SQLite()
	if err != nil {
		return checkFail, err
	}
	runner := migration.NewRunner(db, subFS, migration.SQLite)

	current, err := runner.GetCurrentVersion()
	if err != nil {
		return checkFail, fmt.Errorf("failed to get current schema version: %w", err)
	}
	latest, err := runner.GetLatestVersion()
	if err != nil {
		return checkFail, fmt.Errorf("failed to get latest schema version: %w", err)
	}
	switch {
	case current > latest:
		return checkFail, fmt.Errorf("cache schema version (%d) is newer than supported version (%d)", current, latest)
	case current < latest:
		return checkFail, fmt.Errorf("migrations incomplete: current version %d, latest version %d", current, latest)
	}
	return checkOK, nil
}

func checkRemote(ctx *Context) (checkStatus, error) {
	if ctx.Config.Remote.Disabled {
		return checkSkipped, fmt.Errorf("remote sync disabled in config")
	}
	if ctx.Remote == nil {
		if conn, _ := ctx.Config.Connection(ctx.getenv, keyring.GetConnectionString); conn == "" {
			return checkWarn, fmt.Errorf("no connection string configured; running cache-only")
		}
		return checkFail, fmt.Errorf("connection string configured but the remote store could not be opened")
	}

	owner, err := ctx.Owner()
	if err != nil {
		return checkFail, err
	}
	timeout := ctx.Config.Sync.RemoteTimeout.Duration
	if timeout <= 0 {
		timeout = constants.DefaultRemoteTimeout
	}
	rctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := ctx.Remote.Stats().Get(rctx, owner); err != nil {
		return checkFail, fmt.Errorf("failed to query remote store: %w", err)
	}
	return checkOK, nil
}

func checkBackupsPresent(ctx *Context) (checkStatus, error) {
	backups, err := ctx.Backups.ListBackups()
	if err != nil {
		return checkWarn, fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		return checkWarn, fmt.Errorf("no backups found - consider creating one with 'focusup backup create'")
	}
	return checkOK, nil
}

func checkValidation(ctx *Context) (checkStatus, error) {
	owner, err := ctx.Owner()
	if err != nil {
		return checkFail, err
	}
	result := validateOwner(ctx, owner)
	if result.HasConflicts() {
		return checkWarn, fmt.Errorf("%d conflict(s) found; run 'focusup validate' for details", len(result.Conflicts))
	}
	return checkOK, nil
}

func checkKeyring(*Context) (checkStatus, error) {
	if !keyring.IsAvailable() {
		return checkWarn, fmt.Errorf("OS keyring unavailable; identities cannot be persisted")
	}
	return checkOK, nil
}

func checkPending(ctx *Context) (checkStatus, error) {
	owner, err := ctx.Owner()
	if err != nil {
		return checkFail, err
	}
	if n := ctx.Coord.PendingCount(owner); n > 0 {
		return checkWarn, fmt.Errorf("%d change(s) not yet synced; run 'focusup sync'", n)
	}
	return checkOK, nil
}

func checkClockTimezone(ctx *Context) (checkStatus, error) {
	now := ctx.now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return checkFail, fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	// Day keys use local time, so UTC is worth a note
	if _, offset := now.Zone(); offset == 0 && now.Location() == time.UTC {
		return checkOK, fmt.Errorf("note: timezone is UTC; daily counters reset at UTC midnight")
	}
	return checkOK, nil
}
