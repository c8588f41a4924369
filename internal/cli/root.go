package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/AjCodes/FocusUp-sub000/internal/backup"
	"github.com/AjCodes/FocusUp-sub000/internal/cache"
	"github.com/AjCodes/FocusUp-sub000/internal/config"
	"github.com/AjCodes/FocusUp-sub000/internal/daily"
	"github.com/AjCodes/FocusUp-sub000/internal/identity"
	"github.com/AjCodes/FocusUp-sub000/internal/keyring"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
	"github.com/AjCodes/FocusUp-sub000/internal/remote"
	"github.com/AjCodes/FocusUp-sub000/internal/remote/postgres"
	"github.com/AjCodes/FocusUp-sub000/internal/session"
	"github.com/AjCodes/FocusUp-sub000/internal/syncer"
)

// Context carries the wired application into every command.
type Context struct {
	Config     config.Config
	ConfigPath string
	// UserOverride runs as this owner instead of the stored identity.
	UserOverride string

	Cache    *cache.SQLiteCache
	Remote   *postgres.Store // nil when running cache-only
	Coord    *syncer.Coordinator
	Tracker  *daily.Tracker
	Rewards  *session.Orchestrator
	Identity *identity.Manager
	Backups  *backup.Manager

	now    func() time.Time
	getenv func(string) string
}

// Options selects how Open wires the application.
type Options struct {
	ConfigPath   string
	UserOverride string
	// Keys defaults to the OS keyring.
	Keys identity.KeyStore
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	Now    func() time.Time
}

// Open loads the configuration, opens the cache and, when a connection
// string is available, the remote store. A remote that cannot be reached
// is logged and the application runs cache-only.
func Open(opts Options) (*Context, error) {
	if opts.Keys == nil {
		opts.Keys = identity.OSKeyStore()
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	c := cache.NewSQLiteCache(cfg.Cache.Path)
	if err := c.Init(); err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	ctx := &Context{
		Config:       cfg,
		ConfigPath:   opts.ConfigPath,
		UserOverride: opts.UserOverride,
		Cache:        c,
		Backups:      backup.NewManager(cfg.Cache.Path),
		now:          opts.Now,
		getenv:       opts.Getenv,
	}

	if connStr, source := cfg.Connection(opts.Getenv, keyring.GetConnectionString); connStr != "" {
		ctx.Remote = openRemote(connStr, source)
	}

	// A nil *postgres.Store must not become a non-nil interface
	var r remote.Store
	if ctx.Remote != nil {
		r = ctx.Remote
	}
	ctx.Coord = syncer.New(syncer.Options{
		Cache:         c,
		Remote:        r,
		RefreshDelay:  cfg.Sync.RefreshDelay.Duration,
		RemoteTimeout: cfg.Sync.RemoteTimeout.Duration,
		Now:           opts.Now,
	})
	ctx.Tracker = daily.NewTracker(c, opts.Now)
	ctx.Rewards = session.New(ctx.Coord, ctx.Tracker, opts.Now)

	migrator := identity.NewMigrator(ctx.Coord, r, ctx.Tracker)
	ctx.Identity = identity.NewManager(opts.Keys, migrator, ctx.Backups.CreateBackup)
	return ctx, nil
}

func openRemote(connStr string, source config.ConnectionSource) *postgres.Store {
	if err := postgres.ValidateConnString(connStr); err != nil && !(source == config.SourceKeyring && errors.Is(err, postgres.ErrEmbeddedCredentials)) {
		logger.Warn("Ignoring remote connection string", "source", source, "error", err)
		return nil
	}
	store := postgres.New(connStr)
	if err := store.Load(); err != nil {
		logger.Warn("Remote store unavailable, running cache-only", "source", source, "error", err)
		return nil
	}
	logger.Debug("Remote store connected", "source", source)
	return store
}

// Close waits for background sync work and releases every handle.
func (c *Context) Close() error {
	if c.Coord != nil {
		c.Coord.Close()
	}
	var errs []error
	if c.Remote != nil {
		errs = append(errs, c.Remote.Close())
	}
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	return errors.Join(errs...)
}

// Owner returns the user id commands act as.
func (c *Context) Owner() (string, error) {
	if c.UserOverride != "" {
		return c.UserOverride, nil
	}
	id, err := c.Identity.Current()
	if err != nil {
		return "", fmt.Errorf("failed to resolve identity: %w", err)
	}
	return id.UserID, nil
}

// PerformAutomaticBackup creates a backup and only logs failures.
func (c *Context) PerformAutomaticBackup() {
	if _, err := c.Backups.CreateBackup(); err != nil {
		logger.Warn("Automatic backup failed", "error", err)
	}
}

// ParseDeadline understands RFC 3339, YYYY-MM-DD and natural language such
// as "tomorrow 5pm" or "next friday".
func ParseDeadline(input string, base time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("deadline cannot be empty")
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", input, base.Location()); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(input, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline %q: %w", input, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid deadline %q: expected a date or phrase like \"tomorrow 5pm\"", input)
	}
	return r.Time, nil
}

// shortID trims ids for table output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// matchID finds the item whose id equals ref or starts with it. A prefix
// matching more than one item is rejected.
func matchID[T any](items []T, idOf func(T) string, kind, ref string) (T, error) {
	var zero T
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return zero, fmt.Errorf("%s id cannot be empty", kind)
	}
	var found []T
	for _, it := range items {
		id := idOf(it)
		if id == ref {
			return it, nil
		}
		if strings.HasPrefix(id, ref) {
			found = append(found, it)
		}
	}
	switch len(found) {
	case 0:
		return zero, fmt.Errorf("%s not found: %s", kind, ref)
	case 1:
		return found[0], nil
	default:
		return zero, fmt.Errorf("%s id %q is ambiguous (%d matches)", kind, ref, len(found))
	}
}
