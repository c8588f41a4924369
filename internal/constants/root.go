package constants

import "time"

const (
	AppName            = "focusup"
	DefaultKeyringUser = "database-connection"
	GuestKeyringUser   = "guest-id"
	AuthKeyringUser    = "auth-id"
	DefaultConfigDir   = "~/.config/focusup"
	DefaultCacheFile   = "cache.db"
	DefaultConfigFile  = "config.toml"
	Version            = "v0.3.0"

	// DateFormat is the day key format used by the daily tracker and habit completions (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// GuestIDPrefix marks locally generated, unauthenticated owner ids
	GuestIDPrefix = "guest-"

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "focusup-"
	BackupFileSuffix = ".db"
)

// Cache collection names. Cache keys are "<collection>-<ownerId>".
const (
	CollectionTasks       = "tasks"
	CollectionHabits      = "habits"
	CollectionCompletions = "habit_completions"
	CollectionProgress    = "progress"
	CollectionDaily       = "daily"
)

// Sync tuning
const (
	// DefaultRefreshDelay is how long after a mutation the coordinator refreshes from the remote store
	DefaultRefreshDelay = 1500 * time.Millisecond
	// DefaultRemoteTimeout bounds every remote call
	DefaultRemoteTimeout = 8 * time.Second
	// NaturalKeyWindow is the created_at proximity used to match a local placeholder to a remote row
	NaturalKeyWindow = 2 * time.Minute
)

// Reward tuning
const (
	// MinDwell is the minimum time between starting and finishing an item before it is treated as a rapid completion
	MinDwell = 60 * time.Second
	// SprintLength is the focus time that counts as one sprint
	SprintLength = 25 * time.Minute
)
