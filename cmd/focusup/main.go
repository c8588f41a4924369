package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/AjCodes/FocusUp-sub000/internal/cli"
	"github.com/AjCodes/FocusUp-sub000/internal/config"
	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Config file path." type:"string" default:"~/.config/focusup/config.toml"`
	Verbose bool   `short:"v" help:"Enable debug logging to stderr."`
	User    string `help:"Act as this user id instead of the stored identity." hidden:""`

	Init     cli.InitCmd     `cmd:"" help:"Initialize focusup storage."`
	Task     cli.TaskCmd     `cmd:"" help:"Manage tasks."`
	Habit    cli.HabitCmd    `cmd:"" help:"Manage habits."`
	Session  cli.SessionCmd  `cmd:"" help:"Run focus sessions."`
	Stats    cli.StatsCmd    `cmd:"" help:"Show coins, XP and streaks." default:"1"`
	Sync     cli.SyncCmd     `cmd:"" help:"Push pending changes and pull from the remote store."`
	Signin   cli.SignInCmd   `cmd:"" help:"Sign in, moving guest progress to the account."`
	Signout  cli.SignOutCmd  `cmd:"" help:"Sign out and continue as a new guest."`
	Whoami   cli.WhoamiCmd   `cmd:"" help:"Show the current identity."`
	Backup   cli.BackupCmd   `cmd:"" help:"Manage cache backups."`
	Keyring  cli.KeyringCmd  `cmd:"" help:"Manage the remote connection string in the OS keyring."`
	Validate cli.ValidateCmd `cmd:"" help:"Check cached data for conflicts."`
	Doctor   cli.DoctorCmd   `cmd:"" help:"Run health checks and diagnostics."`
	Debug    cli.DebugCmd    `cmd:"" help:"Debug commands for troubleshooting."`
	Serve    cli.ServeCmd    `cmd:"" help:"Serve the local HTTP API."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Gamified focus sessions, tasks and habits"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": constants.Version},
	)

	configPath, err := config.ExpandPath(CLI.Config)
	if err != nil {
		apperrors.Fatal(err)
	}
	if err := logger.Init(logger.Config{Debug: CLI.Verbose, ConfigDir: filepath.Dir(configPath)}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	appCtx, err := cli.Open(cli.Options{
		ConfigPath:   configPath,
		UserOverride: CLI.User,
	})
	if err != nil {
		apperrors.Fatal(err)
	}

	err = ctx.Run(appCtx)
	if cerr := appCtx.Close(); cerr != nil {
		logger.Warn("Failed to close cleanly", "error", cerr)
	}
	apperrors.Fatal(err)
}
