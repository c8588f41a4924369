package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
)

type SyncCmd struct{}

func (c *SyncCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	if !ctx.Coord.Online() {
		fmt.Println("No remote store configured; running cache-only.")
		return nil
	}

	err = ctx.Coord.RefreshAll(context.Background(), owner)
	pending := ctx.Coord.PendingCount(owner)
	switch {
	case err == nil:
		fmt.Printf("%s In sync with the remote store\n", okStyle.Render("✓"))
		return nil
	case apperrors.IsRecoverable(err):
		fmt.Printf("Remote store unreachable; %d change(s) kept locally for the next sync.\n", pending)
		return nil
	default:
		return fmt.Errorf("sync failed with %d change(s) pending: %w", pending, err)
	}
}

type StatsCmd struct {
	Today bool `help:"Also show today's reward counters."`
}

func (c *StatsCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	s := ctx.Coord.GetStats(owner)

	focus := time.Duration(s.FocusSeconds) * time.Second
	fmt.Println(headerStyle.Render("Progress"))
	fmt.Printf("  Coins          %s\n", coinStyle.Render(fmt.Sprint(s.Coins)))
	fmt.Printf("  XP             %s\n", xpLine(s.XP))
	fmt.Printf("  Streak         %d day(s) (longest %d)\n", s.CurrentStreak, s.LongestStreak)
	fmt.Printf("  Focus time     %s across %d session(s), %d sprint(s)\n", focus.Round(time.Minute), s.SessionCount, s.SprintCount)

	if c.Today {
		counter := ctx.Tracker.Snapshot(owner)
		fmt.Println()
		fmt.Println(headerStyle.Render("Today " + ctx.now().Format(constants.DateFormat)))
		fmt.Printf("  Tasks rewarded   %d\n", counter.TaskCount)
		fmt.Printf("  Habits rewarded  %d\n", counter.HabitCount)
		if ctx.Tracker.AllAttributesWorkedToday(owner) {
			fmt.Println(okStyle.Render("  All four attributes worked today"))
		}
	}
	return nil
}
