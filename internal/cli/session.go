package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"

	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
	"github.com/AjCodes/FocusUp-sub000/internal/session"
)

type SessionCmd struct {
	Create   SessionCreateCmd   `cmd:"" help:"Schedule a focus session."`
	Start    SessionStartCmd    `cmd:"" help:"Start a scheduled session."`
	Link     SessionLinkCmd     `cmd:"" help:"Attach tasks and habits to a session."`
	Complete SessionCompleteCmd `cmd:"" help:"Finish a session and collect rewards."`
	List     SessionListCmd     `cmd:"" help:"List focus sessions."`
}

type SessionCreateCmd struct {
	Minutes int    `short:"m" help:"Planned length in minutes." default:"25"`
	At      string `help:"Start time, e.g. \"in 10 minutes\" or \"today 3pm\". Defaults to now."`
	Start   bool   `short:"s" help:"Start the session immediately."`
}

func (c *SessionCreateCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	start := ctx.now()
	if c.At != "" {
		if start, err = ParseDeadline(c.At, start); err != nil {
			return err
		}
	}

	bg := context.Background()
	s, err := ctx.Coord.CreateSession(bg, owner, start, time.Duration(c.Minutes)*time.Minute)
	if err != nil {
		return err
	}
	if c.Start {
		if err := ctx.Coord.StartSession(bg, owner, s.ID); err != nil && !apperrors.IsRecoverable(err) {
			return err
		}
	}
	fmt.Printf("Created %d-minute session %s starting %s\n", c.Minutes, shortID(s.ID), start.Local().Format("15:04"))
	return nil
}

func (c *Context) findSession(owner, ref string) (models.FocusSession, error) {
	return matchID(c.Coord.ListSessions(owner), func(s models.FocusSession) string { return s.ID }, "session", ref)
}

type SessionStartCmd struct {
	ID string `arg:"" help:"Session id or unique id prefix."`
}

func (c *SessionStartCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	s, err := ctx.findSession(owner, c.ID)
	if err != nil {
		return err
	}
	if err := ctx.Coord.StartSession(context.Background(), owner, s.ID); err != nil && !apperrors.IsRecoverable(err) {
		return err
	}
	fmt.Printf("Session %s started. Focus!\n", shortID(s.ID))
	return nil
}

type SessionLinkCmd struct {
	ID    string   `arg:"" help:"Session id or unique id prefix."`
	Task  []string `short:"t" help:"Task ids to work on."`
	Habit []string `short:"H" help:"Habit ids to perform."`
}

func (c *SessionLinkCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	s, err := ctx.findSession(owner, c.ID)
	if err != nil {
		return err
	}
	if len(c.Task) == 0 && len(c.Habit) == 0 {
		return fmt.Errorf("nothing to link: pass --task or --habit")
	}

	bg := context.Background()
	tasks := ctx.Coord.ListTasks(owner)
	for _, ref := range c.Task {
		t, err := matchID(tasks, func(t models.Task) string { return t.ID }, "task", ref)
		if err != nil {
			return err
		}
		if _, err := ctx.Coord.LinkTask(bg, owner, s.ID, t.ID); err != nil {
			return err
		}
		fmt.Printf("Linked task: %s\n", t.Title)
	}
	habits := ctx.Coord.ListHabits(owner)
	for _, ref := range c.Habit {
		h, err := matchID(habits, func(h models.Habit) string { return h.ID }, "habit", ref)
		if err != nil {
			return err
		}
		if _, err := ctx.Coord.LinkHabit(bg, owner, s.ID, h.ID); err != nil {
			return err
		}
		fmt.Printf("Linked habit: %s\n", h.Title)
	}
	return nil
}

type SessionCompleteCmd struct {
	ID      string   `arg:"" help:"Session id or unique id prefix."`
	Task    []string `short:"t" help:"Linked task ids that were finished."`
	Habit   []string `short:"H" help:"Linked habit ids that were performed."`
	All     bool     `short:"a" help:"Count every linked task and habit."`
	Minutes int      `short:"m" help:"Focused minutes. Defaults to the time since the session started."`
}

func (c *SessionCompleteCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	s, err := ctx.findSession(owner, c.ID)
	if err != nil {
		return err
	}

	req := session.Request{
		SessionID: s.ID,
		UserID:    owner,
		Duration:  time.Duration(c.Minutes) * time.Minute,
	}

	taskLinks, habitLinks := ctx.Coord.SessionLinks(owner, s.ID)
	switch {
	case c.All:
		for _, l := range taskLinks {
			req.DoneTaskIDs = append(req.DoneTaskIDs, l.TaskID)
		}
		for _, l := range habitLinks {
			req.PerformedHabitIDs = append(req.PerformedHabitIDs, l.HabitID)
		}
	case len(c.Task) > 0 || len(c.Habit) > 0:
		if req.DoneTaskIDs, err = c.resolveTasks(taskLinks); err != nil {
			return err
		}
		if req.PerformedHabitIDs, err = c.resolveHabits(habitLinks); err != nil {
			return err
		}
	case s.State != models.SessionCompleted && len(taskLinks)+len(habitLinks) > 0:
		if req.DoneTaskIDs, req.PerformedHabitIDs, err = ctx.promptDone(owner, taskLinks, habitLinks); err != nil {
			return err
		}
	}

	res, err := ctx.Rewards.CompleteSession(context.Background(), req)
	if err != nil {
		return err
	}
	fmt.Printf("%s Session %s complete\n", okStyle.Render("✓"), shortID(s.ID))
	fmt.Println(renderReward(res))
	return nil
}

func (c *SessionCompleteCmd) resolveTasks(links []models.SessionTaskLink) ([]string, error) {
	ids := make([]string, 0, len(c.Task))
	for _, ref := range c.Task {
		l, err := matchID(links, func(l models.SessionTaskLink) string { return l.TaskID }, "linked task", ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, l.TaskID)
	}
	return ids, nil
}

func (c *SessionCompleteCmd) resolveHabits(links []models.SessionHabitLink) ([]string, error) {
	ids := make([]string, 0, len(c.Habit))
	for _, ref := range c.Habit {
		l, err := matchID(links, func(l models.SessionHabitLink) string { return l.HabitID }, "linked habit", ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, l.HabitID)
	}
	return ids, nil
}

// promptDone asks which linked items were finished.
func (c *Context) promptDone(owner string, taskLinks []models.SessionTaskLink, habitLinks []models.SessionHabitLink) ([]string, []string, error) {
	var taskOpts []huh.Option[string]
	for _, l := range taskLinks {
		if t, ok := c.Coord.GetTask(owner, l.TaskID); ok {
			taskOpts = append(taskOpts, huh.NewOption(t.Title, t.ID))
		}
	}
	var habitOpts []huh.Option[string]
	for _, l := range habitLinks {
		if h, ok := c.Coord.GetHabit(owner, l.HabitID); ok {
			habitOpts = append(habitOpts, huh.NewOption(fmt.Sprintf("%s [%s]", h.Title, h.Attribute), h.ID))
		}
	}

	var doneTasks, performed []string
	var groups []*huh.Group
	if len(taskOpts) > 0 {
		groups = append(groups, huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Which tasks did you finish?").
				Options(taskOpts...).
				Value(&doneTasks),
		))
	}
	if len(habitOpts) > 0 {
		groups = append(groups, huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Which habits did you perform?").
				Options(habitOpts...).
				Value(&performed),
		))
	}
	if len(groups) == 0 {
		return nil, nil, nil
	}
	if err := huh.NewForm(groups...).WithTheme(huh.ThemeDracula()).Run(); err != nil {
		return nil, nil, err
	}
	return doneTasks, performed, nil
}

type SessionListCmd struct{}

func (c *SessionListCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	sessions := ctx.Coord.ListSessions(owner)
	fmt.Println(headerStyle.Render("Focus sessions"))
	if len(sessions) == 0 {
		fmt.Println("  No sessions found")
		return nil
	}
	for _, s := range sessions {
		line := fmt.Sprintf("  %s  %s  %-10s %3dm", dimStyle.Render(shortID(s.ID)), s.StartTime.Local().Format("Jan 2 15:04"), s.State, s.PlannedSeconds/60)
		if s.State == models.SessionCompleted {
			line += coinStyle.Render(fmt.Sprintf("  +%d", s.RewardCoins)) + dimStyle.Render(fmt.Sprintf("  %d xp", s.RewardXP.Total()))
		}
		taskLinks, habitLinks := ctx.Coord.SessionLinks(owner, s.ID)
		if n := len(taskLinks) + len(habitLinks); n > 0 {
			line += dimStyle.Render(fmt.Sprintf("  (%d linked)", n))
		}
		fmt.Println(line)
	}
	return nil
}
