package cli

import (
	"context"
	"fmt"

	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

type HabitCmd struct {
	Add    HabitAddCmd    `cmd:"" help:"Add a new habit."`
	List   HabitListCmd   `cmd:"" help:"List habits with today's status."`
	Toggle HabitToggleCmd `cmd:"" help:"Mark a habit done today, or undo it."`
	Delete HabitDeleteCmd `cmd:"" help:"Delete a habit and its history."`
}

type HabitAddCmd struct {
	Title     string `arg:"" help:"Habit title."`
	Attribute string `short:"a" help:"Attribute it trains (PH|CO|EM|SO)." required:""`
	Cue       string `short:"c" help:"Optional cue that triggers the habit."`
}

func (c *HabitAddCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	attr, err := models.ParseAttribute(c.Attribute)
	if err != nil {
		return err
	}
	fields := models.HabitFields{Title: c.Title, Attribute: attr}
	if c.Cue != "" {
		cue := c.Cue
		fields.Cue = &cue
	}

	habit, err := ctx.Coord.CreateHabit(context.Background(), owner, fields)
	if err != nil {
		return err
	}
	fmt.Printf("Added habit: %s [%s] (ID: %s)\n", habit.Title, attr.Name(), shortID(habit.ID))
	return nil
}

type HabitListCmd struct{}

func (c *HabitListCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	today := ctx.now().Format(constants.DateFormat)

	habits := ctx.Coord.ListHabits(owner)
	fmt.Println(headerStyle.Render("Habits for " + today))
	if len(habits) == 0 {
		fmt.Println("  No habits found")
		return nil
	}
	for _, h := range habits {
		done := ctx.Coord.IsHabitCompletedOn(owner, h.ID, today)
		line := fmt.Sprintf("  [%s] %s  %s  %s", check(done), dimStyle.Render(shortID(h.ID)), attributeLabel(h.Attribute), h.Title)
		if h.Cue != nil {
			line += dimStyle.Render("  after " + *h.Cue)
		}
		fmt.Println(line)
	}
	return nil
}

type HabitToggleCmd struct {
	ID string `arg:"" help:"Habit id or unique id prefix."`
}

func (c *HabitToggleCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	habit, err := matchID(ctx.Coord.ListHabits(owner), func(h models.Habit) string { return h.ID }, "habit", c.ID)
	if err != nil {
		return err
	}

	res, completed, err := ctx.Rewards.ToggleHabit(context.Background(), owner, habit.ID)
	if err != nil {
		return err
	}
	if !completed {
		fmt.Printf("Undid today's completion of %s\n", habit.Title)
		return nil
	}
	fmt.Printf("%s %s\n", okStyle.Render("✓"), habit.Title)
	fmt.Println(renderReward(res))
	return nil
}

type HabitDeleteCmd struct {
	ID string `arg:"" help:"Habit id or unique id prefix."`
}

func (c *HabitDeleteCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	habit, err := matchID(ctx.Coord.ListHabits(owner), func(h models.Habit) string { return h.ID }, "habit", c.ID)
	if err != nil {
		return err
	}
	if err := ctx.Coord.DeleteHabit(context.Background(), habit.ID, owner); err != nil && !apperrors.IsRecoverable(err) {
		return err
	}
	fmt.Printf("Deleted habit: %s\n", habit.Title)
	return nil
}
