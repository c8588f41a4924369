package cli

import (
	"context"
	"fmt"
	"sort"

	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

type TaskCmd struct {
	Add    TaskAddCmd    `cmd:"" help:"Add a new task."`
	List   TaskListCmd   `cmd:"" help:"List tasks."`
	Done   TaskDoneCmd   `cmd:"" help:"Mark a task done and collect coins."`
	Edit   TaskEditCmd   `cmd:"" help:"Edit a task."`
	Delete TaskDeleteCmd `cmd:"" help:"Delete a task."`
}

type TaskAddCmd struct {
	Title       string `arg:"" help:"Task title."`
	Description string `short:"d" help:"Optional description."`
	Deadline    string `short:"D" help:"Deadline, e.g. 2026-05-01 or \"tomorrow 5pm\"."`
	Priority    string `short:"p" help:"Priority (low|medium|high)." default:"medium"`
}

func (c *TaskAddCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}

	fields := models.TaskFields{Title: c.Title}
	if fields.Priority, err = models.ParsePriority(c.Priority); err != nil {
		return err
	}
	if c.Description != "" {
		desc := c.Description
		fields.Description = &desc
	}
	if c.Deadline != "" {
		deadline, err := ParseDeadline(c.Deadline, ctx.now())
		if err != nil {
			return err
		}
		fields.Deadline = &deadline
	}

	task, err := ctx.Coord.CreateTask(context.Background(), owner, fields)
	if err != nil {
		return err
	}
	fmt.Printf("Added task: %s (ID: %s)\n", task.Title, shortID(task.ID))
	return nil
}

type TaskListCmd struct {
	All bool `short:"a" help:"Include completed tasks."`
}

func (c *TaskListCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}

	tasks := ctx.Coord.ListTasks(owner)
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Done != tasks[j].Done {
			return !tasks[i].Done
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	shown := 0
	fmt.Println(headerStyle.Render("Tasks"))
	for _, t := range tasks {
		if t.Done && !c.All {
			continue
		}
		shown++
		line := fmt.Sprintf("  [%s] %s  %s  %s", check(t.Done), dimStyle.Render(shortID(t.ID)), t.Title, dimStyle.Render(string(t.Priority)))
		if t.Deadline != nil {
			line += dimStyle.Render("  due " + t.Deadline.Local().Format("Mon Jan 2 15:04"))
		}
		fmt.Println(line)
	}
	if shown == 0 {
		fmt.Println("  No tasks found")
	}
	if n := ctx.Coord.PendingCount(owner); n > 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("\n%d change(s) not yet synced", n)))
	}
	return nil
}

type TaskDoneCmd struct {
	ID string `arg:"" help:"Task id or unique id prefix."`
}

func (c *TaskDoneCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	task, err := matchID(ctx.Coord.ListTasks(owner), func(t models.Task) string { return t.ID }, "task", c.ID)
	if err != nil {
		return err
	}
	if task.Done {
		fmt.Printf("Task already done: %s\n", task.Title)
		return nil
	}

	res, err := ctx.Rewards.CompleteTask(context.Background(), owner, task.ID)
	if err != nil {
		return err
	}
	fmt.Printf("%s Completed: %s\n", okStyle.Render("✓"), task.Title)
	fmt.Println(renderReward(res))
	return nil
}

type TaskEditCmd struct {
	ID            string  `arg:"" help:"Task id or unique id prefix."`
	Title         *string `help:"New title."`
	Description   *string `help:"New description (empty clears it)."`
	Deadline      string  `help:"New deadline."`
	ClearDeadline bool    `help:"Remove the deadline."`
	Priority      string  `help:"New priority (low|medium|high)."`
	Undone        bool    `help:"Mark the task as not done."`
}

func (c *TaskEditCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	task, err := matchID(ctx.Coord.ListTasks(owner), func(t models.Task) string { return t.ID }, "task", c.ID)
	if err != nil {
		return err
	}

	patch := models.TaskPatch{
		Title:         c.Title,
		Description:   c.Description,
		ClearDeadline: c.ClearDeadline,
	}
	if c.Deadline != "" && !c.ClearDeadline {
		deadline, err := ParseDeadline(c.Deadline, ctx.now())
		if err != nil {
			return err
		}
		patch.Deadline = &deadline
	}
	if c.Priority != "" {
		p, err := models.ParsePriority(c.Priority)
		if err != nil {
			return err
		}
		patch.Priority = &p
	}
	if c.Undone {
		done := false
		patch.Done = &done
	}

	if err := ctx.Coord.UpdateTask(context.Background(), task.ID, patch, owner); err != nil {
		if !apperrors.IsRecoverable(err) {
			return err
		}
		fmt.Println(dimStyle.Render("Saved locally; will sync when the remote store is reachable."))
	}
	fmt.Printf("Updated task: %s\n", shortID(task.ID))
	return nil
}

type TaskDeleteCmd struct {
	ID string `arg:"" help:"Task id or unique id prefix."`
}

func (c *TaskDeleteCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	task, err := matchID(ctx.Coord.ListTasks(owner), func(t models.Task) string { return t.ID }, "task", c.ID)
	if err != nil {
		return err
	}
	if err := ctx.Coord.DeleteTask(context.Background(), task.ID, owner); err != nil && !apperrors.IsRecoverable(err) {
		return err
	}
	fmt.Printf("Deleted task: %s\n", task.Title)
	return nil
}
