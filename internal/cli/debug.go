package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

type DebugCmd struct {
	DBPath      *DebugDBPathCmd      `cmd:"" help:"Show cache database path."`
	Keys        *DebugKeysCmd        `cmd:"" help:"List cache keys."`
	DumpTask    *DebugDumpTaskCmd    `cmd:"" help:"Dump task data as JSON."`
	DumpSession *DebugDumpSessionCmd `cmd:"" help:"Dump a session and its links as JSON."`
}

func printJSON(v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(jsonBytes))
	return nil
}

type DebugDBPathCmd struct{}

func (cmd *DebugDBPathCmd) Run(ctx *Context) error {
	return printJSON(map[string]string{
		"path":    ctx.Cache.Path(),
		"backups": ctx.Backups.BackupDir(),
	})
}

type DebugKeysCmd struct{}

func (cmd *DebugKeysCmd) Run(ctx *Context) error {
	ctx.Coord.Wait()
	keys, err := ctx.Cache.Keys()
	if err != nil {
		return fmt.Errorf("failed to list cache keys: %w", err)
	}
	sort.Strings(keys)
	return printJSON(keys)
}

type DebugDumpTaskCmd struct {
	ID string `arg:"" help:"ID of the task to dump."`
}

func (cmd *DebugDumpTaskCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	task, err := matchID(ctx.Coord.ListTasks(owner), func(t models.Task) string { return t.ID }, "task", cmd.ID)
	if err != nil {
		return err
	}
	return printJSON(task)
}

type DebugDumpSessionCmd struct {
	ID string `arg:"" help:"ID of the session to dump."`
}

func (cmd *DebugDumpSessionCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}
	s, err := ctx.findSession(owner, cmd.ID)
	if err != nil {
		return err
	}
	taskLinks, habitLinks := ctx.Coord.SessionLinks(owner, s.ID)
	return printJSON(struct {
		Session models.FocusSession       `json:"session"`
		Tasks   []models.SessionTaskLink  `json:"tasks"`
		Habits  []models.SessionHabitLink `json:"habits"`
	}{s, taskLinks, habitLinks})
}
