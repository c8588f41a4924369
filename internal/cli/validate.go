package cli

import (
	"context"
	"fmt"

	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/validation"
)

type ValidateCmd struct {
	Fix bool `help:"Delete duplicate tasks, keeping the oldest of each title."`
}

// validateOwner checks every task, habit and completion cached for owner.
func validateOwner(ctx *Context, owner string) validation.ValidationResult {
	v := validation.New()
	tasks := v.ValidateTasks(ctx.Coord.ListTasks(owner))
	habits := v.ValidateHabits(ctx.Coord.ListHabits(owner), ctx.Coord.Completions(owner))
	return validation.ValidationResult{Conflicts: append(tasks.Conflicts, habits.Conflicts...)}
}

func (cmd *ValidateCmd) Run(ctx *Context) error {
	owner, err := ctx.Owner()
	if err != nil {
		return err
	}

	fmt.Println("Validating tasks, habits and completions...")
	result := validateOwner(ctx, owner)
	fmt.Println()
	fmt.Println(result.FormatReport())

	if !cmd.Fix || !result.HasConflicts() {
		return nil
	}

	bg := context.Background()
	actions := validation.AutoFixDuplicateTasks(result.Conflicts, ctx.Coord.ListTasks(owner), func(id string) error {
		if err := ctx.Coord.DeleteTask(bg, id, owner); err != nil && !apperrors.IsRecoverable(err) {
			return err
		}
		return nil
	})
	if len(actions) == 0 {
		fmt.Println("No automatic fixes available.")
		return nil
	}
	fmt.Println("Applied fixes:")
	for _, a := range actions {
		fmt.Printf("  - %s\n", a.Action)
	}
	return nil
}
