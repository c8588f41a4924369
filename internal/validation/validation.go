package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

var (
	ErrEmptyTitle       = errors.New("title cannot be empty")
	ErrTitleTooLong     = fmt.Errorf("title cannot exceed %d characters", MaxTitleLength)
	ErrInvalidPriority  = errors.New("invalid priority")
	ErrInvalidAttribute = errors.New("invalid attribute")
)

// ConflictType represents the type of validation conflict
type ConflictType string

const (
	ConflictDuplicateTaskName   ConflictType = "duplicate_task_name"
	ConflictDuplicateHabitName  ConflictType = "duplicate_habit_name"
	ConflictCompletionMismatch  ConflictType = "completion_mismatch"
	ConflictDuplicateCompletion ConflictType = "duplicate_completion"
	ConflictOrphanCompletion    ConflictType = "orphan_completion"
)

// Conflict represents a detected conflict in cached records
type Conflict struct {
	Type        ConflictType
	Description string
	Date        string   // YYYY-MM-DD format (if applicable)
	Items       []string // Titles involved
	IDs         []string // IDs of records involved (for auto-fixing)
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	Conflicts []Conflict
}

// FixAction represents an action taken during auto-fix
type FixAction struct {
	Action         string
	SourceConflict Conflict
}

// HasConflicts returns true if there are any conflicts
func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}

	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, conflict := range vr.Conflicts {
		fmt.Fprintf(&b, "- %s\n", conflict.Description)
	}
	return b.String()
}

// Validator validates user input and cached records
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

// ValidateTaskFields checks the fields of a new task.
func (v *Validator) ValidateTaskFields(f models.TaskFields) error {
	if err := validateTitle(f.Title); err != nil {
		return err
	}
	if f.Description != nil && utf8.RuneCountInString(*f.Description) > MaxDescriptionLength {
		return fmt.Errorf("description cannot exceed %d characters", MaxDescriptionLength)
	}
	if f.Priority != "" && !f.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, f.Priority)
	}
	return nil
}

// ValidateTaskPatch checks the fields a patch would set.
func (v *Validator) ValidateTaskPatch(p models.TaskPatch) error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Description != nil && utf8.RuneCountInString(*p.Description) > MaxDescriptionLength {
		return fmt.Errorf("description cannot exceed %d characters", MaxDescriptionLength)
	}
	if p.Priority != nil && !p.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, *p.Priority)
	}
	return nil
}

// ValidateHabitFields checks the fields of a new habit.
func (v *Validator) ValidateHabitFields(f models.HabitFields) error {
	if err := validateTitle(f.Title); err != nil {
		return err
	}
	if !f.Attribute.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAttribute, f.Attribute)
	}
	return nil
}

// ValidateHabitPatch checks the fields a patch would set.
func (v *Validator) ValidateHabitPatch(p models.HabitPatch) error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Attribute != nil && !p.Attribute.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAttribute, *p.Attribute)
	}
	return nil
}

// ValidateTasks checks cached tasks for duplicates and broken completion state.
func (v *Validator) ValidateTasks(tasks []models.Task) ValidationResult {
	var result ValidationResult

	byTitle := make(map[string][]models.Task)
	var titles []string
	for _, task := range tasks {
		key := strings.ToLower(strings.TrimSpace(task.Title))
		if _, ok := byTitle[key]; !ok {
			titles = append(titles, key)
		}
		byTitle[key] = append(byTitle[key], task)

		if task.Done != (task.CompletedAt != nil) {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictCompletionMismatch,
				Description: fmt.Sprintf("Task %q has done=%v but completion time is %s", task.Title, task.Done, describeTime(task.CompletedAt)),
				Items:       []string{task.Title},
				IDs:         []string{task.ID},
			})
		}
	}

	for _, key := range titles {
		group := byTitle[key]
		if len(group) < 2 {
			continue
		}
		ids := make([]string, len(group))
		for i, t := range group {
			ids[i] = t.ID
		}
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:        ConflictDuplicateTaskName,
			Description: fmt.Sprintf("Duplicate task title %q (%d copies)", group[0].Title, len(group)),
			Items:       []string{group[0].Title},
			IDs:         ids,
		})
	}

	return result
}

// ValidateHabits checks habits and their completions. There may be at most
// one completion per habit and local day, and every completion must belong
// to a known habit.
func (v *Validator) ValidateHabits(habits []models.Habit, completions []models.HabitCompletion) ValidationResult {
	var result ValidationResult

	known := make(map[string]models.Habit, len(habits))
	seenTitle := make(map[string][]string)
	var titles []string
	for _, h := range habits {
		known[h.ID] = h
		key := strings.ToLower(strings.TrimSpace(h.Title))
		if _, ok := seenTitle[key]; !ok {
			titles = append(titles, key)
		}
		seenTitle[key] = append(seenTitle[key], h.ID)
	}
	for _, key := range titles {
		if ids := seenTitle[key]; len(ids) > 1 {
			title := known[ids[0]].Title
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictDuplicateHabitName,
				Description: fmt.Sprintf("Duplicate habit title %q (%d copies)", title, len(ids)),
				Items:       []string{title},
				IDs:         ids,
			})
		}
	}

	perDay := make(map[string][]string)
	var dayKeys []string
	for _, c := range completions {
		h, ok := known[c.HabitID]
		if !ok {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictOrphanCompletion,
				Description: fmt.Sprintf("Completion %s refers to unknown habit %s", c.ID, c.HabitID),
				Date:        c.Day(),
				IDs:         []string{c.ID},
			})
			continue
		}
		key := h.ID + "|" + c.Day()
		if _, ok := perDay[key]; !ok {
			dayKeys = append(dayKeys, key)
		}
		perDay[key] = append(perDay[key], c.ID)
	}
	for _, key := range dayKeys {
		ids := perDay[key]
		if len(ids) < 2 {
			continue
		}
		parts := strings.SplitN(key, "|", 2)
		h := known[parts[0]]
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:        ConflictDuplicateCompletion,
			Description: fmt.Sprintf("Habit %q completed %d times on %s", h.Title, len(ids), parts[1]),
			Date:        parts[1],
			Items:       []string{h.Title},
			IDs:         ids,
		})
	}

	return result
}

func describeTime(t *time.Time) string {
	if t == nil {
		return "unset"
	}
	return t.Format(time.RFC3339)
}

// AutoFixDuplicateTasks removes all but the oldest task of each duplicate
// title conflict using deleteFunc. Returns a slice of FixActions describing what was fixed.
func AutoFixDuplicateTasks(conflicts []Conflict, tasks []models.Task, deleteFunc func(id string) error) []FixAction {
	actions := []FixAction{}

	taskMap := make(map[string]models.Task)
	for _, task := range tasks {
		taskMap[task.ID] = task
	}

	for _, conflict := range conflicts {
		if conflict.Type != ConflictDuplicateTaskName || len(conflict.IDs) <= 1 {
			continue
		}

		var group []models.Task
		for _, id := range conflict.IDs {
			if task, ok := taskMap[id]; ok {
				group = append(group, task)
			}
		}
		if len(group) <= 1 {
			continue
		}

		// Keep the oldest; ties fall back to id for deterministic behavior
		sort.Slice(group, func(i, j int) bool {
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.Before(group[j].CreatedAt)
			}
			return group[i].ID < group[j].ID
		})

		keep := group[0]
		var deletedIDs, failedIDs []string
		for _, task := range group[1:] {
			if err := deleteFunc(task.ID); err == nil {
				deletedIDs = append(deletedIDs, task.ID)
			} else {
				failedIDs = append(failedIDs, task.ID)
			}
		}

		if len(deletedIDs) > 0 {
			msg := fmt.Sprintf("Removed %d duplicate task(s) titled %q (kept ID: %s, removed: %v)", len(deletedIDs), keep.Title, keep.ID, deletedIDs)
			if len(failedIDs) > 0 {
				msg += fmt.Sprintf(" (failed to remove: %v)", failedIDs)
			}
			actions = append(actions, FixAction{Action: msg, SourceConflict: conflict})
		} else if len(failedIDs) > 0 {
			actions = append(actions, FixAction{
				Action:         fmt.Sprintf("Failed to remove duplicates for %q: %v", keep.Title, failedIDs),
				SourceConflict: conflict,
			})
		}
	}

	return actions
}
