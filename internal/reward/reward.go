// Package reward turns completed work into coins and attribute XP.
//
// Every function here is pure: the caller gathers the context (today's
// counts, focus state, dampening flags, streak) and the engine only does
// arithmetic. Invalid input yields an unsuccessful zero result, never an
// error.
package reward

import (
	"math"

	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

// Context carries every signal the reward curve depends on.
type Context struct {
	// Ordinal is the 1-based position of this item among today's rewarded items of its kind.
	Ordinal int
	// DuringFocus is set when the completion happened inside an active focus session.
	DuringFocus bool
	// IsDuplicate marks an undo-then-redo of an item already rewarded today.
	IsDuplicate bool
	// IsRapidCompletion marks a completion below the minimum dwell time.
	IsRapidCompletion bool
	// HourOfDay is the local hour, 0-23.
	HourOfDay int
	// Streak is the owner's current daily streak.
	Streak int
	// AllAttributesWorkedToday is set once every attribute has a rewarded habit today.
	AllAttributesWorkedToday bool
	// Attribute is the habit's attribute. Ignored for tasks.
	Attribute models.Attribute
}

func (c Context) valid() bool {
	return c.Ordinal >= 1 && c.HourOfDay >= 0 && c.HourOfDay <= 23 && c.Streak >= 0
}

// Result is the verdict for one item. Success false always carries Amount 0.
type Result struct {
	Success bool
	Amount  int
}

var rejected = Result{}

func baseCoins(p models.Priority) (float64, bool) {
	switch p {
	case models.PriorityLow:
		return constants.TaskCoinsLow, true
	case models.PriorityMedium:
		return constants.TaskCoinsMedium, true
	case models.PriorityHigh:
		return constants.TaskCoinsHigh, true
	default:
		return 0, false
	}
}

// CalculateTaskCoins returns the coins earned for completing a task of priority p.
func CalculateTaskCoins(p models.Priority, ctx Context) Result {
	base, ok := baseCoins(p)
	if !ok || !ctx.valid() || ctx.IsDuplicate {
		return rejected
	}
	return finish(base * multiplier(ctx))
}

// CalculateHabitXP returns the XP earned toward ctx.Attribute for performing a habit.
func CalculateHabitXP(ctx Context) Result {
	if !ctx.Attribute.IsValid() || !ctx.valid() || ctx.IsDuplicate {
		return rejected
	}
	amount := constants.HabitBaseXP * multiplier(ctx)
	if ctx.AllAttributesWorkedToday {
		amount += constants.BalanceBonusXP
	}
	return finish(amount)
}

func finish(amount float64) Result {
	n := int(math.Round(amount))
	if n < 1 {
		n = 1
	}
	return Result{Success: true, Amount: n}
}

func multiplier(ctx Context) float64 {
	m := Diminish(ctx.Ordinal) * StreakMultiplier(ctx.Streak) * timeOfDay(ctx.HourOfDay)
	if ctx.DuringFocus {
		m *= constants.FocusMultiplier
	}
	if ctx.IsRapidCompletion {
		m *= constants.RapidMultiplier
	}
	return m
}

// Diminish is the diminishing-returns factor for the nth item of a kind today.
// It is 1 for the first item and never increases, bottoming out at the floor.
func Diminish(ordinal int) float64 {
	if ordinal <= 1 {
		return 1
	}
	f := 1 / (1 + constants.RewardDecay*float64(ordinal-1))
	return math.Max(f, constants.RewardFloor)
}

// StreakMultiplier grows linearly with streak up to the cap.
func StreakMultiplier(streak int) float64 {
	if streak < 0 {
		streak = 0
	}
	if streak > constants.StreakCap {
		streak = constants.StreakCap
	}
	return 1 + constants.StreakStep*float64(streak)
}

func timeOfDay(hour int) float64 {
	switch {
	case hour < constants.NightOwlEndHour:
		return constants.NightOwlMultiplier
	case hour >= constants.EarlyBirdStartHour && hour < constants.EarlyBirdEndHour:
		return constants.EarlyBirdMultiplier
	default:
		return 1
	}
}
