package reward

import (
	"fmt"

	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

// Summary describes what a completion earned, for user-facing messages.
type Summary struct {
	Coins    int
	XP       models.AttributeXP
	Dampened int  // items that earned less or nothing because of dampening
	Balanced bool // every attribute was worked today
	Streak   int
}

// Messages returns short encouragement lines for s. It returns nil when
// nothing was earned or dampened.
func Messages(s Summary) []string {
	if s.Coins == 0 && s.XP.Total() == 0 && s.Dampened == 0 {
		return nil
	}

	var msgs []string
	if s.Coins > 0 {
		msgs = append(msgs, fmt.Sprintf("+%d coins", s.Coins))
	}
	for _, attr := range models.AllAttributes {
		if xp := s.XP.Get(attr); xp > 0 {
			msgs = append(msgs, fmt.Sprintf("+%d %s XP", xp, attr.Name()))
		}
	}
	if s.Balanced && s.XP.Total() > 0 {
		msgs = append(msgs, "Balance bonus: all four attributes trained today")
	}
	if s.Streak > 1 && (s.Coins > 0 || s.XP.Total() > 0) {
		msgs = append(msgs, fmt.Sprintf("%d day streak, keep it going", s.Streak))
	}
	if s.Dampened > 0 {
		msgs = append(msgs, fmt.Sprintf("%d item(s) earned reduced rewards after a quick toggle", s.Dampened))
	}
	return msgs
}
