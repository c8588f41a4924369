package postgres

import (
	"context"
	"fmt"

	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
)

// ownedTables are re-parented with a plain user_id update.
var ownedTables = []string{
	"tasks",
	"habits",
	"habit_completions",
	"focus_sessions",
	"session_tasks",
	"session_habits",
}

// mergeStatsQuery folds the guest stats row into the account row, creating
// the account row when it does not exist yet.
const mergeStatsQuery = `
INSERT INTO user_stats (` + statsColumns + `)
SELECT $2, coins, current_streak, longest_streak, focus_seconds, session_count, sprint_count,
       xp_ph, xp_co, xp_em, xp_so, last_active_day, updated_at
FROM user_stats WHERE user_id = $1
ON CONFLICT (user_id) DO UPDATE SET
    coins = user_stats.coins + EXCLUDED.coins,
    current_streak = GREATEST(user_stats.current_streak, EXCLUDED.current_streak),
    longest_streak = GREATEST(user_stats.longest_streak, EXCLUDED.longest_streak,
                              user_stats.current_streak, EXCLUDED.current_streak),
    focus_seconds = user_stats.focus_seconds + EXCLUDED.focus_seconds,
    session_count = user_stats.session_count + EXCLUDED.session_count,
    sprint_count = user_stats.sprint_count + EXCLUDED.sprint_count,
    xp_ph = user_stats.xp_ph + EXCLUDED.xp_ph,
    xp_co = user_stats.xp_co + EXCLUDED.xp_co,
    xp_em = user_stats.xp_em + EXCLUDED.xp_em,
    xp_so = user_stats.xp_so + EXCLUDED.xp_so,
    last_active_day = GREATEST(user_stats.last_active_day, EXCLUDED.last_active_day),
    updated_at = GREATEST(user_stats.updated_at, EXCLUDED.updated_at)`

func (s *Store) ReassignOwner(ctx context.Context, guestID, authID string) error {
	const op = "reassign owner"
	if guestID == authID {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(op, guestID, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, mergeStatsQuery, guestID, authID); err != nil {
		return apperrors.Wrap(op, guestID, fmt.Errorf("failed to merge stats: %w", err))
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_stats WHERE user_id = $1", guestID); err != nil {
		return apperrors.Wrap(op, guestID, fmt.Errorf("failed to remove guest stats: %w", err))
	}

	for _, name := range ownedTables {
		if _, err := tx.ExecContext(ctx, "UPDATE "+name+" SET user_id = $2 WHERE user_id = $1", guestID, authID); err != nil {
			return apperrors.Wrap(op, guestID, fmt.Errorf("failed to reassign %s: %w", name, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(op, guestID, err)
	}
	return nil
}
