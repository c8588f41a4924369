package postgres

import (
	"context"
	"database/sql"
	"errors"

	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

const statsColumns = `user_id, coins, current_streak, longest_streak, focus_seconds, session_count, sprint_count,
       xp_ph, xp_co, xp_em, xp_so, last_active_day, updated_at`

type statsTable struct {
	db *sql.DB
}

func (t *statsTable) Get(ctx context.Context, ownerID string) (*models.UserStats, error) {
	row := t.db.QueryRowContext(ctx, "SELECT "+statsColumns+" FROM user_stats WHERE user_id = $1", ownerID)

	var s models.UserStats
	err := row.Scan(&s.UserID, &s.Coins, &s.CurrentStreak, &s.LongestStreak, &s.FocusSeconds, &s.SessionCount,
		&s.SprintCount, &s.XP.PH, &s.XP.CO, &s.XP.EM, &s.XP.SO, &s.LastActiveDay, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap("select user_stats", ownerID, err)
	}
	return &s, nil
}

func (t *statsTable) Upsert(ctx context.Context, s models.UserStats) error {
	s.Normalize()
	_, err := t.db.ExecContext(ctx, `
INSERT INTO user_stats (`+statsColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (user_id) DO UPDATE SET
    coins = EXCLUDED.coins,
    current_streak = EXCLUDED.current_streak,
    longest_streak = EXCLUDED.longest_streak,
    focus_seconds = EXCLUDED.focus_seconds,
    session_count = EXCLUDED.session_count,
    sprint_count = EXCLUDED.sprint_count,
    xp_ph = EXCLUDED.xp_ph,
    xp_co = EXCLUDED.xp_co,
    xp_em = EXCLUDED.xp_em,
    xp_so = EXCLUDED.xp_so,
    last_active_day = EXCLUDED.last_active_day,
    updated_at = EXCLUDED.updated_at`,
		s.UserID, s.Coins, s.CurrentStreak, s.LongestStreak, s.FocusSeconds, s.SessionCount, s.SprintCount,
		s.XP.PH, s.XP.CO, s.XP.EM, s.XP.SO, s.LastActiveDay, s.UpdatedAt)
	if err != nil {
		return apperrors.Wrap("upsert user_stats", s.UserID, err)
	}
	return nil
}
