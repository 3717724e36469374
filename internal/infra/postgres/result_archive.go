package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"battle-room-service/internal/domain"
	"github.com/uptrace/bun"
)

type battleRecord struct {
	bun.BaseModel `bun:"table:battles"`

	ID          string    `bun:"id,pk"`
	Code        string    `bun:"code"`
	Name        string    `bun:"name"`
	Scope       string    `bun:"scope"`
	Matchmaking bool      `bun:"matchmaking"`
	Questions   int       `bun:"questions"`
	StartedAt   time.Time `bun:"started_at"`
	FinishedAt  time.Time `bun:"finished_at"`
}

type battleResult struct {
	bun.BaseModel `bun:"table:battle_results"`

	BattleID    string    `bun:"battle_id,pk"`
	UserID      string    `bun:"user_id,pk"`
	DisplayName string    `bun:"display_name"`
	Rank        int       `bun:"rank"`
	Score       int       `bun:"score"`
	Correct     int       `bun:"correct"`
	CompletedAt time.Time `bun:"completed_at,nullzero"`
}

// ResultArchive stores final standings of finished battles.
type ResultArchive struct {
	db *bun.DB
}

func NewResultArchive(db *bun.DB) *ResultArchive {
	return &ResultArchive{db: db}
}

// RecordResults implements app.ResultRecorder. Recording the same battle twice is a no-op.
func (a *ResultArchive) RecordResults(ctx context.Context, room *domain.Room) error {
	return a.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		battle := &battleRecord{
			ID:          room.ID,
			Code:        room.Code,
			Name:        room.Name,
			Scope:       room.Scope,
			Matchmaking: room.Matchmaking,
			Questions:   len(room.Questions),
			StartedAt:   room.StartedAt,
			FinishedAt:  room.FinishedAt,
		}
		res, err := tx.NewInsert().Model(battle).On("CONFLICT (id) DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert battle: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil
		}
		if len(room.Results) == 0 {
			return nil
		}

		rows := make([]battleResult, 0, len(room.Results))
		for _, entry := range room.Results {
			rows = append(rows, battleResult{
				BattleID:    room.ID,
				UserID:      entry.UserID,
				DisplayName: entry.DisplayName,
				Rank:        entry.Rank,
				Score:       entry.Score,
				Correct:     entry.Correct,
				CompletedAt: entry.CompletedAt,
			})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert battle results: %w", err)
		}
		return nil
	})
}

// Results returns the archived standings of a battle in rank order.
func (a *ResultArchive) Results(ctx context.Context, roomID string) ([]domain.ResultEntry, error) {
	var rows []battleResult
	err := a.db.NewSelect().
		Model(&rows).
		Where("battle_id = ?", roomID).
		OrderExpr("rank ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select battle results: %w", err)
	}
	entries := make([]domain.ResultEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.ResultEntry{
			Rank:        row.Rank,
			UserID:      row.UserID,
			DisplayName: row.DisplayName,
			Score:       row.Score,
			Correct:     row.Correct,
			CompletedAt: row.CompletedAt,
		})
	}
	return entries, nil
}
