package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pointsarcade/internal/models"
)

type roundRecord struct {
	Seq          uint64 `gorm:"primaryKey;autoIncrement"`
	RoundID      string `gorm:"size:80;uniqueIndex;not null"`
	UserID       string `gorm:"size:64;index;not null"`
	GameName     string `gorm:"size:16;not null"`
	BetAmount    int64  `gorm:"not null"`
	Payout       int64  `gorm:"not null"`
	Result       string `gorm:"size:8;not null"`
	GameData     string `gorm:"type:text"`
	BalanceAfter int64
	CreatedAt    time.Time `gorm:"not null"`
}

func (roundRecord) TableName() string {
	return "game_rounds"
}

// SQLHistoryStore keeps history in a relational database. Rows are only ever
// inserted.
type SQLHistoryStore struct {
	db *gorm.DB
}

func NewSQLHistoryStore(db *gorm.DB) *SQLHistoryStore {
	return &SQLHistoryStore{db: db}
}

func (s *SQLHistoryStore) Migrate() error {
	return s.db.AutoMigrate(&roundRecord{})
}

func (s *SQLHistoryStore) AppendRound(ctx context.Context, round *models.GameRound) error {
	rec := &roundRecord{
		RoundID:      round.ID,
		UserID:       round.UserID,
		GameName:     string(round.GameName),
		BetAmount:    round.BetAmount,
		Payout:       round.Payout,
		Result:       string(round.Result),
		GameData:     string(round.GameData),
		BalanceAfter: round.BalanceAfter,
		CreatedAt:    round.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert round: %w", err)
	}
	return nil
}

func (s *SQLHistoryStore) ListRounds(ctx context.Context, userID string, limit int) ([]*models.GameRound, error) {
	var recs []roundRecord
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}

	rounds := make([]*models.GameRound, 0, len(recs))
	for _, r := range recs {
		var data json.RawMessage
		if r.GameData != "" {
			data = json.RawMessage(r.GameData)
		}
		rounds = append(rounds, &models.GameRound{
			ID:           r.RoundID,
			UserID:       r.UserID,
			GameName:     models.GameName(r.GameName),
			BetAmount:    r.BetAmount,
			Payout:       r.Payout,
			Result:       models.RoundResult(r.Result),
			GameData:     data,
			BalanceAfter: r.BalanceAfter,
			CreatedAt:    r.CreatedAt,
		})
	}
	return rounds, nil
}
