package services

import (
	"context"

	"pointsarcade/internal/models"
)

// HistoryStore is the append-only log of played rounds.
type HistoryStore interface {
	AppendRound(ctx context.Context, round *models.GameRound) error
	// ListRounds returns rounds newest first. limit <= 0 returns all of them.
	ListRounds(ctx context.Context, userID string, limit int) ([]*models.GameRound, error)
}

var _ HistoryStore = (*RedisService)(nil)
var _ HistoryStore = (*SQLHistoryStore)(nil)
