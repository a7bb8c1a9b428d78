package services

import "pointsarcade/internal/models"

// Broadcaster pushes round results to a user's live connections.
type Broadcaster interface {
	BroadcastBalance(userID string, balance int64)
	BroadcastRound(round *models.GameRound)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastBalance(string, int64)   {}
func (noopBroadcaster) BroadcastRound(*models.GameRound) {}
