package models

import (
	"encoding/json"
	"time"
)

type GameName string

const (
	GameDice      GameName = "dice"
	GameLimbo     GameName = "limbo"
	GameMines     GameName = "mines"
	GameBlackjack GameName = "blackjack"
	GameKeno      GameName = "keno"
)

type RoundResult string

const (
	ResultWin  RoundResult = "win"
	ResultLoss RoundResult = "loss"
)

// GameRound is the immutable history record of one played round.
// A blackjack push is stored as a win with Payout equal to BetAmount.
type GameRound struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	GameName     GameName        `json:"game_name"`
	BetAmount    int64           `json:"bet_amount"`
	Payout       int64           `json:"payout"`
	Result       RoundResult     `json:"result"`
	GameData     json.RawMessage `json:"game_data"`
	BalanceAfter int64           `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

type MinesStatus string

const (
	MinesPlaying  MinesStatus = "playing"
	MinesGameOver MinesStatus = "gameover"
)

// MinesSession is the server-side state of a user's stateful mines game.
// MinePositions never leave the server while the game is playing.
type MinesSession struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	BetAmount     int64       `json:"bet_amount"`
	Mines         int         `json:"mines"`
	MinePositions []int       `json:"mine_positions"`
	Revealed      []int       `json:"revealed"`
	Multiplier    string      `json:"multiplier"` // decimal string, exact across reloads
	Status        MinesStatus `json:"status"`
	CreatedAt     int64       `json:"created_at"`
}

func (s *MinesSession) IsRevealed(position int) bool {
	for _, p := range s.Revealed {
		if p == position {
			return true
		}
	}
	return false
}

func (s *MinesSession) IsMine(position int) bool {
	for _, p := range s.MinePositions {
		if p == position {
			return true
		}
	}
	return false
}

// SafeTilesLeft is the number of unrevealed tiles that are not mines.
func (s *MinesSession) SafeTilesLeft() int {
	return MinesGridSize - s.Mines - len(s.Revealed)
}
