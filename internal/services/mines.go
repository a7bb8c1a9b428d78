package services

import (
	"context"

	"github.com/shopspring/decimal"

	"pointsarcade/internal/logger"
	"pointsarcade/internal/models"
)

type minesData struct {
	Mines         int    `json:"mines"`
	MinePositions []int  `json:"mine_positions"`
	Revealed      []int  `json:"revealed"`
	HitMine       bool   `json:"hit_mine"`
	Multiplier    string `json:"multiplier"`
	GameID        string `json:"game_id"`
}

// StartMines deducts the bet and lays out a new board. A user may only have
// one game in progress.
func (ge *GameEngine) StartMines(ctx context.Context, userID string, req *models.MinesStartRequest) (*models.MinesState, error) {
	if err := req.Validate(ge.maxBet); err != nil {
		return nil, err
	}

	var state *models.MinesState
	err := ge.ledger.WithUserLock(ctx, userID, func(acct *Account) error {
		if _, err := ge.mines.GetMinesSession(ctx, userID); err == nil {
			return models.ConflictError("a mines game is already in progress")
		} else if !models.IsKind(err, models.KindNotFound) {
			return err
		}

		balance, err := acct.Balance(ctx)
		if err != nil {
			return err
		}
		if balance < req.BetAmount {
			return models.InsufficientFundsError(balance, req.BetAmount)
		}

		newBalance, err := acct.Deduct(ctx, req.BetAmount)
		if err != nil {
			return err
		}

		session := &models.MinesSession{
			ID:            models.GenerateGameID(),
			UserID:        userID,
			BetAmount:     req.BetAmount,
			Mines:         req.Mines,
			MinePositions: PlaceMines(ge.rng, req.Mines),
			Revealed:      []int{},
			Multiplier:    decimal.NewFromInt(1).String(),
			Status:        models.MinesPlaying,
			CreatedAt:     ge.now().Unix(),
		}
		if err := ge.mines.CreateMinesSession(ctx, session, ge.minesTTL); err != nil {
			return ge.compensate(ctx, acct, models.GameMines, req.BetAmount, 0, err)
		}

		state = minesState(session, newBalance)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx).
		Str("user_id", userID).
		Str("game_id", state.GameID).
		Int64("bet", req.BetAmount).
		Int("mines", req.Mines).
		Msg("mines game started")

	ge.broadcaster.BroadcastBalance(userID, state.NewBalance)
	return state, nil
}

// RevealMine opens one tile. Hitting a mine ends the game as a loss; opening
// the last safe tile cashes out automatically. Re-revealing an open tile is
// rejected and leaves the game as it was.
func (ge *GameEngine) RevealMine(ctx context.Context, userID string, position int) (*models.MinesState, error) {
	if err := models.ValidatePosition(position); err != nil {
		return nil, err
	}

	var (
		state *models.MinesState
		round *models.GameRound
	)
	err := ge.ledger.WithUserLock(ctx, userID, func(acct *Account) error {
		session, err := ge.mines.GetMinesSession(ctx, userID)
		if err != nil {
			return err
		}
		if session.Status != models.MinesPlaying {
			return models.ValidationError("mines game is over")
		}

		if session.IsRevealed(position) {
			return models.ValidationError("tile %d is already revealed", position)
		}

		if session.IsMine(position) {
			session.Status = models.MinesGameOver
			round, err = ge.finishMines(ctx, acct, session, true)
			if err != nil {
				return err
			}
			state = settledState(session, round)
			return nil
		}

		session.Revealed = append(session.Revealed, position)
		session.Multiplier = MinesMultiplier(session.Mines, len(session.Revealed)).String()

		if session.SafeTilesLeft() == 0 {
			session.Status = models.MinesGameOver
			round, err = ge.finishMines(ctx, acct, session, false)
			if err != nil {
				return err
			}
			state = settledState(session, round)
			return nil
		}

		if err := ge.mines.SaveMinesSession(ctx, session); err != nil {
			return err
		}
		state = minesState(session, acct.User().Points)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if round != nil {
		ge.broadcast(round)
	}
	return state, nil
}

// CashoutMines ends the game paying bet times the accrued multiplier. At least
// one tile must be revealed.
func (ge *GameEngine) CashoutMines(ctx context.Context, userID string) (*models.MinesState, error) {
	var (
		state *models.MinesState
		round *models.GameRound
	)
	err := ge.ledger.WithUserLock(ctx, userID, func(acct *Account) error {
		session, err := ge.mines.GetMinesSession(ctx, userID)
		if err != nil {
			return err
		}
		if session.Status != models.MinesPlaying {
			return models.ValidationError("mines game is over")
		}
		if len(session.Revealed) == 0 {
			return models.ValidationError("reveal at least one tile before cashing out")
		}

		session.Status = models.MinesGameOver
		round, err = ge.finishMines(ctx, acct, session, false)
		if err != nil {
			return err
		}
		state = settledState(session, round)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ge.broadcast(round)
	return state, nil
}

// ActiveMines returns the user's game in progress with mines hidden.
func (ge *GameEngine) ActiveMines(ctx context.Context, userID string) (*models.MinesState, error) {
	session, err := ge.mines.GetMinesSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	user, err := ge.ledger.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	return minesState(session, user.Points), nil
}

// finishMines closes a game: the session is removed first so it cannot be
// settled twice, then the payout is credited and the round recorded. If either
// of those fails the bet is refunded.
func (ge *GameEngine) finishMines(ctx context.Context, acct *Account, session *models.MinesSession, hitMine bool) (*models.GameRound, error) {
	if err := ge.mines.DeleteMinesSession(ctx, session.UserID); err != nil {
		return nil, err
	}

	var payout int64
	if !hitMine {
		payout = MinesPayout(session.BetAmount, session.Mines, len(session.Revealed))
	}

	if payout > 0 {
		if _, err := acct.Add(ctx, payout); err != nil {
			return nil, ge.compensate(ctx, acct, models.GameMines, session.BetAmount, 0, err)
		}
	}

	s := settlement{
		won:    !hitMine,
		payout: payout,
		data: minesData{
			Mines:         session.Mines,
			MinePositions: session.MinePositions,
			Revealed:      session.Revealed,
			HitMine:       hitMine,
			Multiplier:    session.Multiplier,
			GameID:        session.ID,
		},
	}
	round, err := ge.newRound(session.UserID, models.GameMines, session.BetAmount, s, acct.User().Points)
	if err != nil {
		return nil, ge.compensate(ctx, acct, models.GameMines, session.BetAmount, payout, err)
	}
	if err := ge.history.AppendRound(ctx, round); err != nil {
		return nil, ge.compensate(ctx, acct, models.GameMines, session.BetAmount, payout, err)
	}

	logger.Info(ctx).
		Str("user_id", session.UserID).
		Str("game", string(models.GameMines)).
		Str("game_id", session.ID).
		Int64("bet", session.BetAmount).
		Int64("payout", payout).
		Bool("won", !hitMine).
		Msg("round played")

	return round, nil
}

// minesState is the player's view. Mine positions are disclosed only once the
// game is over.
func minesState(session *models.MinesSession, balance int64) *models.MinesState {
	multiplier, err := decimal.NewFromString(session.Multiplier)
	if err != nil {
		multiplier = MinesMultiplier(session.Mines, len(session.Revealed))
	}

	state := &models.MinesState{
		GameID:     session.ID,
		BetAmount:  session.BetAmount,
		Mines:      session.Mines,
		Revealed:   session.Revealed,
		Multiplier: multiplier.Round(4).InexactFloat64(),
		Status:     session.Status,
		NewBalance: balance,
	}

	if session.Status == models.MinesGameOver {
		state.MinePositions = session.MinePositions
	}
	return state
}

// settledState is the view of a finished game.
func settledState(session *models.MinesSession, round *models.GameRound) *models.MinesState {
	state := minesState(session, round.BalanceAfter)
	state.RoundID = round.ID
	state.Won = round.Result == models.ResultWin
	state.HitMine = !state.Won
	state.Payout = round.Payout
	return state
}
