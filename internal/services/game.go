package services

import (
	"context"
	"encoding/json"
	"time"

	"pointsarcade/internal/logger"
	"pointsarcade/internal/models"
)

// MinesStore keeps each user's single active mines game.
type MinesStore interface {
	CreateMinesSession(ctx context.Context, session *models.MinesSession, ttl time.Duration) error
	GetMinesSession(ctx context.Context, userID string) (*models.MinesSession, error)
	SaveMinesSession(ctx context.Context, session *models.MinesSession) error
	DeleteMinesSession(ctx context.Context, userID string) error
}

type GameEngine struct {
	ledger      *Ledger
	history     HistoryStore
	mines       MinesStore
	rng         RNG
	broadcaster Broadcaster

	houseEdge float64
	maxBet    int64
	minesTTL  time.Duration
	now       func() time.Time
}

type EngineOption func(*GameEngine)

func WithRNG(rng RNG) EngineOption {
	return func(ge *GameEngine) { ge.rng = rng }
}

func WithBroadcaster(b Broadcaster) EngineOption {
	return func(ge *GameEngine) { ge.broadcaster = b }
}

func WithHouseEdge(edge float64) EngineOption {
	return func(ge *GameEngine) { ge.houseEdge = edge }
}

// WithMaxBet caps bets. Zero means no cap.
func WithMaxBet(max int64) EngineOption {
	return func(ge *GameEngine) { ge.maxBet = max }
}

func WithMinesTTL(ttl time.Duration) EngineOption {
	return func(ge *GameEngine) { ge.minesTTL = ttl }
}

func NewGameEngine(ledger *Ledger, history HistoryStore, mines MinesStore, opts ...EngineOption) *GameEngine {
	ge := &GameEngine{
		ledger:      ledger,
		history:     history,
		mines:       mines,
		rng:         NewRNG(),
		broadcaster: noopBroadcaster{},
		houseEdge:   0.01,
		minesTTL:    DefaultMinesSessionTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(ge)
	}
	return ge
}

// settlement is what a resolved round hands back to playRound.
type settlement struct {
	won    bool
	payout int64
	data   interface{}
}

// playRound runs one stateless round under the user's lock: balance check,
// bet deduction, resolve, payout credit, history append. A failure after the
// deduction refunds the bet and reverses any payout; nothing is recorded.
func (ge *GameEngine) playRound(
	ctx context.Context,
	userID string,
	game models.GameName,
	bet int64,
	resolve func() (settlement, error),
) (*models.GameRound, error) {
	var round *models.GameRound

	err := ge.ledger.WithUserLock(ctx, userID, func(acct *Account) error {
		balance, err := acct.Balance(ctx)
		if err != nil {
			return err
		}
		if balance < bet {
			return models.InsufficientFundsError(balance, bet)
		}

		if _, err := acct.Deduct(ctx, bet); err != nil {
			return err
		}

		s, err := resolve()
		if err != nil {
			return ge.compensate(ctx, acct, game, bet, 0, err)
		}

		if s.payout > 0 {
			if _, err := acct.Add(ctx, s.payout); err != nil {
				return ge.compensate(ctx, acct, game, bet, 0, err)
			}
		}

		round, err = ge.newRound(userID, game, bet, s, acct.User().Points)
		if err != nil {
			return ge.compensate(ctx, acct, game, bet, s.payout, err)
		}
		if err := ge.history.AppendRound(ctx, round); err != nil {
			return ge.compensate(ctx, acct, game, bet, s.payout, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx).
		Str("user_id", userID).
		Str("game", string(game)).
		Int64("bet", bet).
		Int64("payout", round.Payout).
		Bool("won", round.Result == models.ResultWin).
		Msg("round played")

	ge.broadcast(round)
	return round, nil
}

// compensate undoes the net effect of a failed round: the bet comes back and
// any credited payout is taken away.
func (ge *GameEngine) compensate(ctx context.Context, acct *Account, game models.GameName, bet, credited int64, cause error) error {
	ctx = context.WithoutCancel(ctx)
	net := bet - credited

	var err error
	switch {
	case net > 0:
		_, err = acct.Add(ctx, net)
	case net < 0:
		_, err = acct.Deduct(ctx, -net)
	}

	event := logger.Error(ctx).
		Err(cause).
		Str("user_id", acct.User().ID).
		Str("game", string(game)).
		Int64("bet", bet).
		Int64("credited", credited)
	if err != nil {
		event.AnErr("refund_error", err).Msg("round failed and refund failed")
		return models.InternalError("round failed and could not be refunded", cause)
	}
	event.Msg("round failed, bet refunded")

	if models.IsKind(cause, models.KindUpstreamProvider) {
		return cause
	}
	return models.InternalError("round failed, bet refunded", cause)
}

func (ge *GameEngine) newRound(userID string, game models.GameName, bet int64, s settlement, balance int64) (*models.GameRound, error) {
	data, err := json.Marshal(s.data)
	if err != nil {
		return nil, err
	}

	result := models.ResultLoss
	if s.won {
		result = models.ResultWin
	}

	return &models.GameRound{
		ID:           models.GenerateRoundID(),
		UserID:       userID,
		GameName:     game,
		BetAmount:    bet,
		Payout:       s.payout,
		Result:       result,
		GameData:     data,
		BalanceAfter: balance,
		CreatedAt:    ge.now().UTC(),
	}, nil
}

func (ge *GameEngine) broadcast(round *models.GameRound) {
	ge.broadcaster.BroadcastBalance(round.UserID, round.BalanceAfter)
	ge.broadcaster.BroadcastRound(round)
}

type diceData struct {
	Roll       float64              `json:"roll"`
	Target     float64              `json:"target"`
	Direction  models.DiceDirection `json:"direction"`
	Multiplier float64              `json:"multiplier"`
}

func (ge *GameEngine) PlayDice(ctx context.Context, userID string, req *models.DiceRequest) (*models.DiceResult, error) {
	if err := req.Validate(ge.maxBet); err != nil {
		return nil, err
	}

	var data diceData
	round, err := ge.playRound(ctx, userID, models.GameDice, req.BetAmount, func() (settlement, error) {
		roll := RollDice(ge.rng)
		won := DiceWins(roll, req.Target, req.Direction)

		data = diceData{Roll: roll, Target: req.Target, Direction: req.Direction}
		if won {
			data.Multiplier = DiceMultiplier(req.Target, req.Direction).InexactFloat64()
		}
		return settlement{
			won:    won,
			payout: DicePayout(req.BetAmount, won, req.Target, req.Direction),
			data:   data,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	return &models.DiceResult{
		RoundID:    round.ID,
		Won:        round.Result == models.ResultWin,
		Roll:       data.Roll,
		Target:     req.Target,
		Direction:  req.Direction,
		Multiplier: data.Multiplier,
		Payout:     round.Payout,
		NewBalance: round.BalanceAfter,
	}, nil
}

type limboData struct {
	CrashPoint       float64 `json:"crash_point"`
	TargetMultiplier float64 `json:"target_multiplier"`
}

func (ge *GameEngine) PlayLimbo(ctx context.Context, userID string, req *models.LimboRequest) (*models.LimboResult, error) {
	if err := req.Validate(ge.maxBet); err != nil {
		return nil, err
	}

	var data limboData
	round, err := ge.playRound(ctx, userID, models.GameLimbo, req.BetAmount, func() (settlement, error) {
		crash := CrashPoint(ge.rng)
		won := LimboWins(crash, req.TargetMultiplier)

		data = limboData{CrashPoint: crash, TargetMultiplier: req.TargetMultiplier}
		return settlement{
			won:    won,
			payout: LimboPayout(req.BetAmount, won, req.TargetMultiplier, ge.houseEdge),
			data:   data,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	return &models.LimboResult{
		RoundID:          round.ID,
		Won:              round.Result == models.ResultWin,
		CrashPoint:       data.CrashPoint,
		TargetMultiplier: req.TargetMultiplier,
		Payout:           round.Payout,
		NewBalance:       round.BalanceAfter,
	}, nil
}

type blackjackData struct {
	PlayerCards []int `json:"player_cards"`
	DealerCards []int `json:"dealer_cards"`
	PlayerTotal int   `json:"player_total"`
	DealerTotal int   `json:"dealer_total"`
	IsPush      bool  `json:"is_push"`
}

func (ge *GameEngine) PlayBlackjack(ctx context.Context, userID string, req *models.BlackjackRequest) (*models.BlackjackResult, error) {
	if err := req.Validate(ge.maxBet); err != nil {
		return nil, err
	}

	var data blackjackData
	round, err := ge.playRound(ctx, userID, models.GameBlackjack, req.BetAmount, func() (settlement, error) {
		hand := DealBlackjack(ge.rng)
		s := SettleBlackjack(req.BetAmount, hand)

		data = blackjackData{
			PlayerCards: hand.PlayerCards,
			DealerCards: hand.DealerCards,
			PlayerTotal: hand.PlayerTotal,
			DealerTotal: hand.DealerTotal,
			IsPush:      s.IsPush,
		}
		return settlement{won: s.Won, payout: s.Payout, data: data}, nil
	})
	if err != nil {
		return nil, err
	}

	return &models.BlackjackResult{
		RoundID:     round.ID,
		Won:         round.Result == models.ResultWin,
		IsPush:      data.IsPush,
		PlayerCards: data.PlayerCards,
		DealerCards: data.DealerCards,
		PlayerTotal: data.PlayerTotal,
		DealerTotal: data.DealerTotal,
		Payout:      round.Payout,
		NewBalance:  round.BalanceAfter,
	}, nil
}

type kenoData struct {
	SelectedNumbers []int           `json:"selected_numbers"`
	DrawnNumbers    []int           `json:"drawn_numbers"`
	Hits            int             `json:"hits"`
	Risk            models.KenoRisk `json:"risk"`
	Multiplier      float64         `json:"multiplier"`
}

func (ge *GameEngine) PlayKeno(ctx context.Context, userID string, req *models.KenoRequest) (*models.KenoResult, error) {
	if err := req.Validate(ge.maxBet); err != nil {
		return nil, err
	}

	var data kenoData
	round, err := ge.playRound(ctx, userID, models.GameKeno, req.BetAmount, func() (settlement, error) {
		drawn := DrawKeno(ge.rng)
		hits := KenoHits(req.SelectedNumbers, drawn)
		multiplier := KenoMultiplier(req.Risk, hits, len(req.SelectedNumbers))
		payout := KenoPayout(req.BetAmount, multiplier)

		data = kenoData{
			SelectedNumbers: req.SelectedNumbers,
			DrawnNumbers:    drawn,
			Hits:            hits,
			Risk:            req.Risk,
			Multiplier:      multiplier,
		}
		return settlement{won: payout > 0, payout: payout, data: data}, nil
	})
	if err != nil {
		return nil, err
	}

	return &models.KenoResult{
		RoundID:      round.ID,
		Won:          round.Result == models.ResultWin,
		DrawnNumbers: data.DrawnNumbers,
		Hits:         data.Hits,
		Multiplier:   data.Multiplier,
		Payout:       round.Payout,
		NewBalance:   round.BalanceAfter,
	}, nil
}

// History returns the user's rounds newest first.
func (ge *GameEngine) History(ctx context.Context, userID string, limit int) ([]*models.GameRound, error) {
	if _, err := ge.ledger.User(ctx, userID); err != nil {
		return nil, err
	}
	return ge.history.ListRounds(ctx, userID, limit)
}
