package models

const (
	MinesGridSize = 25
	MinesMin      = 1
	MinesMax      = 24

	KenoBoardSize     = 40
	KenoDrawCount     = 10
	KenoMaxSelections = 10

	DiceMinTarget      = 0
	DiceMaxTarget      = 100
	LimboMinMultiplier = 1.01
	LimboMaxMultiplier = 1000
)

type DiceDirection string

const (
	DiceUnder DiceDirection = "under"
	DiceOver  DiceDirection = "over"
)

type KenoRisk string

const (
	KenoLow    KenoRisk = "low"
	KenoMedium KenoRisk = "medium"
	KenoHigh   KenoRisk = "high"
)

type DiceRequest struct {
	BetAmount int64         `json:"bet_amount"`
	Target    float64       `json:"target"`
	Direction DiceDirection `json:"direction"`
}

type DiceResult struct {
	RoundID    string        `json:"round_id"`
	Won        bool          `json:"won"`
	Roll       float64       `json:"roll"`
	Target     float64       `json:"target"`
	Direction  DiceDirection `json:"direction"`
	Multiplier float64       `json:"multiplier"`
	Payout     int64         `json:"payout"`
	NewBalance int64         `json:"new_balance"`
}

type LimboRequest struct {
	BetAmount        int64   `json:"bet_amount"`
	TargetMultiplier float64 `json:"target_multiplier"`
}

type LimboResult struct {
	RoundID          string  `json:"round_id"`
	Won              bool    `json:"won"`
	CrashPoint       float64 `json:"crash_point"`
	TargetMultiplier float64 `json:"target_multiplier"`
	Payout           int64   `json:"payout"`
	NewBalance       int64   `json:"new_balance"`
}

type BlackjackRequest struct {
	BetAmount int64 `json:"bet_amount"`
}

type BlackjackResult struct {
	RoundID     string `json:"round_id"`
	Won         bool   `json:"won"`
	IsPush      bool   `json:"is_push"`
	PlayerCards []int  `json:"player_cards"`
	DealerCards []int  `json:"dealer_cards"`
	PlayerTotal int    `json:"player_total"`
	DealerTotal int    `json:"dealer_total"`
	Payout      int64  `json:"payout"`
	NewBalance  int64  `json:"new_balance"`
}

type KenoRequest struct {
	BetAmount       int64    `json:"bet_amount"`
	SelectedNumbers []int    `json:"selected_numbers"`
	Risk            KenoRisk `json:"risk"`
}

type KenoResult struct {
	RoundID      string  `json:"round_id"`
	Won          bool    `json:"won"`
	DrawnNumbers []int   `json:"drawn_numbers"`
	Hits         int     `json:"hits"`
	Multiplier   float64 `json:"multiplier"`
	Payout       int64   `json:"payout"`
	NewBalance   int64   `json:"new_balance"`
}

type MinesStartRequest struct {
	BetAmount int64 `json:"bet_amount"`
	Mines     int   `json:"mines"`
}

type MinesRevealRequest struct {
	Position int `json:"position"`
}

// MinesState is what the player sees of a mines game. MinePositions is only
// filled once the game is over.
type MinesState struct {
	GameID        string      `json:"game_id"`
	BetAmount     int64       `json:"bet_amount"`
	Mines         int         `json:"mines"`
	Revealed      []int       `json:"revealed"`
	Multiplier    float64     `json:"multiplier"`
	Status        MinesStatus `json:"status"`
	HitMine       bool        `json:"hit_mine"`
	Won           bool        `json:"won"`
	Payout        int64       `json:"payout"`
	NewBalance    int64       `json:"new_balance"`
	MinePositions []int       `json:"mine_positions,omitempty"`
	RoundID       string      `json:"round_id,omitempty"`
}

type PointsAction string

const (
	PointsAdd    PointsAction = "add"
	PointsRemove PointsAction = "remove"
	PointsSet    PointsAction = "set"
)

type PointsUpdateRequest struct {
	Points int64        `json:"points"`
	Action PointsAction `json:"action"`
}
