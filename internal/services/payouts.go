package services

import (
	"github.com/shopspring/decimal"

	"pointsarcade/internal/models"
)

var (
	diceEdgeFactor   = decimal.RequireFromString("0.99")
	blackjackNatural = decimal.RequireFromString("2.5")
	hundred          = decimal.NewFromInt(100)
)

var kenoPaytable = map[models.KenoRisk][11]float64{
	models.KenoLow:    {0, 0, 1, 2, 4, 8, 12, 20, 40, 80, 150},
	models.KenoMedium: {0, 0, 0, 1, 3, 6, 15, 35, 75, 150, 300},
	models.KenoHigh:   {0, 0, 0, 0, 2, 5, 20, 50, 120, 250, 500},
}

// scale returns floor(bet * multiplier).
func scale(bet int64, multiplier decimal.Decimal) int64 {
	return decimal.NewFromInt(bet).Mul(multiplier).Floor().IntPart()
}

// floorDiv returns floor(n / d) for non-negative n and positive d without
// going through a rounded quotient.
func floorDiv(n, d decimal.Decimal) int64 {
	q, _ := n.QuoRem(d, 0)
	return q.IntPart()
}

// diceChance is the winning width of the 0-100 range for a target.
func diceChance(target float64, direction models.DiceDirection) decimal.Decimal {
	t := decimal.NewFromFloat(target)
	if direction == models.DiceOver {
		return hundred.Sub(t)
	}
	return t
}

// DiceMultiplier is (100/chance) * 0.99. A target that cannot win (0 under,
// 100 over) yields zero.
func DiceMultiplier(target float64, direction models.DiceDirection) decimal.Decimal {
	chance := diceChance(target, direction)
	if !chance.IsPositive() {
		return decimal.Zero
	}
	return hundred.Mul(diceEdgeFactor).Div(chance)
}

func DicePayout(bet int64, won bool, target float64, direction models.DiceDirection) int64 {
	chance := diceChance(target, direction)
	if !won || !chance.IsPositive() {
		return 0
	}
	return floorDiv(decimal.NewFromInt(bet).Mul(hundred).Mul(diceEdgeFactor), chance)
}

func LimboPayout(bet int64, won bool, target, houseEdge float64) int64 {
	if !won {
		return 0
	}
	m := decimal.NewFromFloat(target).Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(houseEdge)))
	return scale(bet, m)
}

type BlackjackSettlement struct {
	Won    bool
	IsPush bool
	Payout int64
}

// SettleBlackjack applies the paytable in order: natural, bust, dealer bust,
// higher total, push. Anything else loses.
func SettleBlackjack(bet int64, hand BlackjackHand) BlackjackSettlement {
	switch {
	case hand.PlayerTotal == 21 && len(hand.PlayerCards) == 2:
		return BlackjackSettlement{Won: true, Payout: scale(bet, blackjackNatural)}
	case hand.PlayerTotal > 21:
		return BlackjackSettlement{}
	case hand.DealerTotal > 21, hand.PlayerTotal > hand.DealerTotal:
		return BlackjackSettlement{Won: true, Payout: bet * 2}
	case hand.PlayerTotal == hand.DealerTotal:
		return BlackjackSettlement{Won: true, IsPush: true, Payout: bet}
	default:
		return BlackjackSettlement{}
	}
}

// KenoMultiplier looks up the paytable at min(hits, selections).
func KenoMultiplier(risk models.KenoRisk, hits, selections int) float64 {
	table, ok := kenoPaytable[risk]
	if !ok {
		return 0
	}
	idx := min(hits, selections)
	if idx < 0 || idx >= len(table) {
		return 0
	}
	return table[idx]
}

func KenoPayout(bet int64, multiplier float64) int64 {
	return scale(bet, decimal.NewFromFloat(multiplier))
}

// minesOdds returns the product of remaining/remainingSafe over the first
// revealed safe picks, as an exact fraction.
func minesOdds(mines, revealed int) (num, den decimal.Decimal) {
	num, den = decimal.NewFromInt(1), decimal.NewFromInt(1)
	for r := 0; r < revealed; r++ {
		remaining := models.MinesGridSize - r
		safe := remaining - mines
		if safe <= 0 {
			break
		}
		num = num.Mul(decimal.NewFromInt(int64(remaining)))
		den = den.Mul(decimal.NewFromInt(int64(safe)))
	}
	return num, den
}

// MinesMultiplier is the accrued multiplier after revealed safe tiles.
func MinesMultiplier(mines, revealed int) decimal.Decimal {
	num, den := minesOdds(mines, revealed)
	return num.Div(den)
}

func MinesPayout(bet int64, mines, revealed int) int64 {
	num, den := minesOdds(mines, revealed)
	return floorDiv(decimal.NewFromInt(bet).Mul(num), den)
}
