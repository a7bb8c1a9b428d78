package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func GenerateRoundID() string {
	return fmt.Sprintf("round_%s_%s", time.Now().Format("20060102"), uuid.NewString())
}

func GenerateGameID() string {
	return fmt.Sprintf("mines_%s_%s", time.Now().Format("20060102"), uuid.NewString())
}

// ValidateBet checks the bet amount. maxBet <= 0 means no upper limit.
func ValidateBet(amount, maxBet int64) error {
	if amount <= 0 {
		return ValidationError("bet amount must be a positive number")
	}
	if maxBet > 0 && amount > maxBet {
		return ValidationError("maximum bet is %d points", maxBet)
	}
	return nil
}

func (r *DiceRequest) Validate(maxBet int64) error {
	if err := ValidateBet(r.BetAmount, maxBet); err != nil {
		return err
	}
	if r.Target < DiceMinTarget || r.Target > DiceMaxTarget {
		return ValidationError("target must be between %d and %d", DiceMinTarget, DiceMaxTarget)
	}
	switch r.Direction {
	case DiceUnder, DiceOver:
	default:
		return ValidationError("direction must be %q or %q", DiceUnder, DiceOver)
	}
	return nil
}

func (r *LimboRequest) Validate(maxBet int64) error {
	if err := ValidateBet(r.BetAmount, maxBet); err != nil {
		return err
	}
	if r.TargetMultiplier < LimboMinMultiplier || r.TargetMultiplier > LimboMaxMultiplier {
		return ValidationError("target multiplier must be between %.2f and %d", LimboMinMultiplier, LimboMaxMultiplier)
	}
	return nil
}

func (r *BlackjackRequest) Validate(maxBet int64) error {
	return ValidateBet(r.BetAmount, maxBet)
}

func (r *KenoRequest) Validate(maxBet int64) error {
	if err := ValidateBet(r.BetAmount, maxBet); err != nil {
		return err
	}
	if len(r.SelectedNumbers) < 1 || len(r.SelectedNumbers) > KenoMaxSelections {
		return ValidationError("select between 1 and %d numbers", KenoMaxSelections)
	}
	seen := make(map[int]bool, len(r.SelectedNumbers))
	for _, n := range r.SelectedNumbers {
		if n < 1 || n > KenoBoardSize {
			return ValidationError("selected numbers must be between 1 and %d", KenoBoardSize)
		}
		if seen[n] {
			return ValidationError("number %d selected more than once", n)
		}
		seen[n] = true
	}
	switch r.Risk {
	case KenoLow, KenoMedium, KenoHigh:
	default:
		return ValidationError("risk must be low, medium or high")
	}
	return nil
}

func (r *MinesStartRequest) Validate(maxBet int64) error {
	if err := ValidateBet(r.BetAmount, maxBet); err != nil {
		return err
	}
	if r.Mines < MinesMin || r.Mines > MinesMax {
		return ValidationError("mines must be between %d and %d", MinesMin, MinesMax)
	}
	return nil
}

func ValidatePosition(position int) error {
	if position < 0 || position >= MinesGridSize {
		return ValidationError("position must be between 0 and %d", MinesGridSize-1)
	}
	return nil
}

func (r *PointsUpdateRequest) Validate() error {
	if r.Points < 0 {
		return ValidationError("points must not be negative")
	}
	switch r.Action {
	case PointsAdd, PointsRemove:
		if r.Points == 0 {
			return ValidationError("points must be greater than 0 for add/remove actions")
		}
	case PointsSet:
	default:
		return ValidationError("action must be add, remove or set")
	}
	return nil
}
