package services

import (
	"math"
	"sort"

	"pointsarcade/internal/models"
)

// RollDice returns a continuous roll in [0,100).
func RollDice(rng RNG) float64 {
	return rng.Float64() * 100
}

func DiceWins(roll, target float64, direction models.DiceDirection) bool {
	if direction == models.DiceUnder {
		return roll < target
	}
	return roll > target
}

// CrashPoint draws a limbo crash point in {1.00, 1.01, ..., 9.99}.
func CrashPoint(rng RNG) float64 {
	return math.Max(1, math.Floor(rng.Float64()*1000)/100)
}

func LimboWins(crashPoint, target float64) bool {
	return crashPoint >= target
}

// PlaceMines picks mines distinct tiles of the 5x5 grid without replacement.
// The result is sorted.
func PlaceMines(rng RNG, mines int) []int {
	pool := make([]int, models.MinesGridSize)
	for i := range pool {
		pool[i] = i
	}
	picks := partialShuffle(rng, pool, mines)
	sort.Ints(picks)
	return picks
}

// DrawKeno draws KenoDrawCount distinct numbers from 1..KenoBoardSize in draw order.
func DrawKeno(rng RNG) []int {
	pool := make([]int, models.KenoBoardSize)
	for i := range pool {
		pool[i] = i + 1
	}
	return partialShuffle(rng, pool, models.KenoDrawCount)
}

// partialShuffle runs the first n steps of a Fisher-Yates shuffle and returns
// a copy of the selected prefix.
func partialShuffle(rng RNG, pool []int, n int) []int {
	for i := 0; i < n && i < len(pool); i++ {
		j := i + int(rng.Float64()*float64(len(pool)-i))
		if j >= len(pool) {
			j = len(pool) - 1
		}
		pool[i], pool[j] = pool[j], pool[i]
	}
	out := make([]int, n)
	copy(out, pool[:n])
	return out
}

func KenoHits(selected, drawn []int) int {
	inDraw := make(map[int]bool, len(drawn))
	for _, n := range drawn {
		inDraw[n] = true
	}
	hits := 0
	for _, n := range selected {
		if inDraw[n] {
			hits++
		}
	}
	return hits
}

// DrawCard returns a card value: ace is 1 and faces collapse to 10.
func DrawCard(rng RNG) int {
	return min(int(rng.Float64()*13)+1, 10)
}

// HandTotal sums a hand, counting each ace as 11 while that keeps the total at or under 21.
func HandTotal(cards []int) int {
	total := 0
	aces := 0
	for _, c := range cards {
		total += c
		if c == 1 {
			aces++
		}
	}
	for i := 0; i < aces; i++ {
		if total+10 <= 21 {
			total += 10
		}
	}
	return total
}

type BlackjackHand struct {
	PlayerCards []int
	DealerCards []int
	PlayerTotal int
	DealerTotal int
}

// DealBlackjack deals two cards each (player first), then the dealer draws to 17.
// The player never hits.
func DealBlackjack(rng RNG) BlackjackHand {
	player := []int{DrawCard(rng), DrawCard(rng)}
	dealer := []int{DrawCard(rng), DrawCard(rng)}

	for HandTotal(dealer) < 17 {
		dealer = append(dealer, DrawCard(rng))
	}

	return BlackjackHand{
		PlayerCards: player,
		DealerCards: dealer,
		PlayerTotal: HandTotal(player),
		DealerTotal: HandTotal(dealer),
	}
}
