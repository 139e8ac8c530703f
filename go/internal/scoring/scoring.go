// Package scoring maps finishing positions to league points.
//
// The constants below are a versioned contract. Points are assigned once when
// an elimination is recorded and stored; changing the ladder never rescores
// history, so bump LadderVersion alongside any change.
package scoring

import (
	"github.com/mcdev12/pokerleague/go/internal/apperr"
)

// LadderVersion identifies the current constants.
const LadderVersion = 1

const (
	// BubblePosition carries an extra increment on top of the flat step.
	BubblePosition = 9

	bottomStep  = 1 // positions 10 and up
	bubbleBonus = 1
	middleStep  = 1 // positions 8 down to 4
	podiumStep  = 3 // positions 3, 2, 1
)

// winnerTiers buckets the champion's points by field size, largest first.
var winnerTiers = []struct {
	minPlayers int
	points     int
}{
	{30, 39},
	{25, 34},
	{20, 29},
	{15, 24},
	{10, 19},
}

// step returns the points a position earns over the position right below it.
func step(position int) int {
	switch {
	case position >= 10:
		return bottomStep
	case position == BubblePosition:
		return bottomStep + bubbleBonus
	case position >= 4:
		return middleStep
	default:
		return podiumStep
	}
}

// Points returns the ladder value for finishing at position in a field of
// totalPlayers. The last place is worth 1 point.
func Points(position, totalPlayers int) (int, error) {
	if totalPlayers < 1 {
		return 0, apperr.Wrap(apperr.ErrInvalidArgument, "total players must be positive, got %d", totalPlayers)
	}
	if position < 1 || position > totalPlayers {
		return 0, apperr.Wrap(apperr.ErrInvalidArgument, "position %d outside 1..%d", position, totalPlayers)
	}

	points := 1
	for p := totalPlayers - 1; p >= position; p-- {
		points += step(p)
	}
	return points, nil
}

// WinnerPoints returns the champion tier for a field of totalPlayers.
// Fields smaller than the lowest tier fall back to the ladder value.
func WinnerPoints(totalPlayers int) (int, error) {
	for _, tier := range winnerTiers {
		if totalPlayers >= tier.minPlayers {
			return tier.points, nil
		}
	}
	return Points(1, totalPlayers)
}

// Table returns the ladder for every position, indexed by position-1.
func Table(totalPlayers int) ([]int, error) {
	if totalPlayers < 1 {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "total players must be positive, got %d", totalPlayers)
	}
	table := make([]int, totalPlayers)
	for p := 1; p <= totalPlayers; p++ {
		pts, err := Points(p, totalPlayers)
		if err != nil {
			return nil, err
		}
		table[p-1] = pts
	}
	return table, nil
}
