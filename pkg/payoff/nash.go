package payoff

import "github.com/nordbyerik/gaims/pkg/core"

// FindEquilibria returns every pure-strategy Nash equilibrium of a
// [n][n][players] payoff array, in row-major order.
//
// A profile (i, j) is an equilibrium iff no row i' pays player 0 strictly more
// at column j and no column j' pays player 1 strictly more at row i. Only the
// two acting players (slots 0 and 1) are considered; arrays with fewer than two
// players have no equilibria.
func FindEquilibria(payoffs [][][]float64) []core.Profile {
	n := len(payoffs)
	if n == 0 || len(payoffs[0]) == 0 || len(payoffs[0][0]) < 2 {
		return nil
	}

	var equilibria []core.Profile
	for i := 0; i < n; i++ {
		for j := 0; j < len(payoffs[i]); j++ {
			if isRowBestResponse(payoffs, i, j) && isColBestResponse(payoffs, i, j) {
				equilibria = append(equilibria, core.Profile{Row: i, Col: j})
			}
		}
	}
	return equilibria
}

func isRowBestResponse(payoffs [][][]float64, i, j int) bool {
	current := payoffs[i][j][0]
	for alt := range payoffs {
		if payoffs[alt][j][0] > current {
			return false
		}
	}
	return true
}

func isColBestResponse(payoffs [][][]float64, i, j int) bool {
	current := payoffs[i][j][1]
	for alt := range payoffs[i] {
		if payoffs[i][alt][1] > current {
			return false
		}
	}
	return true
}
