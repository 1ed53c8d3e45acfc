package fairness

// ValidateRanking checks that ranking is a permutation of 1..len(ranking).
func ValidateRanking(ranking []int) error {
	n := len(ranking)
	if n == 0 {
		return invalidRanking("ranking is empty")
	}

	seen := make([]bool, n+1)
	for i, pos := range ranking {
		if pos < 1 || pos > n {
			return invalidRanking("position %d at index %d is outside 1..%d", pos, i, n)
		}
		if seen[pos] {
			return invalidRanking("position %d appears more than once", pos)
		}
		seen[pos] = true
	}
	return nil
}

// Exposure returns the per-item exposure of a ranking: exposure[i] = Discount(ranking[i]).
func Exposure(ranking []int) ([]float64, error) {
	if err := ValidateRanking(ranking); err != nil {
		return nil, err
	}

	exposure := make([]float64, len(ranking))
	for i, pos := range ranking {
		w, err := Discount(pos)
		if err != nil {
			return nil, err
		}
		exposure[i] = w
	}
	return exposure, nil
}
