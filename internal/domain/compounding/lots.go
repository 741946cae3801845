package compounding

import "slices"

// MaxLotSize is the largest number of capsules one compounding run can produce.
const MaxLotSize = 100

// LotSuggestions are the two ways of partitioning a batch into lots.
type LotSuggestions struct {
	Maximize  []int `json:"maximize"`
	Balanced  []int `json:"balanced"`
	Identical bool  `json:"identical"`
}

// SplitLots partitions totalUnits into lots of at most MaxLotSize. Maximize
// fills full lots first; Balanced uses the same number of lots with sizes
// differing by at most one. It reports false for a non-positive total.
func SplitLots(totalUnits int) (LotSuggestions, bool) {
	if totalUnits <= 0 {
		return LotSuggestions{}, false
	}

	var maximize []int
	for rem := totalUnits; rem > 0; {
		take := min(MaxLotSize, rem)
		maximize = append(maximize, take)
		rem -= take
	}

	numLots := (totalUnits + MaxLotSize - 1) / MaxLotSize
	base := totalUnits / numLots
	extra := totalUnits % numLots
	balanced := make([]int, numLots)
	for i := range balanced {
		balanced[i] = base
		if i < extra {
			balanced[i]++
		}
	}

	return LotSuggestions{
		Maximize:  maximize,
		Balanced:  balanced,
		Identical: slices.Equal(maximize, balanced),
	}, true
}

// DefaultLots is the partition a new bicarbonate line starts with.
func DefaultLots(totalUnits int) []int {
	s, ok := SplitLots(totalUnits)
	if !ok {
		return nil
	}
	return s.Balanced
}

// LotsMatch reports whether the lot sizes add up to the batch size.
func LotsMatch(lots []int, totalUnits int) bool {
	sum := 0
	for _, q := range lots {
		sum += q
	}
	return sum == totalUnits
}

// LotsNonNegative reports whether every lot holds zero units or more.
func LotsNonNegative(lots []int) bool {
	for _, q := range lots {
		if q < 0 {
			return false
		}
	}
	return true
}

// LotMasses returns the active powder mass in grams for each lot.
func LotMasses(contentPerCapsuleMg float64, lots []int) []float64 {
	out := make([]float64, len(lots))
	for i, q := range lots {
		out[i] = contentPerCapsuleMg * float64(q) / 1000
	}
	return out
}
