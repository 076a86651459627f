package engine

import "fmt"

// AlignStates performs the backward point-in-time join: for each lower
// timeframe bar it selects the latest structure state whose timestamp is
// not after the bar's timestamp. Entries are nil during pipeline warm-up,
// and downstream gates treat an absent state as non-tradable.
//
// The join is monotonic and lookahead-free; re-running it on the same
// inputs yields the same result.
func AlignStates(lower []Bar, states []StructureState) ([]*StructureState, error) {
	if err := checkChronological(lower); err != nil {
		return nil, fmt.Errorf("align: lower timeframe: %w", err)
	}
	for i := 1; i < len(states); i++ {
		if !states[i].Timestamp.After(states[i-1].Timestamp) {
			return nil, fmt.Errorf("align: structure states not strictly increasing at index %d", i)
		}
	}

	out := make([]*StructureState, len(lower))
	j := -1
	for i := range lower {
		for j+1 < len(states) && !states[j+1].Timestamp.After(lower[i].Timestamp) {
			j++
		}
		if j >= 0 {
			out[i] = &states[j]
		}
	}
	return out, nil
}
