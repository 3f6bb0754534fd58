package stats

import (
	"cmp"
	"slices"
)

// DefaultTopK is the number of most frequent values reported per column.
const DefaultTopK = 5

// Freq is one frequency-table entry.
type Freq struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Categorical accumulates a categorical column as a frequency table.
type Categorical struct {
	count       int64
	nulls       int64
	freq        map[string]int64
	maxDistinct int
	degraded    bool
}

// NewCategorical returns an empty accumulator. maxDistinct is a soft limit
// on the number of distinct values; zero disables it.
func NewCategorical(maxDistinct int) *Categorical {
	return &Categorical{freq: make(map[string]int64), maxDistinct: maxDistinct}
}

// Add records one non-missing value.
func (a *Categorical) Add(v string) {
	a.count++
	a.freq[v]++
	if a.maxDistinct > 0 && len(a.freq) > a.maxDistinct {
		a.degraded = true
	}
}

// AddMissing records one missing value.
func (a *Categorical) AddMissing() { a.nulls++ }

// Merge folds b into a by summing matching keys.
func (a *Categorical) Merge(b *Categorical) {
	if b == nil {
		return
	}
	a.count += b.count
	a.nulls += b.nulls
	for k, n := range b.freq {
		a.freq[k] += n
	}
	a.degraded = a.degraded || b.degraded
	if a.maxDistinct > 0 && len(a.freq) > a.maxDistinct {
		a.degraded = true
	}
}

// Count returns the number of non-missing values.
func (a *Categorical) Count() int64 { return a.count }

// NullCount returns the number of missing values.
func (a *Categorical) NullCount() int64 { return a.nulls }

// Distinct returns the number of distinct values seen.
func (a *Categorical) Distinct() int { return len(a.freq) }

// Degraded reports whether the frequency table crossed its soft limit.
func (a *Categorical) Degraded() bool { return a.degraded }

// FrequencyTotal sums the frequency table; it always equals Count.
func (a *Categorical) FrequencyTotal() int64 {
	var n int64
	for _, c := range a.freq {
		n += c
	}
	return n
}

// CategoricalStats is the finalized summary of a categorical column.
type CategoricalStats struct {
	Count       int64   `json:"count"`
	NullCount   int64   `json:"null_count"`
	NullPct     float64 `json:"null_pct"`
	UniqueCount int     `json:"unique_count"`
	Mode        *string `json:"mode"`
	ModeCount   int64   `json:"mode_count"`
	TopK        []Freq  `json:"top_k"`
	Degraded    bool    `json:"degraded,omitempty"`
}

// Finalize derives unique count, mode and the topK most frequent values.
// Ordering is count descending, then value ascending, so ties always resolve
// to the lexicographically smallest value.
func (a *Categorical) Finalize(topK, decimals int) CategoricalStats {
	st := CategoricalStats{
		Count:       a.count,
		NullCount:   a.nulls,
		NullPct:     NullPct(a.nulls, a.count+a.nulls, decimals),
		UniqueCount: len(a.freq),
		Degraded:    a.degraded,
		TopK:        []Freq{},
	}
	ranked := RankFreq(a.freq)
	if len(ranked) == 0 {
		return st
	}
	mode := ranked[0].Value
	st.Mode = &mode
	st.ModeCount = ranked[0].Count
	if topK < 0 {
		topK = 0
	}
	if topK < len(ranked) {
		ranked = ranked[:topK]
	}
	st.TopK = ranked
	return st
}

// RankFreq flattens a frequency table ordered by count descending, value
// ascending.
func RankFreq(freq map[string]int64) []Freq {
	out := make([]Freq, 0, len(freq))
	for k, n := range freq {
		out = append(out, Freq{Value: k, Count: n})
	}
	slices.SortFunc(out, func(x, y Freq) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Value, y.Value)
	})
	return out
}
