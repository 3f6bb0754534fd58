// Package stats implements the per-column accumulators of a scan.
//
// Every accumulator follows the same lifecycle: created empty at the start of
// a scan, updated once per row by exactly one owner (Add / AddMissing),
// combined with peers through an associative Merge at the end of the scan,
// and finalized once into an immutable stats value.
package stats

import (
	"math"
	"slices"
)

// Numeric accumulates a numeric column. The running mean and variance use
// Welford's update and Chan's pairwise combination, the sum is Neumaier
// compensated, and every non-missing value is buffered for an exact median.
type Numeric struct {
	count int64
	nulls int64

	mean float64
	m2   float64

	sum  float64
	comp float64

	min float64
	max float64

	values    []float64
	maxBuffer int

	degraded bool
	overflow bool
}

// NewNumeric returns an empty accumulator. maxBuffer is a soft limit on the
// median buffer; zero disables it.
func NewNumeric(maxBuffer int) *Numeric {
	return &Numeric{
		min:       math.Inf(1),
		max:       math.Inf(-1),
		maxBuffer: maxBuffer,
	}
}

// Add records one non-missing value.
func (a *Numeric) Add(x float64) {
	a.count++
	n := float64(a.count)
	if delta := x - a.mean; !math.IsInf(delta, 0) {
		a.mean += delta / n
		a.m2 += delta * (x - a.mean)
	} else {
		// x and the mean are both finite but their distance is not; the
		// scaled update keeps the mean finite and the variance is out of range.
		a.mean += x/n - a.mean/n
		a.m2 = math.Inf(1)
	}
	a.addSum(x)
	if x < a.min {
		a.min = x
	}
	if x > a.max {
		a.max = x
	}
	a.values = append(a.values, x)
	a.checkState()
}

// AddMissing records one missing value.
func (a *Numeric) AddMissing() { a.nulls++ }

// addSum is Neumaier's variant of Kahan summation.
func (a *Numeric) addSum(x float64) {
	t := a.sum + x
	if math.Abs(a.sum) >= math.Abs(x) {
		a.comp += (a.sum - t) + x
	} else {
		a.comp += (x - t) + a.sum
	}
	a.sum = t
}

func (a *Numeric) checkState() {
	if a.maxBuffer > 0 && len(a.values) > a.maxBuffer {
		a.degraded = true
	}
	if !isFinite(a.sum) || !isFinite(a.comp) || !isFinite(a.m2) || !isFinite(a.mean) {
		a.overflow = true
	}
}

// Merge folds b into a. b must not be used afterwards.
func (a *Numeric) Merge(b *Numeric) {
	if b == nil {
		return
	}
	a.nulls += b.nulls
	a.degraded = a.degraded || b.degraded
	a.overflow = a.overflow || b.overflow
	if b.count == 0 {
		return
	}
	if a.count == 0 {
		a.count, a.mean, a.m2 = b.count, b.mean, b.m2
	} else {
		na, nb := float64(a.count), float64(b.count)
		n := na + nb
		if delta := b.mean - a.mean; !math.IsInf(delta, 0) {
			a.mean += delta * nb / n
			a.m2 += b.m2 + delta*delta*na*nb/n
		} else {
			a.mean = a.mean*(na/n) + b.mean*(nb/n)
			a.m2 = math.Inf(1)
		}
		a.count += b.count
	}
	a.addSum(b.sum)
	a.addSum(b.comp)
	a.min = math.Min(a.min, b.min)
	a.max = math.Max(a.max, b.max)
	a.values = append(a.values, b.values...)
	a.checkState()
}

// Count returns the number of non-missing values.
func (a *Numeric) Count() int64 { return a.count }

// NullCount returns the number of missing values.
func (a *Numeric) NullCount() int64 { return a.nulls }

// BufferLen returns the number of buffered values.
func (a *Numeric) BufferLen() int { return len(a.values) }

// Degraded reports whether the median buffer crossed its soft limit.
func (a *Numeric) Degraded() bool { return a.degraded }

// Overflow reports whether the running state stopped being finite.
func (a *Numeric) Overflow() bool { return a.overflow }

// NumericStats is the finalized summary of a numeric column. Pointer fields
// are nil when undefined (no values, or fewer than two for Std).
type NumericStats struct {
	Count     int64    `json:"count"`
	NullCount int64    `json:"null_count"`
	NullPct   float64  `json:"null_pct"`
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	Mean      *float64 `json:"mean"`
	Median    *float64 `json:"median"`
	Std       *float64 `json:"std"`
	Q1        *float64 `json:"q1"`
	Q3        *float64 `json:"q3"`
	Sum       *float64 `json:"sum"`
	Degraded  bool     `json:"degraded,omitempty"`
	Overflow  bool     `json:"overflow,omitempty"`
}

// Finalize sorts the median buffer and derives the summary. decimals is the
// rounding applied to NullPct.
func (a *Numeric) Finalize(decimals int) NumericStats {
	st := NumericStats{
		Count:     a.count,
		NullCount: a.nulls,
		NullPct:   NullPct(a.nulls, a.count+a.nulls, decimals),
		Degraded:  a.degraded,
		Overflow:  a.overflow,
	}
	if a.count == 0 {
		return st
	}

	slices.Sort(a.values)

	mean := a.mean
	// Rounding can push the running mean a few ulps outside the range.
	mean = math.Max(a.min, math.Min(a.max, mean))

	// Statistics that left the float64 range are reported as null; the
	// Overflow flag records why.
	st.Min = finite(a.min)
	st.Max = finite(a.max)
	st.Mean = finite(mean)
	st.Sum = finite(a.sum + a.comp)
	st.Median = finite(Quantile(a.values, 0.5))
	st.Q1 = finite(Quantile(a.values, 0.25))
	st.Q3 = finite(Quantile(a.values, 0.75))
	if a.count >= 2 {
		st.Std = finite(math.Sqrt(math.Max(0, a.m2) / float64(a.count-1)))
	}
	return st
}

// Quantile returns the p-quantile of sorted using linear interpolation
// between the closest ranks (position p*(n-1)). For p=0.5 this selects the
// middle element when n is odd and averages the two central elements when
// n is even. sorted must be non-empty and ascending.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	if d := sorted[hi] - sorted[lo]; !math.IsInf(d, 0) {
		return sorted[lo] + d*frac
	}
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// NullPct returns 100*nulls/total rounded to decimals places; zero when
// total is zero.
func NullPct(nulls, total int64, decimals int) float64 {
	if total == 0 {
		return 0
	}
	return Round(100*float64(nulls)/float64(total), decimals)
}

// Round rounds x half away from zero to the given number of decimals.
func Round(x float64, decimals int) float64 {
	if decimals < 0 {
		return x
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

func ptr(f float64) *float64 { return &f }

func isFinite(f float64) bool { return !math.IsInf(f, 0) && !math.IsNaN(f) }

// finite is ptr for finite values and nil otherwise.
func finite(f float64) *float64 {
	if !isFinite(f) {
		return nil
	}
	return &f
}
