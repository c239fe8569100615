package rollup

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
)

// defaultQuantileAccuracy is the DDSketch relative accuracy for
// distribution estimates.
const defaultQuantileAccuracy = 0.01

// Accumulator maintains running statistics for one metric: count, sum,
// min, max, plus a DDSketch for quantile estimates.
//
// Accumulator is safe for concurrent use.
type Accumulator struct {
	mu sync.Mutex

	count int64
	sum   float64
	min   float64
	max   float64

	// DDSketch for quantiles (nil when sketch construction failed)
	sketch *ddsketch.DDSketch
}

// Summary is the read-out of an Accumulator. Quantiles are zero when the
// accumulator saw no values.
type Summary struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64
	P50   float64
	P90   float64
	P99   float64
}

// NewAccumulator creates an empty accumulator with the default quantile
// accuracy.
func NewAccumulator() *Accumulator {
	acc := &Accumulator{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}

	sketch, err := ddsketch.NewDefaultDDSketch(defaultQuantileAccuracy)
	if err == nil {
		acc.sketch = sketch
	}

	return acc
}

// Add folds one value into the running statistics.
func (a *Accumulator) Add(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	a.sum += value

	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	if a.sketch != nil {
		a.sketch.Add(value)
	}
}

// Count returns the number of values added.
func (a *Accumulator) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// IsEmpty returns true if no values have been added.
func (a *Accumulator) IsEmpty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count == 0
}

// Merge combines another accumulator into this one.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil || other.Count() == 0 {
		return
	}

	a.mu.Lock()
	other.mu.Lock()
	defer a.mu.Unlock()
	defer other.mu.Unlock()

	a.count += other.count
	a.sum += other.sum

	if other.min < a.min {
		a.min = other.min
	}
	if other.max > a.max {
		a.max = other.max
	}

	if a.sketch != nil && other.sketch != nil {
		a.sketch.MergeWith(other.sketch)
	}
}

// Result returns the summary. Statistics stay at full precision here;
// rounding happens only at the output boundary.
func (a *Accumulator) Result() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		Count: a.count,
		Sum:   a.sum,
	}

	if a.count > 0 {
		s.Avg = a.sum / float64(a.count)
		s.Min = a.min
		s.Max = a.max
	}

	if a.sketch != nil && a.count > 0 {
		s.P50, _ = a.sketch.GetValueAtQuantile(0.50)
		s.P90, _ = a.sketch.GetValueAtQuantile(0.90)
		s.P99, _ = a.sketch.GetValueAtQuantile(0.99)
	}

	return s
}
