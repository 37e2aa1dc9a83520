package feature

import "math"

// welford accumulates count, mean, and M2 (sum of squared deviations)
// for a stream of amounts using Welford's online update. It stays
// numerically stable over long-running streams where naive
// sum-of-squares accumulation would cancel catastrophically.
type welford struct {
	count int64
	mean  float64
	m2    float64
}

// add folds one observation into the accumulator.
func (w *welford) add(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (x - w.mean)
}

// variance returns the sample variance. Defined as 0 below 2 observations.
func (w welford) variance() float64 {
	if w.count < 2 {
		return 0
	}
	return w.m2 / float64(w.count-1)
}

// stddev returns the sample standard deviation.
func (w welford) stddev() float64 {
	return math.Sqrt(w.variance())
}
