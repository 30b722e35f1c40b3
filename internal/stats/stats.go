// Package stats provides the statistical primitives used by the metrics
// and insights engines: repurchase probability, turnover confidence
// intervals, volume outlier detection, coefficient of variation, and a
// Bayesian survival score.
//
// Every function is empty-input-safe and returns zero-valued defaults
// instead of failing. Malformed samples (NaN, Inf) are dropped so that a
// degraded sequence produces a smaller sample, not an error.
package stats

import (
	"math"
	"sort"
	"strconv"
	"time"
)

// Round4 rounds to four decimal places, matching the precision of the
// reported scores.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// CoerceFloats converts a loosely-typed sequence into a clean float
// slice, dropping values that cannot be interpreted as numbers. This is
// the resilience contract for data arriving from spreadsheet rows.
func CoerceFloats(values []any) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		var f float64
		switch x := v.(type) {
		case float64:
			f = x
		case float32:
			f = float64(x)
		case int:
			f = float64(x)
		case int64:
			f = float64(x)
		case bool:
			if x {
				f = 1
			}
		case string:
			parsed, err := strconv.ParseFloat(x, 64)
			if err != nil {
				continue
			}
			f = parsed
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// clean drops NaN/Inf samples from a float slice.
func clean(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	values = clean(values)
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation (ddof=0), or 0 for an
// empty slice.
func StdDev(values []float64) float64 {
	values = clean(values)
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// Median returns the median, or 0 for an empty slice.
func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}

// Quantile computes the q-th quantile (0 <= q <= 1) with linear
// interpolation between closest ranks, matching the default numpy
// behavior. Returns 0 for an empty slice.
func Quantile(values []float64, q float64) float64 {
	values = clean(values)
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// RepurchaseProbability measures a client's historical recurrence: the
// fraction of consecutive inter-order intervals at or below windowDays.
// Requires at least two valid dates; otherwise returns 0.
func RepurchaseProbability(dates []time.Time, windowDays int) float64 {
	valid := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if !d.IsZero() {
			valid = append(valid, d)
		}
	}
	if len(valid) < 2 {
		return 0
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Before(valid[j]) })

	hits, total := 0, 0
	for i := 1; i < len(valid); i++ {
		delta := daysBetween(valid[i-1], valid[i])
		total++
		if delta <= windowDays {
			hits++
		}
	}
	return Round4(float64(hits) / float64(total))
}

// ConfidenceInterval returns the non-parametric confidence interval of a
// turnover interval distribution using the percentile method: the
// [alpha/2, 1-alpha/2] quantiles for alpha = 1 - confidence. Empty input
// yields (0, 0).
func ConfidenceInterval(intervals []float64, confidence float64) (float64, float64) {
	intervals = clean(intervals)
	if len(intervals) == 0 {
		return 0, 0
	}
	alpha := 1 - confidence
	return Quantile(intervals, alpha/2), Quantile(intervals, 1-alpha/2)
}

// DetectVolumeOutliers flags observations whose Z-score against the
// sample mean and population standard deviation exceeds zThreshold in
// absolute value. The returned mask is aligned to the input; a zero or
// undefined deviation produces an all-false mask.
func DetectVolumeOutliers(values []float64, zThreshold float64) []bool {
	mask := make([]bool, len(values))
	usable := clean(values)
	if len(usable) == 0 {
		return mask
	}
	mean := Mean(usable)
	std := StdDev(usable)
	if std == 0 || math.IsNaN(std) {
		return mask
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if math.Abs((v-mean)/std) > zThreshold {
			mask[i] = true
		}
	}
	return mask
}

// CoefficientOfVariation returns population standard deviation divided
// by mean, or 0 when the mean is zero.
func CoefficientOfVariation(intervals []float64) float64 {
	intervals = clean(intervals)
	if len(intervals) == 0 {
		return 0
	}
	mean := Mean(intervals)
	if mean == 0 {
		return 0
	}
	return StdDev(intervals) / mean
}

// SurvivalScore computes the Beta-Bernoulli posterior mean over a
// sequence of repurchase events (true = repurchase observed in the
// period). The result estimates the probability the client stays active
// in the next cycle. Empty input yields 0.
func SurvivalScore(events []bool, alpha, beta float64) float64 {
	if len(events) == 0 {
		return 0
	}
	successes := 0
	for _, e := range events {
		if e {
			successes++
		}
	}
	return Round4((float64(successes) + alpha) / (float64(len(events)) + alpha + beta))
}

// daysBetween returns whole days from a to b, matching calendar-date
// subtraction of the source reports.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// DaysBetween is the day-delta helper shared with the metrics and
// insights engines.
func DaysBetween(a, b time.Time) int {
	return daysBetween(a, b)
}
