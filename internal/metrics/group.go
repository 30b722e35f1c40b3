package metrics

import (
	"sort"
	"time"

	"github.com/ipro-analytics/ipro-cli/internal/model"
	"github.com/ipro-analytics/ipro-cli/internal/stats"
)

// usable filters out rows that cannot participate in any aggregation:
// missing date or client. Bad rows degrade the sample, they never abort
// the computation.
func usable(txs []model.Transaction) []model.Transaction {
	out := make([]model.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Date.IsZero() || tx.Client == "" {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// grouped holds group-by results with deterministic key order.
type grouped struct {
	keys []string
	rows map[string][]model.Transaction
}

// groupBy buckets usable transactions by the given key, skipping empty
// keys. Keys come back sorted so every run iterates identically.
func groupBy(txs []model.Transaction, key func(model.Transaction) string) grouped {
	rows := make(map[string][]model.Transaction)
	for _, tx := range usable(txs) {
		k := key(tx)
		if k == "" {
			continue
		}
		rows[k] = append(rows[k], tx)
	}
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return grouped{keys: keys, rows: rows}
}

func sortByDate(txs []model.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })
}

func distinctOrders(txs []model.Transaction) int {
	ids := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		ids[tx.OrderID] = struct{}{}
	}
	return len(ids)
}

// medianTurnover returns the median day-delta between a group's sorted
// distinct order dates, or 0 with fewer than two distinct dates.
func medianTurnover(txs []model.Transaction) float64 {
	seen := make(map[string]struct{}, len(txs))
	dates := make([]time.Time, 0, len(txs))
	for _, tx := range txs {
		key := tx.Date.Format("2006-01-02")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dates = append(dates, tx.Date)
	}
	if len(dates) < 2 {
		return 0
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	deltas := make([]float64, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		deltas = append(deltas, float64(stats.DaysBetween(dates[i-1], dates[i])))
	}
	return stats.Median(deltas)
}

// modeOf returns the most frequent non-empty value of the field across
// the group, breaking ties by the lexicographically smallest value.
func modeOf(txs []model.Transaction, field func(model.Transaction) string) string {
	counts := make(map[string]int)
	for _, tx := range txs {
		if v := field(tx); v != "" {
			counts[v]++
		}
	}
	best, bestCount := "", 0
	for v, n := range counts {
		if n > bestCount || (n == bestCount && best != "" && v < best) {
			best, bestCount = v, n
		}
	}
	return best
}

// percentileRanks computes average-method percentile ranks in [0,1]:
// tied values share the mean of their ordinal ranks, divided by the
// population size. Matches the ranking convention of the source reports.
func percentileRanks(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	for i, v := range values {
		less, equal := 0, 0
		for _, w := range values {
			switch {
			case w < v:
				less++
			case w == v:
				equal++
			}
		}
		// Average rank of the tie group, 1-based.
		avgRank := float64(less) + (float64(equal)+1)/2
		out[i] = avgRank / float64(n)
	}
	return out
}

// monthlyRevenue buckets a group's revenue by calendar month, returning
// the series in chronological order.
func monthlyRevenue(txs []model.Transaction) []float64 {
	byMonth := make(map[string]float64)
	for _, tx := range txs {
		byMonth[tx.Date.Format("2006-01")] += tx.Subtotal
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	series := make([]float64, len(months))
	for i, m := range months {
		series[i] = byMonth[m]
	}
	return series
}

// growthSignals derives the growth Z-score (needs at least 3 months of
// history) and the year-over-year percentage change (needs at least 13)
// from a chronological monthly revenue series.
func growthSignals(series []float64) (growthZ, growthYoY float64) {
	if len(series) >= 3 {
		prior := series[:len(series)-1]
		mean := stats.Mean(prior)
		std := stats.StdDev(prior)
		if std == 0 {
			std = 1.0
		}
		growthZ = (series[len(series)-1] - mean) / std
	}
	if len(series) >= 13 {
		base := series[len(series)-13]
		last := series[len(series)-1]
		denom := base
		if denom < 1 {
			denom = 1
		}
		growthYoY = (last - base) / denom * 100
	}
	return growthZ, growthYoY
}
