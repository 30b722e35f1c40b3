// Package metrics computes the canonical per-client RFM analytics,
// per-product analytics, and dataset-wide KPIs from a normalized
// transaction set. All computations are pure functions of the
// transactions plus an injectable reference date; running twice over the
// same input produces identical results.
package metrics

import (
	"time"

	"github.com/ipro-analytics/ipro-cli/internal/model"
	"github.com/ipro-analytics/ipro-cli/internal/stats"
)

// RFM tier thresholds. Policy constants shared with the commercial team;
// changing them changes every downstream report.
const (
	TierHeroThreshold   = 0.85
	TierGrowthThreshold = 0.65
	TierKeepThreshold   = 0.45
)

// DefaultHeroPercentile marks the revenue band for hero SKUs.
const DefaultHeroPercentile = 0.8

// DefaultLogisticsDelayDays is the replenishment lead time added to a
// client's median turnover when projecting stock-outs.
const DefaultLogisticsDelayDays = 20

// Calculator computes analytics against a fixed reference date.
type Calculator struct {
	ReferenceDate      time.Time
	LogisticsDelayDays int
	HeroPercentile     float64
}

// NewCalculator creates a Calculator for the given reference date.
// A zero reference date defaults to the current UTC time.
func NewCalculator(referenceDate time.Time, logisticsDelayDays int) *Calculator {
	if referenceDate.IsZero() {
		referenceDate = time.Now().UTC()
	}
	if logisticsDelayDays <= 0 {
		logisticsDelayDays = DefaultLogisticsDelayDays
	}
	return &Calculator{
		ReferenceDate:      referenceDate,
		LogisticsDelayDays: logisticsDelayDays,
		HeroPercentile:     DefaultHeroPercentile,
	}
}

// customerAccum carries the per-client aggregates before ranking.
type customerAccum struct {
	client    string
	recency   int
	frequency int
	monetary  float64
	gmCliente float64
	lastOrder time.Time
	segment   string
	city      string
	uf        string
}

// CustomerRFM groups transactions by client and derives the RFM
// analytics. Percentile ranks are computed across the whole client
// population; an empty transaction set yields an empty slice.
func (c *Calculator) CustomerRFM(txs []model.Transaction, datasetID string) []model.CustomerAnalytics {
	groups := groupBy(txs, func(tx model.Transaction) string { return tx.Client })
	if len(groups.keys) == 0 {
		return nil
	}

	accums := make([]customerAccum, 0, len(groups.keys))
	for _, client := range groups.keys {
		group := groups.rows[client]
		sortByDate(group)

		last := group[len(group)-1].Date
		var monetary float64
		for _, tx := range group {
			monetary += tx.Subtotal
		}
		frequency := distinctOrders(group)
		accums = append(accums, customerAccum{
			client:    client,
			recency:   stats.DaysBetween(last, c.ReferenceDate),
			frequency: frequency,
			monetary:  monetary,
			gmCliente: medianTurnover(group),
			lastOrder: last,
			segment:   modeOf(group, func(tx model.Transaction) string { return tx.Segment }),
			city:      modeOf(group, func(tx model.Transaction) string { return tx.City }),
			uf:        modeOf(group, func(tx model.Transaction) string { return tx.UF }),
		})
	}

	recencies := make([]float64, len(accums))
	frequencies := make([]float64, len(accums))
	monetaries := make([]float64, len(accums))
	for i, a := range accums {
		recencies[i] = float64(a.recency)
		frequencies[i] = float64(a.frequency)
		monetaries[i] = a.monetary
	}
	recencyPct := percentileRanks(recencies)
	frequencyPct := percentileRanks(frequencies)
	monetaryPct := percentileRanks(monetaries)

	weights := c.segmentWeights(txs)

	out := make([]model.CustomerAnalytics, 0, len(accums))
	for i, a := range accums {
		weight := 1.0
		if w, ok := weights[a.segment]; ok && a.segment != "" {
			weight = w
		}

		// Recency rank is inverted: the most recent buyer scores highest.
		score := (0.4*(1-recencyPct[i]) + 0.3*frequencyPct[i] + 0.3*monetaryPct[i]) * weight

		avgTicket := 0.0
		if a.frequency > 0 {
			avgTicket = a.monetary / float64(a.frequency)
		}

		out = append(out, model.CustomerAnalytics{
			DatasetID:     datasetID,
			Client:        a.client,
			Recency:       a.recency,
			Frequency:     a.frequency,
			Monetary:      a.monetary,
			AvgTicket:     avgTicket,
			GMCliente:     a.gmCliente,
			Tier:          tierFromScore(score),
			Segment:       a.segment,
			City:          a.city,
			UF:            a.uf,
			LastOrder:     a.lastOrder,
			RFMScore:      score,
			SegmentWeight: weight,
		})
	}
	return out
}

// ProductAnalytics groups transactions by SKU and derives per-product
// metrics: aggregates, turnover, hero classification at the configured
// revenue percentile, and monthly growth signals.
func (c *Calculator) ProductAnalytics(txs []model.Transaction, datasetID string) []model.ProductAnalytics {
	groups := groupBy(txs, func(tx model.Transaction) string { return tx.SKU })
	if len(groups.keys) == 0 {
		return nil
	}

	revenues := make([]float64, 0, len(groups.keys))
	revenueBySKU := make(map[string]float64, len(groups.keys))
	for _, sku := range groups.keys {
		var revenue float64
		for _, tx := range groups.rows[sku] {
			revenue += tx.Subtotal
		}
		revenueBySKU[sku] = revenue
		revenues = append(revenues, revenue)
	}
	heroThreshold := stats.Quantile(revenues, c.heroPercentile())

	out := make([]model.ProductAnalytics, 0, len(groups.keys))
	for _, sku := range groups.keys {
		group := groups.rows[sku]
		sortByDate(group)

		orders := distinctOrders(group)
		var qty int
		for _, tx := range group {
			qty += tx.Qty
		}
		revenue := revenueBySKU[sku]
		avgTicket := 0.0
		if orders > 0 {
			avgTicket = revenue / float64(orders)
		}

		monthly := monthlyRevenue(group)
		growthZ, growthYoY := growthSignals(monthly)

		product := group[0].Product
		if product == "" {
			product = sku
		}

		out = append(out, model.ProductAnalytics{
			DatasetID:      datasetID,
			SKU:            sku,
			Product:        product,
			Orders:         orders,
			Qty:            qty,
			Revenue:        revenue,
			AvgTicket:      avgTicket,
			TurnoverMedian: medianTurnover(group),
			HeroMix:        revenue >= heroThreshold,
			GrowthZScore:   growthZ,
			GrowthYoY:      growthYoY,
		})
	}
	return out
}

// GeneralKPIs computes dataset-wide indicators. An empty transaction set
// returns the zero-valued struct.
func (c *Calculator) GeneralKPIs(txs []model.Transaction) model.GeneralKPIs {
	txs = usable(txs)
	if len(txs) == 0 {
		return model.GeneralKPIs{}
	}

	clients := make(map[string]struct{})
	skus := make(map[string]struct{})
	orders := make(map[string]struct{})
	var totalRevenue float64
	start, end := txs[0].Date, txs[0].Date
	for _, tx := range txs {
		clients[tx.Client] = struct{}{}
		skus[tx.SKU] = struct{}{}
		orders[tx.OrderID] = struct{}{}
		totalRevenue += tx.Subtotal
		if tx.Date.Before(start) {
			start = tx.Date
		}
		if tx.Date.After(end) {
			end = tx.Date
		}
	}

	avgTicket := 0.0
	if len(orders) > 0 {
		avgTicket = totalRevenue / float64(len(orders))
	}

	groups := groupBy(txs, func(tx model.Transaction) string { return tx.Client })
	var recencies, frequencies, rupturas []float64
	for _, client := range groups.keys {
		group := groups.rows[client]
		sortByDate(group)
		last := group[len(group)-1].Date
		recencies = append(recencies, float64(stats.DaysBetween(last, c.ReferenceDate)))
		frequencies = append(frequencies, float64(distinctOrders(group)))

		giro := medianTurnover(group)
		projected := last.AddDate(0, 0, int(giro)+c.LogisticsDelayDays)
		rupturas = append(rupturas, float64(stats.DaysBetween(c.ReferenceDate, projected)))
	}

	return model.GeneralKPIs{
		TotalRevenue:     totalRevenue,
		TotalCustomers:   len(clients),
		TotalProducts:    len(skus),
		TotalOrders:      len(orders),
		AvgTicket:        avgTicket,
		AvgRecency:       stats.Mean(recencies),
		AvgFrequency:     stats.Mean(frequencies),
		PeriodStart:      start,
		PeriodEnd:        end,
		PeriodDays:       stats.DaysBetween(start, end),
		RupturaProjetada: stats.Mean(rupturas),
	}
}

func (c *Calculator) heroPercentile() float64 {
	if c.HeroPercentile <= 0 || c.HeroPercentile >= 1 {
		return DefaultHeroPercentile
	}
	return c.HeroPercentile
}

// segmentWeights maps each segment to 0.5 + revenueShare*0.5, so that a
// segment carrying the whole dataset weighs 1.0 and a marginal one
// approaches 0.5.
func (c *Calculator) segmentWeights(txs []model.Transaction) map[string]float64 {
	revenueBySegment := make(map[string]float64)
	var total float64
	for _, tx := range usable(txs) {
		if tx.Segment == "" {
			continue
		}
		revenueBySegment[tx.Segment] += tx.Subtotal
		total += tx.Subtotal
	}
	if total == 0 {
		return nil
	}
	weights := make(map[string]float64, len(revenueBySegment))
	for segment, revenue := range revenueBySegment {
		weights[segment] = 0.5 + (revenue/total)*0.5
	}
	return weights
}

func tierFromScore(score float64) model.Tier {
	switch {
	case score >= TierHeroThreshold:
		return model.TierHero
	case score >= TierGrowthThreshold:
		return model.TierGrowth
	case score >= TierKeepThreshold:
		return model.TierManter
	default:
		return model.TierRisco
	}
}
