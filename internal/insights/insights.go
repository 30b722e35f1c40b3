// Package insights generates the R.I.C.O. alert families over a
// dataset's transaction set: stock-out risk (ruptura), sharp revenue
// drops (queda brusca), and volume anomalies (outlier de volume). Each
// rule is evaluated independently so one rule skipping a group never
// prevents the others from reporting.
package insights

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ipro-analytics/ipro-cli/internal/model"
	"github.com/ipro-analytics/ipro-cli/internal/segment"
	"github.com/ipro-analytics/ipro-cli/internal/stats"
)

// Rule thresholds and defaults.
const (
	DefaultLogisticsDelayDays   = 20
	DefaultRepurchaseWindowDays = 90
	DefaultZThreshold           = 3.0

	// queda brusca emits when the latest month sits below the historical
	// mean by at least this many standard deviations.
	dropZThreshold = -1.5

	// outlier_volume needs this many observations per (client, sku).
	minOutlierObservations = 5

	// survival score looks at the trailing window of observations.
	survivalWindow = 6
)

// Generator evaluates alert rules against a fixed reference date.
type Generator struct {
	ReferenceDate        time.Time
	LogisticsDelayDays   int
	RepurchaseWindowDays int
	ZThreshold           float64

	segmenter *segment.Segmenter
}

// NewGenerator creates a Generator. Zero-valued fields fall back to the
// defaults; a zero reference date uses the current UTC time.
func NewGenerator(referenceDate time.Time, delayDays, windowDays int, zThreshold float64) *Generator {
	if referenceDate.IsZero() {
		referenceDate = time.Now().UTC()
	}
	if delayDays <= 0 {
		delayDays = DefaultLogisticsDelayDays
	}
	if windowDays <= 0 {
		windowDays = DefaultRepurchaseWindowDays
	}
	if zThreshold <= 0 {
		zThreshold = DefaultZThreshold
	}
	return &Generator{
		ReferenceDate:        referenceDate,
		LogisticsDelayDays:   delayDays,
		RepurchaseWindowDays: windowDays,
		ZThreshold:           zThreshold,
		segmenter:            segment.NewSegmenter(segment.DefaultWeights),
	}
}

// SetSegmentWeights overrides the behavior-score weighting used when
// enriching alerts with PDV triggers. Zero weights keep the defaults.
func (g *Generator) SetSegmentWeights(w segment.Weights) {
	g.segmenter = segment.NewSegmenter(w)
}

// Generate runs every rule over the transaction set and returns the
// combined alerts. An empty input yields no alerts.
func (g *Generator) Generate(txs []model.Transaction, datasetID string) []model.Alert {
	txs = usable(txs)
	if len(txs) == 0 {
		return nil
	}

	triggers := make(map[string][]string)
	for _, seg := range g.segmenter.Evaluate(txs) {
		triggers[seg.Client] = seg.Gatilhos
	}

	var alerts []model.Alert
	alerts = append(alerts, g.rupturaAlerts(txs, datasetID, triggers)...)
	alerts = append(alerts, g.quedaBruscaAlerts(txs, datasetID, triggers)...)
	alerts = append(alerts, g.outlierVolumeAlerts(txs, datasetID, triggers)...)
	return alerts
}

// rupturaAlerts reports every (client, sku) pair with at least two
// orders, annotated by a confidence tier derived from how far past the
// expected replenishment window the client is. The rule deliberately
// never gates on confidence: low-confidence pairs are still worth a
// look, just marked as such.
func (g *Generator) rupturaAlerts(txs []model.Transaction, datasetID string, triggers map[string][]string) []model.Alert {
	var alerts []model.Alert
	for _, grp := range groupByClientSKU(txs) {
		if len(grp.rows) < 2 {
			continue
		}

		dates := make([]time.Time, len(grp.rows))
		for i, tx := range grp.rows {
			dates[i] = tx.Date
		}
		intervals := make([]float64, 0, len(dates)-1)
		for i := 1; i < len(dates); i++ {
			intervals = append(intervals, float64(stats.DaysBetween(dates[i-1], dates[i])))
		}
		if len(intervals) == 0 {
			continue
		}

		prob := stats.RepurchaseProbability(dates, g.RepurchaseWindowDays)
		giro := stats.Median(intervals)
		previsao := giro + float64(g.LogisticsDelayDays)
		diasSemCompra := stats.DaysBetween(dates[len(dates)-1], g.ReferenceDate)
		confianca := min1(float64(diasSemCompra) / maxf(1, previsao))
		icLow, icHigh := stats.ConfidenceInterval(intervals, 0.95)

		insight := fmt.Sprintf(
			"Cliente %s sem comprar %s há %d dias. Giro mediano %.1fd (IC %.0f-%.0f) e prob. recompra %.0f%%.",
			grp.client, grp.sku, diasSemCompra, giro, icLow, icHigh, prob*100,
		)
		action := withTriggers(
			"Contatar cliente e reservar estoque para reposição imediata.",
			"Triggers", triggers[grp.client],
		)

		alerts = append(alerts, model.Alert{
			DatasetID:         datasetID,
			Client:            grp.client,
			SKU:               grp.sku,
			Type:              model.AlertRuptura,
			Insight:           insight,
			Action:            action,
			Reliability:       reliabilityFromScore(confianca),
			SuggestedDeadline: "3 dias",
		})
	}
	return alerts
}

// quedaBruscaAlerts flags clients whose latest monthly revenue drops at
// least 1.5 standard deviations below the history mean.
func (g *Generator) quedaBruscaAlerts(txs []model.Transaction, datasetID string, triggers map[string][]string) []model.Alert {
	var alerts []model.Alert
	byClient := groupByClient(txs)
	for _, client := range sortedKeys(byClient) {
		series := monthlySeries(byClient[client])
		if len(series) < 3 {
			continue
		}

		prior := series[:len(series)-1]
		media := stats.Mean(prior)
		desvio := stats.StdDev(prior)
		if desvio == 0 {
			desvio = 1.0
		}
		ultimo := series[len(series)-1]
		zScore := (ultimo - media) / desvio

		yoy := 0.0
		if len(series) >= 13 {
			base := series[len(series)-13]
			yoy = (ultimo - base) / maxf(1, base) * 100
		}

		if ultimo >= media || zScore > dropZThreshold {
			continue
		}

		drop := (media - ultimo) / maxf(1, media) * 100
		insight := fmt.Sprintf(
			"Receita de %s caiu %.1f%% vs média. Z-score %.2f, YoY %.1f%%",
			client, drop, zScore, yoy,
		)
		action := withTriggers(
			"Planejar ação de recuperação com ofertas direcionadas e revisão de cobertura.",
			"Verificar também", triggers[client],
		)

		alerts = append(alerts, model.Alert{
			DatasetID:         datasetID,
			Client:            client,
			Type:              model.AlertQuedaBrusca,
			Insight:           insight,
			Action:            action,
			Reliability:       reliabilityFromScore(min1(absf(zScore) / 3)),
			SuggestedDeadline: "1 semana",
		})
	}
	return alerts
}

// outlierVolumeAlerts reports the most recent anomalous quantity in any
// (client, sku) series with enough history, annotated with the
// coefficient of variation and the Bayesian survival score of the
// trailing observations.
func (g *Generator) outlierVolumeAlerts(txs []model.Transaction, datasetID string, triggers map[string][]string) []model.Alert {
	var alerts []model.Alert
	for _, grp := range groupByClientSKU(txs) {
		if len(grp.rows) < minOutlierObservations {
			continue
		}

		quantities := make([]float64, len(grp.rows))
		for i, tx := range grp.rows {
			quantities[i] = float64(tx.Qty)
		}

		mask := stats.DetectVolumeOutliers(quantities, g.ZThreshold)
		lastFlagged := -1
		for i, flagged := range mask {
			if flagged {
				lastFlagged = i
			}
		}
		if lastFlagged < 0 {
			continue
		}

		valor := quantities[lastFlagged]
		media := stats.Mean(quantities)
		direcao := "abaixo"
		if valor > media {
			direcao = "acima"
		}
		delta := absf(valor-media) / maxf(1, media)

		diffs := make([]float64, 0, len(quantities)-1)
		for i := 1; i < len(quantities); i++ {
			diffs = append(diffs, quantities[i]-quantities[i-1])
		}
		cv := stats.CoefficientOfVariation(diffs)

		tail := quantities
		if len(tail) > survivalWindow {
			tail = tail[len(tail)-survivalWindow:]
		}
		events := make([]bool, len(tail))
		for i, q := range tail {
			events[i] = q > 0
		}
		survival := stats.SurvivalScore(events, 1, 1)

		insight := fmt.Sprintf(
			"Volume %s da média para %s (último %.0f vs média %.0f). CV giro %.2f, score sobrevivência %.2f.",
			direcao, grp.sku, valor, media, cv, survival,
		)
		action := withTriggers(
			"Validar estoque e alinhar com time de operações/atendimento.",
			"Contexto", triggers[grp.client],
		)

		alerts = append(alerts, model.Alert{
			DatasetID:         datasetID,
			Client:            grp.client,
			SKU:               grp.sku,
			Type:              model.AlertOutlierVolume,
			Insight:           insight,
			Action:            action,
			Reliability:       reliabilityFromScore(min1(delta)),
			SuggestedDeadline: "48 horas",
		})
	}
	return alerts
}

// reliabilityFromScore maps a 0-1 confidence ratio onto the ordinal
// reliability tiers.
func reliabilityFromScore(score float64) model.Reliability {
	switch {
	case score >= 0.75:
		return model.ReliabilityHigh
	case score >= 0.4:
		return model.ReliabilityMedium
	default:
		return model.ReliabilityLow
	}
}

// withTriggers appends segmentation trigger labels to an action string.
func withTriggers(action, label string, gatilhos []string) string {
	if len(gatilhos) == 0 {
		return action
	}
	return action + " " + label + ": " + strings.Join(gatilhos, ", ")
}

type clientSKUGroup struct {
	client string
	sku    string
	rows   []model.Transaction // sorted by date
}

// groupByClientSKU buckets transactions per (client, sku) pair with the
// rows date-sorted and the groups in deterministic order.
func groupByClientSKU(txs []model.Transaction) []clientSKUGroup {
	byKey := make(map[string]*clientSKUGroup)
	for _, tx := range txs {
		if tx.SKU == "" {
			continue
		}
		key := tx.Client + "\x00" + tx.SKU
		grp, ok := byKey[key]
		if !ok {
			grp = &clientSKUGroup{client: tx.Client, sku: tx.SKU}
			byKey[key] = grp
		}
		grp.rows = append(grp.rows, tx)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]clientSKUGroup, 0, len(keys))
	for _, k := range keys {
		grp := byKey[k]
		sort.SliceStable(grp.rows, func(i, j int) bool { return grp.rows[i].Date.Before(grp.rows[j].Date) })
		out = append(out, *grp)
	}
	return out
}

func groupByClient(txs []model.Transaction) map[string][]model.Transaction {
	out := make(map[string][]model.Transaction)
	for _, tx := range txs {
		out[tx.Client] = append(out[tx.Client], tx)
	}
	return out
}

func sortedKeys(m map[string][]model.Transaction) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// monthlySeries buckets revenue by calendar month, chronologically.
func monthlySeries(txs []model.Transaction) []float64 {
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

// usable drops rows without a date or client.
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

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
