// Package segment scores PDVs (client outlets) against their cohort for
// commercial prioritization. Each client gets a behavior vector (mix
// breadth, volume, purchase frequency, median turnover) normalized by
// the cohort mean and collapsed into a weighted score, plus trigger
// labels for the conditions worth a seller's attention.
package segment

import (
	"fmt"
	"sort"

	"github.com/ipro-analytics/ipro-cli/internal/model"
	"github.com/ipro-analytics/ipro-cli/internal/stats"
)

// SegmentoPDV is the transient per-client segmentation result. It is
// computed inside an analysis run to enrich alert text and is not
// persisted independently.
type SegmentoPDV struct {
	Client        string   `json:"client"`
	Score         float64  `json:"score"`
	Justificativa string   `json:"justificativa"`
	Gatilhos      []string `json:"gatilhos"`
}

// Weights controls the relative importance of each behavior component.
type Weights struct {
	Mix       float64
	Volume    float64
	Frequency float64
}

// DefaultWeights is the standard mix/volume/frequency weighting.
var DefaultWeights = Weights{Mix: 0.35, Volume: 0.35, Frequency: 0.30}

// Trigger labels emitted when a client deviates from its cohort.
const (
	TriggerMixBelowCluster = "mix abaixo do cluster"
	TriggerMissingSKU      = "ausência anômala de SKU esperado"
	TriggerSlowTurnover    = "giro lento em relação ao cluster"
)

// Segmenter builds behavior vectors and scores PDVs.
type Segmenter struct {
	weights Weights
}

// NewSegmenter creates a Segmenter. Zero-valued weights fall back to
// DefaultWeights.
func NewSegmenter(w Weights) *Segmenter {
	if w.Mix == 0 && w.Volume == 0 && w.Frequency == 0 {
		w = DefaultWeights
	}
	return &Segmenter{weights: w}
}

// vector is one client's behavior profile.
type vector struct {
	client string
	mix    float64 // distinct SKU count
	volume float64 // total quantity
	freq   float64 // orders per month
	giro   float64 // median inter-purchase interval in days
}

// Evaluate scores every client in the transaction set, sorted descending
// by score (stable on ties). An empty input yields an empty result.
func (s *Segmenter) Evaluate(txs []model.Transaction) []SegmentoPDV {
	vectors := buildVectors(txs)
	if len(vectors) == 0 {
		return nil
	}

	var meanMix, meanVolume, meanFreq, meanGiro float64
	mixes := make([]float64, len(vectors))
	volumes := make([]float64, len(vectors))
	for i, v := range vectors {
		meanMix += v.mix
		meanVolume += v.volume
		meanFreq += v.freq
		meanGiro += v.giro
		mixes[i] = v.mix
		volumes[i] = v.volume
	}
	n := float64(len(vectors))
	meanMix /= n
	meanVolume /= n
	meanFreq /= n
	meanGiro /= n

	medianMix := stats.Median(mixes)
	medianVolume := stats.Median(volumes)

	out := make([]SegmentoPDV, 0, len(vectors))
	for _, v := range vectors {
		normMix := v.mix / max1(meanMix)
		normVolume := v.volume / max1(meanVolume)
		normFreq := v.freq / max1(meanFreq)

		score := normMix*s.weights.Mix + normVolume*s.weights.Volume + normFreq*s.weights.Frequency

		var gatilhos []string
		if v.mix < medianMix {
			gatilhos = append(gatilhos, TriggerMixBelowCluster)
		}
		if v.volume < medianVolume*0.5 {
			gatilhos = append(gatilhos, TriggerMissingSKU)
		}
		if v.giro > meanGiro*1.5 {
			gatilhos = append(gatilhos, TriggerSlowTurnover)
		}

		out = append(out, SegmentoPDV{
			Client: v.client,
			Score:  stats.Round4(score),
			Justificativa: fmt.Sprintf("Mix %.0f SKUs, volume %.0f itens, freq. %.2f/mês",
				v.mix, v.volume, v.freq),
			Gatilhos: gatilhos,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// buildVectors groups transactions by client and derives each behavior
// vector. Clients iterate in sorted order so results are deterministic.
func buildVectors(txs []model.Transaction) []vector {
	byClient := make(map[string][]model.Transaction)
	for _, tx := range txs {
		if tx.Client == "" || tx.Date.IsZero() {
			continue
		}
		byClient[tx.Client] = append(byClient[tx.Client], tx)
	}

	clients := make([]string, 0, len(byClient))
	for c := range byClient {
		clients = append(clients, c)
	}
	sort.Strings(clients)

	vectors := make([]vector, 0, len(clients))
	for _, client := range clients {
		group := byClient[client]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Date.Before(group[j].Date) })

		orderIDs := make(map[string]struct{})
		skus := make(map[string]struct{})
		var volume float64
		for _, tx := range group {
			orderIDs[tx.OrderID] = struct{}{}
			if tx.SKU != "" {
				skus[tx.SKU] = struct{}{}
			}
			volume += float64(tx.Qty)
		}

		deltas := make([]float64, 0, len(group))
		for i := 1; i < len(group); i++ {
			deltas = append(deltas, float64(stats.DaysBetween(group[i-1].Date, group[i].Date)))
		}
		giro := 0.0
		if len(deltas) > 0 {
			giro = stats.Median(deltas)
		}

		elapsedMonths := float64(stats.DaysBetween(group[0].Date, group[len(group)-1].Date)) / 30.0
		freq := float64(len(orderIDs)) / max1(elapsedMonths)

		vectors = append(vectors, vector{
			client: client,
			mix:    float64(len(skus)),
			volume: volume,
			freq:   freq,
			giro:   giro,
		})
	}
	return vectors
}

// max1 clamps a denominator to at least 1 so normalized ratios stay
// bounded for small cohorts.
func max1(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}
