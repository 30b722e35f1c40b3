package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipro-analytics/ipro-cli/internal/model"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return base.AddDate(0, 0, n) }

func tx(client, sku, orderID string, date time.Time, qty int, subtotal float64) model.Transaction {
	return model.Transaction{
		DatasetID: "d1",
		Client:    client,
		SKU:       sku,
		Product:   sku,
		OrderID:   orderID,
		Date:      date,
		Qty:       qty,
		Subtotal:  subtotal,
	}
}

func newGen() *Generator {
	return NewGenerator(day(90), 20, 90, 3.0)
}

func alertsOfType(alerts []model.Alert, typ model.AlertType) []model.Alert {
	var out []model.Alert
	for _, a := range alerts {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func TestGenerate_Empty(t *testing.T) {
	assert.Empty(t, newGen().Generate(nil, "d1"))
}

func TestRuptura_EmitsForQualifyingPairs(t *testing.T) {
	txs := []model.Transaction{
		tx("Cliente 1", "SKU-A", "1", day(0), 10, 100),
		tx("Cliente 1", "SKU-A", "2", day(15), 8, 90),
		tx("Cliente 2", "SKU-B", "3", day(30), 5, 60),
		tx("Cliente 2", "SKU-B", "4", day(60), 5, 70),
	}
	rupturas := alertsOfType(newGen().Generate(txs, "d1"), model.AlertRuptura)
	require.Len(t, rupturas, 2)

	// Cliente 1: 75 days without buying against a 35-day expected window.
	c1 := rupturas[0]
	assert.Equal(t, "Cliente 1", c1.Client)
	assert.Equal(t, "SKU-A", c1.SKU)
	assert.Equal(t, model.ReliabilityHigh, c1.Reliability)
	assert.Contains(t, c1.Insight, "sem comprar SKU-A há 75 dias")
	assert.Contains(t, c1.Insight, "Giro mediano 15.0d")
	assert.Equal(t, "3 dias", c1.SuggestedDeadline)

	// Cliente 2: 30 of 50 expected days elapsed -> medium confidence.
	c2 := rupturas[1]
	assert.Equal(t, model.ReliabilityMedium, c2.Reliability)
}

func TestRuptura_SingleOrderSkipped(t *testing.T) {
	txs := []model.Transaction{tx("Cliente 1", "SKU-A", "1", day(0), 10, 100)}
	alerts := newGen().Generate(txs, "d1")
	assert.Empty(t, alertsOfType(alerts, model.AlertRuptura))
}

func TestRuptura_AppendsSegmentationTriggers(t *testing.T) {
	// "Lento" buys one SKU slowly at low volume next to a strong cohort
	// peer, so segmentation triggers fire and land in the action text.
	txs := []model.Transaction{
		tx("Forte", "SKU-A", "1", day(80), 50, 500),
		tx("Forte", "SKU-B", "2", day(85), 40, 400),
		tx("Forte", "SKU-C", "3", day(88), 60, 600),
		tx("Lento", "SKU-A", "4", day(0), 1, 10),
		tx("Lento", "SKU-A", "5", day(80), 1, 10),
	}
	rupturas := alertsOfType(newGen().Generate(txs, "d1"), model.AlertRuptura)
	require.NotEmpty(t, rupturas)

	var lento model.Alert
	for _, a := range rupturas {
		if a.Client == "Lento" {
			lento = a
		}
	}
	require.Equal(t, "Lento", lento.Client)
	assert.Contains(t, lento.Action, "Triggers: ")
	assert.Contains(t, lento.Action, "mix abaixo do cluster")
}

func TestQuedaBrusca_EmitsOnSharpDrop(t *testing.T) {
	var txs []model.Transaction
	for m, revenue := range []float64{100, 100, 100, 10} {
		txs = append(txs, tx("Cliente 1", "SKU-A", string(rune('1'+m)), base.AddDate(0, m, 0), 1, revenue))
	}
	quedas := alertsOfType(newGen().Generate(txs, "d1"), model.AlertQuedaBrusca)
	require.Len(t, quedas, 1)

	q := quedas[0]
	assert.Equal(t, "Cliente 1", q.Client)
	assert.Empty(t, q.SKU)
	assert.Equal(t, model.ReliabilityHigh, q.Reliability)
	assert.Contains(t, q.Insight, "caiu 90.0% vs média")
	assert.Equal(t, "1 semana", q.SuggestedDeadline)
}

func TestQuedaBrusca_StableRevenueSilent(t *testing.T) {
	var txs []model.Transaction
	for m, revenue := range []float64{100, 105, 95, 100} {
		txs = append(txs, tx("Cliente 1", "SKU-A", string(rune('1'+m)), base.AddDate(0, m, 0), 1, revenue))
	}
	alerts := newGen().Generate(txs, "d1")
	assert.Empty(t, alertsOfType(alerts, model.AlertQuedaBrusca))
}

func TestQuedaBrusca_NeedsThreeMonths(t *testing.T) {
	txs := []model.Transaction{
		tx("Cliente 1", "SKU-A", "1", base, 1, 100),
		tx("Cliente 1", "SKU-A", "2", base.AddDate(0, 1, 0), 1, 1),
	}
	alerts := newGen().Generate(txs, "d1")
	assert.Empty(t, alertsOfType(alerts, model.AlertQuedaBrusca))
}

func TestOutlierVolume_FlagsSpike(t *testing.T) {
	gen := NewGenerator(day(90), 20, 90, 2.0)
	txs := []model.Transaction{
		tx("Cliente 1", "SKU-A", "1", day(0), 10, 100),
		tx("Cliente 1", "SKU-A", "2", day(10), 11, 110),
		tx("Cliente 1", "SKU-A", "3", day(20), 12, 120),
		tx("Cliente 1", "SKU-A", "4", day(30), 100, 1000),
		tx("Cliente 1", "SKU-A", "5", day(40), 11, 110),
		tx("Cliente 1", "SKU-A", "6", day(50), 9, 90),
	}
	outliers := alertsOfType(gen.Generate(txs, "d1"), model.AlertOutlierVolume)
	require.Len(t, outliers, 1)

	o := outliers[0]
	assert.Equal(t, "SKU-A", o.SKU)
	assert.Equal(t, model.ReliabilityHigh, o.Reliability)
	assert.Contains(t, o.Insight, "Volume acima da média")
	assert.Contains(t, o.Insight, "último 100")
	assert.Equal(t, "48 horas", o.SuggestedDeadline)
}

func TestOutlierVolume_NeedsFiveObservations(t *testing.T) {
	gen := NewGenerator(day(90), 20, 90, 2.0)
	txs := []model.Transaction{
		tx("Cliente 1", "SKU-A", "1", day(0), 10, 100),
		tx("Cliente 1", "SKU-A", "2", day(10), 11, 110),
		tx("Cliente 1", "SKU-A", "3", day(20), 12, 120),
		tx("Cliente 1", "SKU-A", "4", day(30), 100, 1000),
	}
	alerts := gen.Generate(txs, "d1")
	assert.Empty(t, alertsOfType(alerts, model.AlertOutlierVolume))
}

func TestOutlierVolume_NoOutlierSilent(t *testing.T) {
	txs := []model.Transaction{
		tx("Cliente 1", "SKU-A", "1", day(0), 10, 100),
		tx("Cliente 1", "SKU-A", "2", day(10), 11, 110),
		tx("Cliente 1", "SKU-A", "3", day(20), 12, 120),
		tx("Cliente 1", "SKU-A", "4", day(30), 10, 100),
		tx("Cliente 1", "SKU-A", "5", day(40), 11, 110),
	}
	alerts := newGen().Generate(txs, "d1")
	assert.Empty(t, alertsOfType(alerts, model.AlertOutlierVolume))
}

func TestReliabilityFromScore(t *testing.T) {
	assert.Equal(t, model.ReliabilityHigh, reliabilityFromScore(0.75))
	assert.Equal(t, model.ReliabilityMedium, reliabilityFromScore(0.5))
	assert.Equal(t, model.ReliabilityLow, reliabilityFromScore(0.39))
}

func TestGenerate_RulesIndependent(t *testing.T) {
	// A dataset rich enough to fire ruptura without qualifying for the
	// other rules still produces the ruptura alerts alone.
	txs := []model.Transaction{
		tx("Cliente 1", "SKU-A", "1", day(0), 10, 100),
		tx("Cliente 1", "SKU-A", "2", day(15), 8, 90),
	}
	alerts := newGen().Generate(txs, "d1")
	assert.NotEmpty(t, alertsOfType(alerts, model.AlertRuptura))
	assert.Empty(t, alertsOfType(alerts, model.AlertQuedaBrusca))
	assert.Empty(t, alertsOfType(alerts, model.AlertOutlierVolume))
}
