// Package report assembles the named output tables of an analysis run
// and renders them into an XLSX workbook. The sheet names and column
// sets are a stable contract consumed by the commercial team's
// templates; do not rename them without coordinating downstream.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/ipro-analytics/ipro-cli/internal/model"
)

// Contract sheet names.
const (
	SheetClients      = "Identificação do Cliente"
	SheetHistory      = "Histórico Comercial"
	SheetMix          = "Inteligência de Mix"
	SheetRelationship = "Relacional e Atendimento"
	SheetBehavior     = "Inteligência Comportamental"
	SheetInsights     = "Insights_Acionaveis"
	SheetAlerts       = "Alertas RICO"
)

const dateLayout = "02/01/2006"

// Table is one named output table: a header plus stringified rows.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Build joins customer analytics, product analytics, and general KPIs
// into the five contract tables. The transactions are needed for the
// monthly commercial history; delayDays feeds the replenishment window
// projection.
func Build(
	customers []model.CustomerAnalytics,
	products []model.ProductAnalytics,
	kpis model.GeneralKPIs,
	txs []model.Transaction,
	delayDays int,
) []Table {
	return []Table{
		clientTable(customers),
		historyTable(txs),
		mixTable(products),
		relationshipTable(customers, delayDays),
		behaviorTable(kpis, customers),
	}
}

func clientTable(customers []model.CustomerAnalytics) Table {
	t := Table{
		Name: SheetClients,
		Columns: []string{
			"client", "recency", "frequency", "monetary", "avg_ticket",
			"gm_cliente", "tier", "segment", "city", "uf", "last_order",
			"rfm_score", "segment_weight",
		},
	}
	sorted := make([]model.CustomerAnalytics, len(customers))
	copy(sorted, customers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RFMScore > sorted[j].RFMScore })

	for _, c := range sorted {
		t.Rows = append(t.Rows, []string{
			c.Client,
			fmt.Sprintf("%d", c.Recency),
			fmt.Sprintf("%d", c.Frequency),
			money(c.Monetary),
			money(c.AvgTicket),
			fmt.Sprintf("%.1f", c.GMCliente),
			string(c.Tier),
			c.Segment,
			c.City,
			c.UF,
			formatDate(c.LastOrder),
			fmt.Sprintf("%.4f", c.RFMScore),
			fmt.Sprintf("%.4f", c.SegmentWeight),
		})
	}
	return t
}

// historyTable aggregates revenue, orders, clients, and volume by
// calendar month.
func historyTable(txs []model.Transaction) Table {
	t := Table{
		Name:    SheetHistory,
		Columns: []string{"periodo", "receita_total", "pedidos", "clientes", "volume", "ticket_medio"},
	}

	type bucket struct {
		revenue float64
		orders  map[string]struct{}
		clients map[string]struct{}
		volume  int
	}
	byMonth := make(map[string]*bucket)
	for _, tx := range txs {
		if tx.Date.IsZero() {
			continue
		}
		key := tx.Date.Format("2006-01")
		b, ok := byMonth[key]
		if !ok {
			b = &bucket{orders: make(map[string]struct{}), clients: make(map[string]struct{})}
			byMonth[key] = b
		}
		b.revenue += tx.Subtotal
		b.orders[tx.OrderID] = struct{}{}
		b.clients[tx.Client] = struct{}{}
		b.volume += tx.Qty
	}

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	for _, m := range months {
		b := byMonth[m]
		ticket := 0.0
		if len(b.orders) > 0 {
			ticket = b.revenue / float64(len(b.orders))
		}
		t.Rows = append(t.Rows, []string{
			m,
			money(b.revenue),
			fmt.Sprintf("%d", len(b.orders)),
			fmt.Sprintf("%d", len(b.clients)),
			fmt.Sprintf("%d", b.volume),
			money(ticket),
		})
	}
	return t
}

func mixTable(products []model.ProductAnalytics) Table {
	t := Table{
		Name: SheetMix,
		Columns: []string{
			"sku", "product", "orders", "qty", "revenue", "avg_ticket",
			"turnover_median", "hero_mix", "growth_zscore", "growth_yoy",
		},
	}
	sorted := make([]model.ProductAnalytics, len(products))
	copy(sorted, products)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Revenue > sorted[j].Revenue })

	for _, p := range sorted {
		t.Rows = append(t.Rows, []string{
			p.SKU,
			p.Product,
			fmt.Sprintf("%d", p.Orders),
			fmt.Sprintf("%d", p.Qty),
			money(p.Revenue),
			money(p.AvgTicket),
			fmt.Sprintf("%.1f", p.TurnoverMedian),
			fmt.Sprintf("%t", p.HeroMix),
			fmt.Sprintf("%.2f", p.GrowthZScore),
			fmt.Sprintf("%.1f", p.GrowthYoY),
		})
	}
	return t
}

// relationshipTable projects the next purchase window per client: median
// turnover plus the logistics delay, anchored on the last order.
func relationshipTable(customers []model.CustomerAnalytics, delayDays int) Table {
	t := Table{
		Name: SheetRelationship,
		Columns: []string{
			"client", "segment", "city", "uf", "gm_cliente", "recency",
			"frequency", "last_order", "janela_prevista_dias", "proxima_janela",
		},
	}
	for _, c := range customers {
		window := c.GMCliente + float64(delayDays)
		next := time.Time{}
		if !c.LastOrder.IsZero() {
			next = c.LastOrder.AddDate(0, 0, int(window))
		}
		t.Rows = append(t.Rows, []string{
			c.Client,
			c.Segment,
			c.City,
			c.UF,
			fmt.Sprintf("%.1f", c.GMCliente),
			fmt.Sprintf("%d", c.Recency),
			fmt.Sprintf("%d", c.Frequency),
			formatDate(c.LastOrder),
			fmt.Sprintf("%.0f", window),
			formatDate(next),
		})
	}
	return t
}

// behaviorTable lists the dataset-wide KPI indicators plus the tier
// distribution.
func behaviorTable(kpis model.GeneralKPIs, customers []model.CustomerAnalytics) Table {
	t := Table{
		Name:    SheetBehavior,
		Columns: []string{"indicador", "valor"},
	}
	t.Rows = append(t.Rows,
		[]string{"Total de clientes", fmt.Sprintf("%d", kpis.TotalCustomers)},
		[]string{"Total de SKUs", fmt.Sprintf("%d", kpis.TotalProducts)},
		[]string{"Total de pedidos", fmt.Sprintf("%d", kpis.TotalOrders)},
		[]string{"Ticket médio", money(kpis.AvgTicket)},
		[]string{"Ruptura projetada média (dias)", fmt.Sprintf("%.2f", kpis.RupturaProjetada)},
	)

	tierCounts := make(map[model.Tier]int)
	for _, c := range customers {
		tierCounts[c.Tier]++
	}
	for _, tier := range []model.Tier{model.TierHero, model.TierGrowth, model.TierManter, model.TierRisco} {
		if n, ok := tierCounts[tier]; ok {
			t.Rows = append(t.Rows, []string{"Clientes " + string(tier), fmt.Sprintf("%d", n)})
		}
	}
	return t
}

// AlertTable renders alerts as the "Alertas RICO" table, reliability
// shown as the colored marker.
func AlertTable(alerts []model.Alert) Table {
	t := Table{
		Name:    SheetAlerts,
		Columns: []string{"client", "sku", "type", "insight", "action", "reliability", "suggested_deadline"},
	}
	for _, a := range alerts {
		t.Rows = append(t.Rows, []string{
			a.Client,
			a.SKU,
			string(a.Type),
			a.Insight,
			a.Action,
			a.Reliability.Marker(),
			a.SuggestedDeadline,
		})
	}
	return t
}

// InsightTable renders alerts as the actionable-insights table, one row
// per alert without the SKU breakdown.
func InsightTable(alerts []model.Alert) Table {
	t := Table{
		Name:    SheetInsights,
		Columns: []string{"client", "type", "insight", "action", "reliability", "suggested_deadline"},
	}
	for _, a := range alerts {
		t.Rows = append(t.Rows, []string{
			a.Client,
			string(a.Type),
			a.Insight,
			a.Action,
			string(a.Reliability),
			a.SuggestedDeadline,
		})
	}
	return t
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
