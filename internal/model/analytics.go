package model

import "time"

// Tier is the RFM tier a customer lands in.
type Tier string

const (
	TierHero   Tier = "hero"
	TierGrowth Tier = "growth"
	TierManter Tier = "manter"
	TierRisco  Tier = "risco"
)

// CustomerAnalytics holds the derived RFM metrics for one client within a
// dataset. Recomputed wholesale on every analysis run; never mutated in
// place.
type CustomerAnalytics struct {
	DatasetID     string    `json:"dataset_id"`
	Client        string    `json:"client"`
	Recency       int       `json:"recency"`   // days since last order
	Frequency     int       `json:"frequency"` // distinct order count
	Monetary      float64   `json:"monetary"`
	AvgTicket     float64   `json:"avg_ticket"`
	GMCliente     float64   `json:"gm_cliente"` // median inter-purchase interval in days
	Tier          Tier      `json:"tier"`
	Segment       string    `json:"segment,omitempty"`
	City          string    `json:"city,omitempty"`
	UF            string    `json:"uf,omitempty"`
	LastOrder     time.Time `json:"last_order"`
	RFMScore      float64   `json:"rfm_score"`
	SegmentWeight float64   `json:"segment_weight"`
}

// ProductAnalytics holds the derived metrics for one SKU within a dataset.
type ProductAnalytics struct {
	DatasetID      string  `json:"dataset_id"`
	SKU            string  `json:"sku"`
	Product        string  `json:"product"`
	Orders         int     `json:"orders"`
	Qty            int     `json:"qty"`
	Revenue        float64 `json:"revenue"`
	AvgTicket      float64 `json:"avg_ticket"`
	TurnoverMedian float64 `json:"turnover_median"`
	HeroMix        bool    `json:"hero_mix"` // revenue at or above the 80th percentile
	GrowthZScore   float64 `json:"growth_zscore"`
	GrowthYoY      float64 `json:"growth_yoy"`
}

// GeneralKPIs aggregates dataset-wide indicators. The zero value is the
// documented result for an empty transaction set.
type GeneralKPIs struct {
	TotalRevenue     float64   `json:"total_revenue"`
	TotalCustomers   int       `json:"total_customers"`
	TotalProducts    int       `json:"total_products"`
	TotalOrders      int       `json:"total_orders"`
	AvgTicket        float64   `json:"avg_ticket"`
	AvgRecency       float64   `json:"avg_recency"`
	AvgFrequency     float64   `json:"avg_frequency"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
	PeriodDays       int       `json:"period_days"`
	RupturaProjetada float64   `json:"ruptura_projetada_media"` // mean signed day offset of projected stock-outs
}
