// Package model defines the typed records exchanged between the
// ingestion, analytics, and persistence layers.
package model

import "time"

// DatasetStatus tracks the processing state of an uploaded dataset.
type DatasetStatus string

const (
	DatasetProcessing DatasetStatus = "processing"
	DatasetCompleted  DatasetStatus = "completed"
	DatasetFailed     DatasetStatus = "failed"
)

// Dataset identifies one ingested sales report file.
type Dataset struct {
	ID        string        `json:"id"`
	Filename  string        `json:"filename"`
	Hash      string        `json:"hash"` // sha256 of the source file, dedupes reprocessing
	Rows      int           `json:"rows"`
	Status    DatasetStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// CustomerRecord is one row of the customer master registry, keyed by
// the normalized client name. Used to enrich transactions whose source
// report lacks segment or location columns.
type CustomerRecord struct {
	Client  string `json:"client"`
	Segment string `json:"segment,omitempty"`
	City    string `json:"city,omitempty"`
	UF      string `json:"uf,omitempty"`
}

// Transaction is a single normalized sales order line. Optional fields
// (Seller, Category, Segment, City, UF) default to the empty string when
// the source report does not carry them.
type Transaction struct {
	DatasetID string    `json:"dataset_id"`
	Date      time.Time `json:"date"`
	OrderID   string    `json:"order_id"`
	Client    string    `json:"client"`
	Seller    string    `json:"seller,omitempty"`
	SKU       string    `json:"sku"`
	Product   string    `json:"product"`
	Price     float64   `json:"price"`
	Qty       int       `json:"qty"`
	Subtotal  float64   `json:"subtotal"`
	Category  string    `json:"category,omitempty"`
	Segment   string    `json:"segment,omitempty"`
	City      string    `json:"city,omitempty"`
	UF        string    `json:"uf,omitempty"`
}
