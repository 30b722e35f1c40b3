package model

// AlertType identifies the R.I.C.O. rule family that produced an alert.
type AlertType string

const (
	AlertRuptura       AlertType = "ruptura"
	AlertQuedaBrusca   AlertType = "queda_brusca"
	AlertOutlierVolume AlertType = "outlier_volume"
	AlertInatividade   AlertType = "inatividade"
	AlertCrescimento   AlertType = "crescimento"
	AlertOportunidade  AlertType = "oportunidade"
)

// Reliability is the ordinal confidence classification attached to an
// alert. The core only ever returns the ordinal; presentation layers map
// it to a colored marker via Marker.
type Reliability string

const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
)

// Marker renders the reliability as the colored marker used in exported
// workbooks.
func (r Reliability) Marker() string {
	switch r {
	case ReliabilityHigh:
		return "\U0001F534" // red circle
	case ReliabilityMedium:
		return "\U0001F7E1" // yellow circle
	default:
		return "\U0001F535" // blue circle
	}
}

// Alert is a single actionable insight produced by rule evaluation.
// Alerts of the same type are replaced wholesale for a dataset on each
// recomputation (delete-then-insert), never mutated.
type Alert struct {
	DatasetID         string      `json:"dataset_id"`
	Client            string      `json:"client"`
	SKU               string      `json:"sku,omitempty"`
	Type              AlertType   `json:"type"`
	Insight           string      `json:"insight"`
	Action            string      `json:"action"`
	Reliability       Reliability `json:"reliability"`
	SuggestedDeadline string      `json:"suggested_deadline"`
}
