package models

import "time"

// SnapshotRecord is the per-company projection captured before and after a scenario.
type SnapshotRecord struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	DirectRisk     float64 `json:"direct_risk"`
	TotalRisk      float64 `json:"total_risk"`
	DollarizedRisk float64 `json:"dollarized_risk"`
	Sector         string  `json:"sector"`
	Location       string  `json:"location"`
}

// Snapshot is an ordered list of company records.
type Snapshot struct {
	TakenAt time.Time
	Records []SnapshotRecord
}

// DiffRow is one material change between two snapshots.
type DiffRow struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	RiskBefore float64 `json:"risk_before"`
	RiskAfter  float64 `json:"risk_after"`
	Delta      float64 `json:"delta"`
	Sector     string  `json:"sector"`
	Location   string  `json:"location"`
}

// DiffReport is the tabular result of comparing two snapshots.
type DiffReport struct {
	Rows []DiffRow `json:"rows"`
	// Removed counts companies present before but absent after. They appear
	// in Rows only when the diff was asked to report removals.
	Removed int `json:"removed"`
}
