package snapshot

import (
	"github.com/shopspring/decimal"

	"RiskGraph/internal/domain/models"
)

// NoiseFloor is the smallest dollarized change reported. Equal is not enough.
var NoiseFloor = decimal.RequireFromString("0.01")

type DiffOptions struct {
	// ReportRemoved lists companies absent from after as full negative deltas.
	ReportRemoved bool
}

// Diff joins two snapshots by id. Rows follow the order of after; a company
// without a before record counts as all zero. Amounts are rounded to cents.
// Comparison happens on the decimal form of each float so 0.01 stays 0.01.
func Diff(before, after []models.SnapshotRecord, opts DiffOptions) models.DiffReport {
	prev := make(map[string]models.SnapshotRecord, len(before))
	for _, r := range before {
		prev[r.ID] = r
	}

	var report models.DiffReport
	for _, cur := range dedupe(after) {
		if row, ok := diffRow(cur.ID, cur, prev[cur.ID].DollarizedRisk, cur.DollarizedRisk); ok {
			report.Rows = append(report.Rows, row)
		}
	}

	inAfter := make(map[string]struct{}, len(after))
	for _, r := range after {
		inAfter[r.ID] = struct{}{}
	}
	for _, old := range dedupe(before) {
		if _, ok := inAfter[old.ID]; ok {
			continue
		}
		report.Removed++
		if !opts.ReportRemoved {
			continue
		}
		if row, ok := diffRow(old.ID, old, old.DollarizedRisk, 0); ok {
			report.Rows = append(report.Rows, row)
		}
	}
	return report
}

func diffRow(id string, ref models.SnapshotRecord, before, after float64) (models.DiffRow, bool) {
	b := decimal.NewFromFloat(before)
	a := decimal.NewFromFloat(after)
	delta := a.Sub(b)
	if !delta.Abs().GreaterThan(NoiseFloor) {
		return models.DiffRow{}, false
	}
	return models.DiffRow{
		ID:         id,
		Name:       orNA(ref.Name),
		RiskBefore: b.Round(2).InexactFloat64(),
		RiskAfter:  a.Round(2).InexactFloat64(),
		Delta:      delta.Round(2).InexactFloat64(),
		Sector:     orNA(ref.Sector),
		Location:   orNA(ref.Location),
	}, true
}

// dedupe keeps one record per id: the last one, at the position of the first.
func dedupe(records []models.SnapshotRecord) []models.SnapshotRecord {
	pos := make(map[string]int, len(records))
	out := make([]models.SnapshotRecord, 0, len(records))
	for _, r := range records {
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// DiffFiles reads both snapshot files and diffs them.
func DiffFiles(beforePath, afterPath string, opts DiffOptions) (models.DiffReport, error) {
	before, err := Read(beforePath)
	if err != nil {
		return models.DiffReport{}, err
	}
	after, err := Read(afterPath)
	if err != nil {
		return models.DiffReport{}, err
	}
	return Diff(before, after, opts), nil
}
