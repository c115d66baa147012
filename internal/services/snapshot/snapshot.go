// Package snapshot captures per-company risk projections and compares them.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/graph"
)

// NotAvailable fills missing sector, location and name values.
const NotAvailable = "N/A"

// Project captures every company ordered by id.
func Project(g *graph.Graph, now time.Time) models.Snapshot {
	ids := g.Nodes(models.KindCompany)
	records := make([]models.SnapshotRecord, 0, len(ids))
	for _, id := range ids {
		n := g.Node(id)
		records = append(records, models.SnapshotRecord{
			ID:             n.Key,
			Name:           n.Name,
			DirectRisk:     n.DirectRisk,
			TotalRisk:      n.TotalRisk,
			DollarizedRisk: n.DollarizedRisk,
			Sector:         orNA(n.Sector),
			Location:       orNA(n.Location),
		})
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return models.Snapshot{TakenAt: now, Records: records}
}

// Write stores the records as indented JSON, creating parent directories.
func Write(path string, snap models.Snapshot) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	records := snap.Records
	if records == nil {
		records = []models.SnapshotRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

// Read loads a snapshot file. A missing, empty or undecodable file is ErrMalformedSnapshot.
func Read(path string) ([]models.SnapshotRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found", models.ErrMalformedSnapshot, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", models.ErrMalformedSnapshot, path)
	}
	var records []models.SnapshotRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrMalformedSnapshot, path, err)
	}
	return records, nil
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}
