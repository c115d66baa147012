package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/domain/repository"
	"RiskGraph/pkg/clickhouse"
)

// archiveChunkSize is the number of rows per multi-row INSERT.
const archiveChunkSize = 2000

// ClickHouseSnapshotArchive implements SnapshotArchive for ClickHouse.
type ClickHouseSnapshotArchive struct {
	db             *sql.DB
	snapshotsTable string
	diffsTable     string
	now            func() time.Time
}

// NewClickHouseSnapshotArchive creates the archive over database.
func NewClickHouseSnapshotArchive(db *sql.DB, database string) repository.SnapshotArchive {
	if database == "" {
		database = "riskgraph"
	}
	return &ClickHouseSnapshotArchive{
		db:             db,
		snapshotsTable: database + "." + clickhouse.SnapshotsTable,
		diffsTable:     database + "." + clickhouse.DiffsTable,
		now:            time.Now,
	}
}

// Init checks the connection. Tables are created by clickhouse.Client.InitSchema.
func (a *ClickHouseSnapshotArchive) Init(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("clickhouse archive: %w", err)
	}
	return nil
}

func (a *ClickHouseSnapshotArchive) StoreSnapshot(ctx context.Context, runID, label string, snap models.Snapshot) error {
	takenAt := snap.TakenAt
	if takenAt.IsZero() {
		takenAt = a.now()
	}
	rows := make([][]interface{}, 0, len(snap.Records))
	for _, r := range snap.Records {
		rows = append(rows, []interface{}{
			runID, label, takenAt.UTC(), r.ID, r.Name,
			r.DirectRisk, r.TotalRisk, r.DollarizedRisk, r.Sector, r.Location,
		})
	}
	return a.insert(ctx, a.snapshotsTable,
		"run_id, label, taken_at, id, name, direct_risk, total_risk, dollarized_risk, sector, location", rows)
}

func (a *ClickHouseSnapshotArchive) StoreDiff(ctx context.Context, runID string, kind models.ScenarioKind, report models.DiffReport) error {
	createdAt := a.now().UTC()
	rows := make([][]interface{}, 0, len(report.Rows))
	for _, r := range report.Rows {
		rows = append(rows, []interface{}{
			runID, string(kind), createdAt, r.ID, r.Name,
			r.RiskBefore, r.RiskAfter, r.Delta, r.Sector, r.Location,
		})
	}
	return a.insert(ctx, a.diffsTable,
		"run_id, kind, created_at, id, name, risk_before, risk_after, delta, sector, location", rows)
}

// insert writes rows with multi-row VALUES statements to reduce round-trips.
func (a *ClickHouseSnapshotArchive) insert(ctx context.Context, table, columns string, rows [][]interface{}) error {
	for start := 0; start < len(rows); start += archiveChunkSize {
		end := start + archiveChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		q, args := buildInsert(table, columns, rows[start:end])
		if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func buildInsert(table, columns string, rows [][]interface{}) (string, []interface{}) {
	if len(rows) == 0 {
		return "", nil
	}
	width := len(rows[0])
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	values := make([]string, len(rows))
	args := make([]interface{}, 0, len(rows)*width)
	for i, r := range rows {
		values[i] = tuple
		args = append(args, r...)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, columns, strings.Join(values, ",")), args
}

func (a *ClickHouseSnapshotArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *ClickHouseSnapshotArchive) Close() error {
	return nil // managed by pkg
}
