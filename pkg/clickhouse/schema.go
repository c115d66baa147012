package clickhouse

import "fmt"

// Table names of the scenario archive.
const (
	SnapshotsTable = "company_risk_snapshots"
	DiffsTable     = "scenario_diffs"
)

// Schema returns the idempotent DDL for the scenario archive in database.
func Schema(database string) []string {
	if database == "" {
		database = "riskgraph"
	}
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	run_id          String,
	label           LowCardinality(String),
	taken_at        DateTime64(3, 'UTC'),
	id              String,
	name            String,
	direct_risk     Float64,
	total_risk      Float64,
	dollarized_risk Float64,
	sector          LowCardinality(String),
	location        LowCardinality(String)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(taken_at)
ORDER BY (run_id, label, id)`, database, SnapshotsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	run_id      String,
	kind        LowCardinality(String),
	created_at  DateTime64(3, 'UTC'),
	id          String,
	name        String,
	risk_before Float64,
	risk_after  Float64,
	delta       Float64,
	sector      LowCardinality(String),
	location    LowCardinality(String)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(created_at)
ORDER BY (run_id, id)`, database, DiffsTable),
	}
}
