package repository

import (
	"context"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/graph"
)

// GraphStore is the backing store of the ownership network.
type GraphStore interface {
	// Load returns a detached copy of the whole network.
	Load(ctx context.Context) (*graph.Graph, error)
	// SaveRisk writes the derived risk fields of every node back to the store.
	SaveRisk(ctx context.Context, g *graph.Graph) error
	// Mutate runs fn in one transaction. Any error rolls back every change fn made.
	Mutate(ctx context.Context, fn func(ctx context.Context, tx GraphTx) error) error
	Health(ctx context.Context) error // ping
	Close() error
}

// ExposureMatch is one EXPOSED_TO edge selected by a risk event.
type ExposureMatch struct {
	CompanyID string
	Weight    float64
}

// GraphTx is the structural surface scenario operators work through.
type GraphTx interface {
	CompanyExists(ctx context.Context, id string) (bool, error)
	OwnerExists(ctx context.Context, kind models.NodeKind, id string) (bool, error)
	// CountOwners counts incoming OWNS edges of any owner kind.
	CountOwners(ctx context.Context, targetID string) (int, error)
	DeleteOwnersOf(ctx context.Context, targetID string) (int, error)
	MergeOwnership(ctx context.Context, ownerKind models.NodeKind, ownerID, targetID string, percent float64, year int) error
	DeleteOwnership(ctx context.Context, ownerKind models.NodeKind, ownerID, targetID string) (bool, error)
	SetCompanyRole(ctx context.Context, id string, role models.Role) error
	FindExposures(ctx context.Context, factor string, filter models.ExposureFilter) ([]ExposureMatch, error)
	// UpdateExposureWeights sets the weight of company→factor for each match
	// and returns how many edges were written.
	UpdateExposureWeights(ctx context.Context, factor string, updates []ExposureMatch) (int, error)
}

type OutcomePublisher interface {
	Publish(ctx context.Context, outcome *models.ScenarioOutcome) error
	Close() error
}

// SnapshotArchive keeps the history of scenario snapshots and diffs.
type SnapshotArchive interface {
	Init(ctx context.Context) error // ensure tables
	StoreSnapshot(ctx context.Context, runID, label string, snap models.Snapshot) error
	StoreDiff(ctx context.Context, runID string, kind models.ScenarioKind, report models.DiffReport) error
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordPropagation(iterations int, converged bool, seconds float64)
	RecordScenario(kind string, applied bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordPortfolioRisk(total float64)
}
