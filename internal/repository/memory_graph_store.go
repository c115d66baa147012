package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/domain/repository"
	"RiskGraph/internal/graph"
	applogger "RiskGraph/pkg/logger"
)

// MemoryGraphStore keeps the network in process. Mutations run on a clone
// that replaces the live graph only when the unit of work succeeds.
type MemoryGraphStore struct {
	mu        sync.RWMutex
	g         *graph.Graph
	writeBack string
	logger    *applogger.Logger
}

type MemoryStoreOption func(*MemoryGraphStore)

// WithWriteBack persists the network as a seed file after every successful write.
func WithWriteBack(path string) MemoryStoreOption {
	return func(s *MemoryGraphStore) { s.writeBack = path }
}

func NewMemoryGraphStore(g *graph.Graph, logger *applogger.Logger, opts ...MemoryStoreOption) *MemoryGraphStore {
	if g == nil {
		g = graph.New()
	}
	s := &MemoryGraphStore{g: g, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadSeedFile reads a JSON network fixture.
func LoadSeedFile(path string) (models.GraphSeed, error) {
	var seed models.GraphSeed
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("read seed file: %w", err)
	}
	if err := json.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return seed, nil
}

// NewMemoryGraphStoreFromFile builds the store from a seed file. An empty
// path starts from an empty network.
func NewMemoryGraphStoreFromFile(path string, logger *applogger.Logger, opts ...MemoryStoreOption) (*MemoryGraphStore, error) {
	if path == "" {
		return NewMemoryGraphStore(nil, logger, opts...), nil
	}
	seed, err := LoadSeedFile(path)
	if err != nil {
		return nil, err
	}
	g, err := graph.FromSeed(seed)
	if err != nil {
		return nil, err
	}
	logger.Info("memory graph store seeded",
		applogger.String("path", path),
		applogger.Int("companies", len(seed.Companies)),
		applogger.Int("blockholders", len(seed.Blockholders)),
		applogger.Int("ownerships", len(seed.Ownerships)),
		applogger.Int("exposures", len(seed.Exposures)),
	)
	return NewMemoryGraphStore(g, logger, opts...), nil
}

func (s *MemoryGraphStore) Load(ctx context.Context) (*graph.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.Clone(), nil
}

func (s *MemoryGraphStore) SaveRisk(ctx context.Context, in *graph.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < in.Len(); i++ {
		src := in.Node(graph.NodeID(i))
		id, ok := s.g.Lookup(src.Kind, src.Key)
		if !ok {
			continue
		}
		dst := s.g.Node(id)
		dst.DirectRisk = src.DirectRisk
		dst.TotalRisk = src.TotalRisk
		dst.DollarizedRisk = src.DollarizedRisk
		dst.NormalizedRisk = src.NormalizedRisk
	}
	return s.persist()
}

func (s *MemoryGraphStore) Mutate(ctx context.Context, fn func(ctx context.Context, tx repository.GraphTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.g.Clone()
	if err := fn(ctx, &memoryTx{g: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.g = work
	return s.persist()
}

func (s *MemoryGraphStore) Health(ctx context.Context) error { return nil }

func (s *MemoryGraphStore) Close() error { return nil }

// persist must be called with mu held.
func (s *MemoryGraphStore) persist() error {
	if s.writeBack == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.g.Seed(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode seed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.writeBack), 0o755); err != nil {
		return fmt.Errorf("create seed dir: %w", err)
	}
	tmp := s.writeBack + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write seed: %w", err)
	}
	return os.Rename(tmp, s.writeBack)
}

type memoryTx struct {
	g *graph.Graph
}

func (t *memoryTx) CompanyExists(ctx context.Context, id string) (bool, error) {
	_, ok := t.g.Lookup(models.KindCompany, id)
	return ok, nil
}

func (t *memoryTx) OwnerExists(ctx context.Context, kind models.NodeKind, id string) (bool, error) {
	if !kind.IsOwner() {
		return false, nil
	}
	_, ok := t.g.Lookup(kind, id)
	return ok, nil
}

func (t *memoryTx) CountOwners(ctx context.Context, targetID string) (int, error) {
	id, ok := t.g.Lookup(models.KindCompany, targetID)
	if !ok {
		return 0, nil
	}
	return len(t.g.OwnsIn(id)), nil
}

func (t *memoryTx) DeleteOwnersOf(ctx context.Context, targetID string) (int, error) {
	id, ok := t.g.Lookup(models.KindCompany, targetID)
	if !ok {
		return 0, nil
	}
	return t.g.RemoveIncomingOwnership(id), nil
}

func (t *memoryTx) MergeOwnership(ctx context.Context, ownerKind models.NodeKind, ownerID, targetID string, percent float64, year int) error {
	from, ok := t.g.Lookup(ownerKind, ownerID)
	if !ok {
		return fmt.Errorf("owner %s %q: %w", ownerKind, ownerID, models.ErrNotFound)
	}
	to, ok := t.g.Lookup(models.KindCompany, targetID)
	if !ok {
		return fmt.Errorf("company %q: %w", targetID, models.ErrNotFound)
	}
	return t.g.MergeOwnership(from, to, percent, year)
}

func (t *memoryTx) DeleteOwnership(ctx context.Context, ownerKind models.NodeKind, ownerID, targetID string) (bool, error) {
	from, ok := t.g.Lookup(ownerKind, ownerID)
	if !ok {
		return false, nil
	}
	to, ok := t.g.Lookup(models.KindCompany, targetID)
	if !ok {
		return false, nil
	}
	return t.g.RemoveOwnership(from, to), nil
}

func (t *memoryTx) SetCompanyRole(ctx context.Context, id string, role models.Role) error {
	nid, ok := t.g.Lookup(models.KindCompany, id)
	if !ok {
		return fmt.Errorf("company %q: %w", id, models.ErrNotFound)
	}
	t.g.Node(nid).Role = role
	return nil
}

func (t *memoryTx) FindExposures(ctx context.Context, factor string, filter models.ExposureFilter) ([]repository.ExposureMatch, error) {
	fid, ok := t.g.Lookup(models.KindRiskFactor, factor)
	if !ok {
		return nil, nil
	}
	var out []repository.ExposureMatch
	for _, ei := range t.g.ExposedTo(fid) {
		e := t.g.Exposure(ei)
		c := t.g.Node(e.Company)
		if filter.CompanyID != "" && c.Key != filter.CompanyID {
			continue
		}
		if filter.Sector != "" && c.Sector != filter.Sector {
			continue
		}
		if filter.Location != "" && c.Location != filter.Location {
			continue
		}
		out = append(out, repository.ExposureMatch{CompanyID: c.Key, Weight: e.Weight})
	}
	return out, nil
}

func (t *memoryTx) UpdateExposureWeights(ctx context.Context, factor string, updates []repository.ExposureMatch) (int, error) {
	fid, ok := t.g.Lookup(models.KindRiskFactor, factor)
	if !ok {
		return 0, nil
	}
	n := 0
	for _, u := range updates {
		cid, ok := t.g.Lookup(models.KindCompany, u.CompanyID)
		if !ok {
			continue
		}
		for _, ei := range t.g.ExposuresOf(cid) {
			if t.g.Exposure(ei).Factor == fid {
				t.g.SetExposureWeight(ei, u.Weight)
				n++
				break
			}
		}
	}
	return n, nil
}
