package repository

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/domain/repository"
	"RiskGraph/internal/graph"
	applogger "RiskGraph/pkg/logger"
	"RiskGraph/pkg/memgraph"
)

const (
	cypherLoadCompanies = `
MATCH (c:Company)
RETURN c.id AS id, c.name AS name, c.sector AS sector, c.location AS location,
       coalesce(c.market_cap, 0.0) AS market_cap, coalesce(c.direct_risk, 0.0) AS direct_risk,
       coalesce(c.total_risk, 0.0) AS total_risk, coalesce(c.dollarized_risk, 0.0) AS dollarized_risk,
       coalesce(c.normalized_risk, 0.0) AS normalized_risk, coalesce(c.role, 'company') AS role
ORDER BY id`
	cypherLoadBlockholders = `
MATCH (b:Blockholder)
RETURN b.id AS id, b.name AS name, b.type AS type,
       coalesce(b.total_risk, 0.0) AS total_risk, coalesce(b.dollarized_risk, 0.0) AS dollarized_risk,
       coalesce(b.normalized_risk, 0.0) AS normalized_risk
ORDER BY id`
	cypherLoadRiskFactors = `
MATCH (r:RiskFactor)
RETURN r.name AS name, coalesce(r.dollarized_risk, 0.0) AS dollarized_risk
ORDER BY name`
	cypherLoadOwnerships = `
MATCH (o)-[r:OWNS]->(c:Company)
WHERE o:Company OR o:Blockholder
RETURN CASE WHEN o:Company THEN 'Company' ELSE 'Blockholder' END AS owner_kind,
       o.id AS owner_id, c.id AS target_id,
       coalesce(r.percent, 0.0) AS percent, coalesce(r.year, 0) AS year`
	cypherLoadExposures = `
MATCH (c:Company)-[e:EXPOSED_TO]->(r:RiskFactor)
RETURN c.id AS company_id, r.name AS factor, coalesce(e.weight, 0.0) AS weight`

	// normalized_risk set to null removes the property.
	cypherSaveCompanies = `
UNWIND $rows AS row
MATCH (c:Company {id: row.id})
SET c.direct_risk = row.direct_risk, c.total_risk = row.total_risk,
    c.dollarized_risk = row.dollarized_risk, c.normalized_risk = row.normalized_risk
REMOVE c.indirect_risk`
	cypherSaveBlockholders = `
UNWIND $rows AS row
MATCH (b:Blockholder {id: row.id})
SET b.direct_risk = 0.0, b.total_risk = row.total_risk,
    b.dollarized_risk = row.dollarized_risk, b.normalized_risk = row.normalized_risk
REMOVE b.indirect_risk`
	cypherSaveRiskFactors = `
UNWIND $rows AS row
MATCH (r:RiskFactor {name: row.name})
SET r.dollarized_risk = row.dollarized_risk`

	cypherImportCompanies = `
UNWIND $rows AS row
MERGE (c:Company {id: row.id})
SET c.name = row.name, c.sector = row.sector, c.location = row.location,
    c.market_cap = row.market_cap, c.role = row.role`
	cypherImportBlockholders = `
UNWIND $rows AS row
MERGE (b:Blockholder {id: row.id})
SET b.name = row.name, b.type = row.type`
	cypherImportRiskFactors = `
UNWIND $rows AS row
MERGE (:RiskFactor {name: row.name})`
	cypherImportExposures = `
UNWIND $rows AS row
MATCH (c:Company {id: row.company_id})
MERGE (r:RiskFactor {name: row.factor})
MERGE (c)-[e:EXPOSED_TO]->(r)
SET e.weight = row.weight`

	cypherCompanyExists = `MATCH (c:Company {id: $id}) RETURN count(c) AS n`
	cypherCountOwners   = `MATCH (o)-[:OWNS]->(:Company {id: $id}) RETURN count(o) AS n`
	cypherDeleteOwners  = `
MATCH ()-[r:OWNS]->(:Company {id: $id})
WITH r DELETE r
RETURN count(*) AS n`
	cypherSetRole       = `MATCH (c:Company {id: $id}) SET c.role = $role RETURN count(c) AS n`
	cypherFindExposures = `
MATCH (c:Company)-[e:EXPOSED_TO]->(:RiskFactor {name: $factor})
WHERE ($company_id = '' OR c.id = $company_id)
  AND ($sector = '' OR c.sector = $sector)
  AND ($location = '' OR c.location = $location)
RETURN c.id AS id, coalesce(e.weight, 0.0) AS weight
ORDER BY id`
	cypherUpdateExposures = `
UNWIND $rows AS row
MATCH (c:Company {id: row.id})-[e:EXPOSED_TO]->(:RiskFactor {name: $factor})
SET e.weight = row.weight
RETURN count(e) AS n`
)

// Labels cannot be parameters, so owner queries are picked per kind from a
// closed set. Every value still goes through parameters.
var (
	cypherOwnerExists = map[models.NodeKind]string{
		models.KindCompany:     `MATCH (o:Company {id: $id}) RETURN count(o) AS n`,
		models.KindBlockholder: `MATCH (o:Blockholder {id: $id}) RETURN count(o) AS n`,
	}
	cypherMergeOwnership = map[models.NodeKind]string{
		models.KindCompany: `
MATCH (o:Company {id: $owner_id}) MATCH (c:Company {id: $target_id})
MERGE (o)-[r:OWNS]->(c)
SET r.percent = $percent, r.year = $year
RETURN count(r) AS n`,
		models.KindBlockholder: `
MATCH (o:Blockholder {id: $owner_id}) MATCH (c:Company {id: $target_id})
MERGE (o)-[r:OWNS]->(c)
SET r.percent = $percent, r.year = $year
RETURN count(r) AS n`,
	}
	cypherDeleteOwnership = map[models.NodeKind]string{
		models.KindCompany: `
MATCH (:Company {id: $owner_id})-[r:OWNS]->(:Company {id: $target_id})
WITH r DELETE r
RETURN count(*) AS n`,
		models.KindBlockholder: `
MATCH (:Blockholder {id: $owner_id})-[r:OWNS]->(:Company {id: $target_id})
WITH r DELETE r
RETURN count(*) AS n`,
	}
)

// MemgraphGraphStore reads and writes the network over bolt.
type MemgraphGraphStore struct {
	client *memgraph.Client
	logger *applogger.Logger
}

func NewMemgraphGraphStore(client *memgraph.Client, logger *applogger.Logger) *MemgraphGraphStore {
	return &MemgraphGraphStore{client: client, logger: logger}
}

func (s *MemgraphGraphStore) Load(ctx context.Context) (*graph.Graph, error) {
	out, err := s.client.Read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var seed models.GraphSeed

		recs, err := collect(ctx, tx, cypherLoadCompanies, nil)
		if err != nil {
			return nil, fmt.Errorf("load companies: %w", err)
		}
		for _, r := range recs {
			seed.Companies = append(seed.Companies, models.Company{
				ID:             memgraph.String(r, "id"),
				Name:           memgraph.String(r, "name"),
				Sector:         memgraph.String(r, "sector"),
				Location:       memgraph.String(r, "location"),
				MarketCap:      memgraph.Float(r, "market_cap"),
				DirectRisk:     memgraph.Float(r, "direct_risk"),
				TotalRisk:      memgraph.Float(r, "total_risk"),
				DollarizedRisk: memgraph.Float(r, "dollarized_risk"),
				NormalizedRisk: memgraph.Float(r, "normalized_risk"),
				Role:           models.Role(memgraph.String(r, "role")),
			})
		}

		if recs, err = collect(ctx, tx, cypherLoadBlockholders, nil); err != nil {
			return nil, fmt.Errorf("load blockholders: %w", err)
		}
		for _, r := range recs {
			seed.Blockholders = append(seed.Blockholders, models.Blockholder{
				ID:             memgraph.String(r, "id"),
				Name:           memgraph.String(r, "name"),
				Type:           memgraph.String(r, "type"),
				TotalRisk:      memgraph.Float(r, "total_risk"),
				DollarizedRisk: memgraph.Float(r, "dollarized_risk"),
				NormalizedRisk: memgraph.Float(r, "normalized_risk"),
			})
		}

		if recs, err = collect(ctx, tx, cypherLoadRiskFactors, nil); err != nil {
			return nil, fmt.Errorf("load risk factors: %w", err)
		}
		for _, r := range recs {
			seed.RiskFactors = append(seed.RiskFactors, models.RiskFactor{
				Name:           memgraph.String(r, "name"),
				DollarizedRisk: memgraph.Float(r, "dollarized_risk"),
			})
		}

		if recs, err = collect(ctx, tx, cypherLoadOwnerships, nil); err != nil {
			return nil, fmt.Errorf("load ownerships: %w", err)
		}
		for _, r := range recs {
			seed.Ownerships = append(seed.Ownerships, models.Ownership{
				OwnerKind: models.NodeKind(memgraph.String(r, "owner_kind")),
				OwnerID:   memgraph.String(r, "owner_id"),
				TargetID:  memgraph.String(r, "target_id"),
				Percent:   memgraph.Float(r, "percent"),
				Year:      memgraph.Int(r, "year"),
			})
		}

		if recs, err = collect(ctx, tx, cypherLoadExposures, nil); err != nil {
			return nil, fmt.Errorf("load exposures: %w", err)
		}
		for _, r := range recs {
			seed.Exposures = append(seed.Exposures, models.Exposure{
				CompanyID: memgraph.String(r, "company_id"),
				Factor:    memgraph.String(r, "factor"),
				Weight:    memgraph.Float(r, "weight"),
			})
		}
		return seed, nil
	})
	if err != nil {
		return nil, err
	}
	return graph.FromSeed(out.(models.GraphSeed))
}

func (s *MemgraphGraphStore) SaveRisk(ctx context.Context, g *graph.Graph) error {
	var companies, blockholders, factors []map[string]any
	for i := 0; i < g.Len(); i++ {
		n := g.Node(graph.NodeID(i))
		switch n.Kind {
		case models.KindCompany:
			companies = append(companies, map[string]any{
				"id":              n.Key,
				"direct_risk":     n.DirectRisk,
				"total_risk":      n.TotalRisk,
				"dollarized_risk": n.DollarizedRisk,
				"normalized_risk": nullIfZero(n.NormalizedRisk),
			})
		case models.KindBlockholder:
			blockholders = append(blockholders, map[string]any{
				"id":              n.Key,
				"total_risk":      n.TotalRisk,
				"dollarized_risk": n.DollarizedRisk,
				"normalized_risk": nullIfZero(n.NormalizedRisk),
			})
		case models.KindRiskFactor:
			factors = append(factors, map[string]any{
				"name":            n.Key,
				"dollarized_risk": n.DollarizedRisk,
			})
		}
	}

	_, err := s.client.Write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := s.unwind(ctx, tx, cypherSaveCompanies, companies); err != nil {
			return nil, fmt.Errorf("save company risk: %w", err)
		}
		if err := s.unwind(ctx, tx, cypherSaveBlockholders, blockholders); err != nil {
			return nil, fmt.Errorf("save blockholder risk: %w", err)
		}
		if err := s.unwind(ctx, tx, cypherSaveRiskFactors, factors); err != nil {
			return nil, fmt.Errorf("save risk factor risk: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("risk fields saved",
		applogger.Int("companies", len(companies)),
		applogger.Int("blockholders", len(blockholders)),
		applogger.Int("risk_factors", len(factors)),
	)
	return nil
}

// Import merges a fixture into the database. Existing nodes keep their
// risk fields; ownership edges are merged by (owner, target).
func (s *MemgraphGraphStore) Import(ctx context.Context, seed models.GraphSeed) error {
	g, err := graph.FromSeed(seed)
	if err != nil {
		return err
	}
	seed = g.Seed()

	companies := make([]map[string]any, 0, len(seed.Companies))
	for _, c := range seed.Companies {
		companies = append(companies, map[string]any{
			"id": c.ID, "name": c.Name, "sector": nullIfEmpty(c.Sector), "location": nullIfEmpty(c.Location),
			"market_cap": c.MarketCap, "role": string(c.Role),
		})
	}
	blockholders := make([]map[string]any, 0, len(seed.Blockholders))
	for _, b := range seed.Blockholders {
		blockholders = append(blockholders, map[string]any{"id": b.ID, "name": b.Name, "type": nullIfEmpty(b.Type)})
	}
	factors := make([]map[string]any, 0, len(seed.RiskFactors))
	for _, rf := range seed.RiskFactors {
		factors = append(factors, map[string]any{"name": rf.Name})
	}
	exposures := make([]map[string]any, 0, len(seed.Exposures))
	for _, e := range seed.Exposures {
		exposures = append(exposures, map[string]any{"company_id": e.CompanyID, "factor": e.Factor, "weight": e.Weight})
	}

	_, err = s.client.Write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := s.unwind(ctx, tx, cypherImportCompanies, companies); err != nil {
			return nil, fmt.Errorf("import companies: %w", err)
		}
		if err := s.unwind(ctx, tx, cypherImportBlockholders, blockholders); err != nil {
			return nil, fmt.Errorf("import blockholders: %w", err)
		}
		if err := s.unwind(ctx, tx, cypherImportRiskFactors, factors); err != nil {
			return nil, fmt.Errorf("import risk factors: %w", err)
		}
		if err := s.unwind(ctx, tx, cypherImportExposures, exposures); err != nil {
			return nil, fmt.Errorf("import exposures: %w", err)
		}
		mtx := &memgraphTx{tx: tx}
		for _, o := range seed.Ownerships {
			if err := mtx.MergeOwnership(ctx, o.OwnerKind, o.OwnerID, o.TargetID, o.Percent, o.Year); err != nil {
				return nil, fmt.Errorf("import ownership: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("seed imported into memgraph",
		applogger.Int("companies", len(companies)),
		applogger.Int("blockholders", len(blockholders)),
		applogger.Int("ownerships", len(seed.Ownerships)),
		applogger.Int("exposures", len(exposures)),
	)
	return nil
}

func (s *MemgraphGraphStore) Mutate(ctx context.Context, fn func(ctx context.Context, tx repository.GraphTx) error) error {
	_, err := s.client.Write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(ctx, &memgraphTx{tx: tx, batchSize: s.client.BatchSize()})
	})
	return err
}

func (s *MemgraphGraphStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *MemgraphGraphStore) Close() error {
	return s.client.Close(context.Background())
}

func (s *MemgraphGraphStore) unwind(ctx context.Context, tx neo4j.ManagedTransaction, query string, rows []map[string]any) error {
	for _, chunk := range memgraph.Chunk(rows, s.client.BatchSize()) {
		res, err := tx.Run(ctx, query, map[string]any{"rows": chunk})
		if err != nil {
			return err
		}
		if _, err := res.Consume(ctx); err != nil {
			return err
		}
	}
	return nil
}

type memgraphTx struct {
	tx        neo4j.ManagedTransaction
	batchSize int
}

func (t *memgraphTx) CompanyExists(ctx context.Context, id string) (bool, error) {
	n, err := count(ctx, t.tx, cypherCompanyExists, map[string]any{"id": id})
	return n > 0, err
}

func (t *memgraphTx) OwnerExists(ctx context.Context, kind models.NodeKind, id string) (bool, error) {
	q, ok := cypherOwnerExists[kind]
	if !ok {
		return false, nil
	}
	n, err := count(ctx, t.tx, q, map[string]any{"id": id})
	return n > 0, err
}

func (t *memgraphTx) CountOwners(ctx context.Context, targetID string) (int, error) {
	return count(ctx, t.tx, cypherCountOwners, map[string]any{"id": targetID})
}

func (t *memgraphTx) DeleteOwnersOf(ctx context.Context, targetID string) (int, error) {
	return count(ctx, t.tx, cypherDeleteOwners, map[string]any{"id": targetID})
}

func (t *memgraphTx) MergeOwnership(ctx context.Context, ownerKind models.NodeKind, ownerID, targetID string, percent float64, year int) error {
	q, ok := cypherMergeOwnership[ownerKind]
	if !ok {
		return fmt.Errorf("owner kind %q cannot own companies", ownerKind)
	}
	n, err := count(ctx, t.tx, q, map[string]any{
		"owner_id":  ownerID,
		"target_id": targetID,
		"percent":   percent,
		"year":      int64(year),
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("ownership %s %q -> %q: %w", ownerKind, ownerID, targetID, models.ErrNotFound)
	}
	return nil
}

func (t *memgraphTx) DeleteOwnership(ctx context.Context, ownerKind models.NodeKind, ownerID, targetID string) (bool, error) {
	q, ok := cypherDeleteOwnership[ownerKind]
	if !ok {
		return false, nil
	}
	n, err := count(ctx, t.tx, q, map[string]any{"owner_id": ownerID, "target_id": targetID})
	return n > 0, err
}

func (t *memgraphTx) SetCompanyRole(ctx context.Context, id string, role models.Role) error {
	n, err := count(ctx, t.tx, cypherSetRole, map[string]any{"id": id, "role": string(role)})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("company %q: %w", id, models.ErrNotFound)
	}
	return nil
}

func (t *memgraphTx) FindExposures(ctx context.Context, factor string, filter models.ExposureFilter) ([]repository.ExposureMatch, error) {
	recs, err := collect(ctx, t.tx, cypherFindExposures, map[string]any{
		"factor":     factor,
		"company_id": filter.CompanyID,
		"sector":     filter.Sector,
		"location":   filter.Location,
	})
	if err != nil {
		return nil, err
	}
	out := make([]repository.ExposureMatch, 0, len(recs))
	for _, r := range recs {
		out = append(out, repository.ExposureMatch{
			CompanyID: memgraph.String(r, "id"),
			Weight:    memgraph.Float(r, "weight"),
		})
	}
	return out, nil
}

func (t *memgraphTx) UpdateExposureWeights(ctx context.Context, factor string, updates []repository.ExposureMatch) (int, error) {
	rows := make([]map[string]any, 0, len(updates))
	for _, u := range updates {
		rows = append(rows, map[string]any{"id": u.CompanyID, "weight": u.Weight})
	}
	total := 0
	for _, chunk := range memgraph.Chunk(rows, t.batchSize) {
		n, err := count(ctx, t.tx, cypherUpdateExposures, map[string]any{"factor": factor, "rows": chunk})
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func collect(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return res.Collect(ctx)
}

// count runs a query returning a single "n" column.
func count(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (int, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return 0, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return 0, err
	}
	return memgraph.Int(rec, "n"), nil
}

func nullIfZero(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
