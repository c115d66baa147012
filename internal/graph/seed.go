package graph

import (
	"fmt"

	"RiskGraph/internal/domain/models"
)

// FromSeed builds a graph from a flat description. Risk factors referenced
// only by exposures are created on the fly; unknown companies or owners are errors.
func FromSeed(seed models.GraphSeed) (*Graph, error) {
	g := New()
	for _, c := range seed.Companies {
		if c.ID == "" {
			return nil, fmt.Errorf("seed: company without id (name %q)", c.Name)
		}
		if c.MarketCap < 0 {
			return nil, fmt.Errorf("seed: company %q has negative market cap", c.ID)
		}
		g.AddCompany(c)
	}
	for _, b := range seed.Blockholders {
		if b.ID == "" {
			return nil, fmt.Errorf("seed: blockholder without id (name %q)", b.Name)
		}
		g.AddBlockholder(b)
	}
	for _, rf := range seed.RiskFactors {
		if rf.Name == "" {
			return nil, fmt.Errorf("seed: risk factor without name")
		}
		g.AddRiskFactor(rf)
	}

	for _, o := range seed.Ownerships {
		kind := o.OwnerKind
		if kind == "" {
			kind = models.KindCompany
		}
		from, ok := g.Lookup(kind, o.OwnerID)
		if !ok {
			return nil, fmt.Errorf("seed: ownership owner %s %q not found", kind, o.OwnerID)
		}
		to, ok := g.Lookup(models.KindCompany, o.TargetID)
		if !ok {
			return nil, fmt.Errorf("seed: ownership target %q not found", o.TargetID)
		}
		if err := g.MergeOwnership(from, to, o.Percent, o.Year); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	for _, e := range seed.Exposures {
		cid, ok := g.Lookup(models.KindCompany, e.CompanyID)
		if !ok {
			return nil, fmt.Errorf("seed: exposure company %q not found", e.CompanyID)
		}
		fid, ok := g.Lookup(models.KindRiskFactor, e.Factor)
		if !ok {
			fid = g.AddRiskFactor(models.RiskFactor{Name: e.Factor})
		}
		if err := g.MergeExposure(cid, fid, e.Weight); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}
	return g, nil
}

// Seed flattens the graph back into its fixture form, in arena order.
func (g *Graph) Seed() models.GraphSeed {
	var seed models.GraphSeed
	for i := range g.nodes {
		id := NodeID(i)
		switch g.nodes[i].Kind {
		case models.KindCompany:
			seed.Companies = append(seed.Companies, g.Company(id))
		case models.KindBlockholder:
			seed.Blockholders = append(seed.Blockholders, g.Blockholder(id))
		case models.KindRiskFactor:
			seed.RiskFactors = append(seed.RiskFactors, models.RiskFactor{
				Name:           g.nodes[i].Key,
				DollarizedRisk: g.nodes[i].DollarizedRisk,
			})
		}
	}
	for _, e := range g.owns {
		seed.Ownerships = append(seed.Ownerships, models.Ownership{
			OwnerKind: g.nodes[e.From].Kind,
			OwnerID:   g.nodes[e.From].Key,
			TargetID:  g.nodes[e.To].Key,
			Percent:   e.Percent,
			Year:      e.Year,
		})
	}
	for _, e := range g.exposures {
		seed.Exposures = append(seed.Exposures, models.Exposure{
			CompanyID: g.nodes[e.Company].Key,
			Factor:    g.nodes[e.Factor].Key,
			Weight:    e.Weight,
		})
	}
	return seed
}

// Company projects a company node. It does not check the kind.
func (g *Graph) Company(id NodeID) models.Company {
	n := g.nodes[id]
	return models.Company{
		ID:             n.Key,
		Name:           n.Name,
		Sector:         n.Sector,
		Location:       n.Location,
		MarketCap:      n.MarketCap,
		DirectRisk:     n.DirectRisk,
		TotalRisk:      n.TotalRisk,
		DollarizedRisk: n.DollarizedRisk,
		NormalizedRisk: n.NormalizedRisk,
		Role:           n.Role,
	}
}

func (g *Graph) Blockholder(id NodeID) models.Blockholder {
	n := g.nodes[id]
	return models.Blockholder{
		ID:             n.Key,
		Name:           n.Name,
		Type:           n.Type,
		TotalRisk:      n.TotalRisk,
		DollarizedRisk: n.DollarizedRisk,
		NormalizedRisk: n.NormalizedRisk,
	}
}
