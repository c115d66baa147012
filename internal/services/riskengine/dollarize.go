package riskengine

import (
	"context"

	"gonum.org/v1/gonum/floats"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/graph"
)

// DollarizationResult aggregates one dollarization pass.
type DollarizationResult struct {
	Companies      int
	Blockholders   int
	RiskFactors    int
	PortfolioTotal float64
}

// Dollarize recomputes dollarized_risk for companies, then blockholders, then
// risk factors. The last two roll up the freshly computed company values.
func Dollarize(ctx context.Context, g *graph.Graph) (DollarizationResult, error) {
	var res DollarizationResult
	companies := g.Nodes(models.KindCompany)
	var terms []float64

	for _, id := range companies {
		n := g.Node(id)
		n.DollarizedRisk = n.TotalRisk * n.MarketCap
		terms = append(terms, n.DollarizedRisk)
	}
	res.Companies = len(companies)
	res.PortfolioTotal = floats.Sum(terms)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	for _, id := range g.Nodes(models.KindBlockholder) {
		terms = terms[:0]
		for _, ei := range g.OwnsOut(id) {
			e := g.Owns(ei)
			terms = append(terms, e.Percent*g.Node(e.To).DollarizedRisk)
		}
		g.Node(id).DollarizedRisk = floats.Sum(terms)
		res.Blockholders++
	}

	for _, id := range g.Nodes(models.KindRiskFactor) {
		terms = terms[:0]
		for _, ei := range g.ExposedTo(id) {
			e := g.Exposure(ei)
			terms = append(terms, e.Weight*g.Node(e.Company).DollarizedRisk)
		}
		g.Node(id).DollarizedRisk = floats.Sum(terms)
		res.RiskFactors++
	}
	return res, nil
}

// Normalize rescales total_risk of companies and blockholders to
// [0, maxScore] relative to the largest total. A non-positive maximum is
// treated as 1. It returns the number of nodes written.
func Normalize(g *graph.Graph, maxScore float64) int {
	var ids []graph.NodeID
	maxTotal := 0.0
	for i := 0; i < g.Len(); i++ {
		id := graph.NodeID(i)
		n := g.Node(id)
		if !n.Kind.IsOwner() {
			continue
		}
		ids = append(ids, id)
		if n.TotalRisk > maxTotal {
			maxTotal = n.TotalRisk
		}
	}
	if maxTotal <= 0 {
		maxTotal = 1
	}
	for _, id := range ids {
		n := g.Node(id)
		n.NormalizedRisk = n.TotalRisk / maxTotal * maxScore
	}
	return len(ids)
}
