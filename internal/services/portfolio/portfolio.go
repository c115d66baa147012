// Package portfolio computes read-only aggregates over a resolved network.
package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/graph"
)

const (
	DefaultConcentrationThreshold = 0.3
	DefaultTopN                   = 10
	DefaultFactorTopN             = 15
)

// SectorConcentration sums company dollarized risk per sector and flags the
// sectors whose share of the total exceeds threshold. Companies without a
// sector are left out of both the sectors and the total. A negative
// threshold uses DefaultConcentrationThreshold; 0 flags every sector with a
// non-zero share.
func SectorConcentration(g *graph.Graph, threshold float64) models.SectorConcentration {
	if threshold < 0 {
		threshold = DefaultConcentrationThreshold
	}
	perSector := make(map[string]float64)
	var order []string
	for _, id := range g.Nodes(models.KindCompany) {
		n := g.Node(id)
		if n.Sector == "" {
			continue
		}
		if _, ok := perSector[n.Sector]; !ok {
			order = append(order, n.Sector)
		}
		perSector[n.Sector] += n.DollarizedRisk
	}

	sums := make([]float64, len(order))
	for i, s := range order {
		sums[i] = perSector[s]
	}
	total := floats.Sum(sums)

	out := models.SectorConcentration{Threshold: threshold, PortfolioTotal: total}
	shares := make([]float64, len(order))
	for i, s := range order {
		share := 0.0
		if total != 0 {
			share = sums[i] / total
		}
		shares[i] = share * share
		out.Sectors = append(out.Sectors, models.SectorShare{
			Sector:         s,
			DollarizedRisk: sums[i],
			Share:          share,
			SharePct:       round2(share * 100),
			Overexposed:    share > threshold,
		})
	}
	out.Herfindahl = floats.Sum(shares)
	sort.SliceStable(out.Sectors, func(i, j int) bool { return out.Sectors[i].Share > out.Sectors[j].Share })
	return out
}

// CriticalNodesByDegree ranks companies and blockholders by incident edge
// count. Ties keep insertion order; nodes without edges are skipped.
func CriticalNodesByDegree(g *graph.Graph, topN int) []models.CriticalNode {
	if topN <= 0 {
		topN = DefaultTopN
	}
	var out []models.CriticalNode
	for i := 0; i < g.Len(); i++ {
		id := graph.NodeID(i)
		n := g.Node(id)
		if !n.Kind.IsOwner() {
			continue
		}
		d := g.Degree(id)
		if d == 0 {
			continue
		}
		out = append(out, models.CriticalNode{Kind: n.Kind, ID: n.Key, Name: n.Name, Degree: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Degree > out[j].Degree })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// TopRisks ranks nodes of one kind with positive dollarized risk, largest first.
func TopRisks(g *graph.Graph, kind models.NodeKind, n int) []models.RankedRisk {
	var out []models.RankedRisk
	for _, id := range g.Nodes(kind) {
		node := g.Node(id)
		if node.DollarizedRisk <= 0 {
			continue
		}
		out = append(out, models.RankedRisk{Kind: kind, ID: node.Key, Name: node.Name, DollarizedRisk: node.DollarizedRisk})
	}
	return rankAndCut(out, n)
}

// RiskScores lists every company and blockholder, largest dollarized risk first.
func RiskScores(g *graph.Graph) []models.RankedRisk {
	var out []models.RankedRisk
	for i := 0; i < g.Len(); i++ {
		n := g.Node(graph.NodeID(i))
		if !n.Kind.IsOwner() {
			continue
		}
		out = append(out, models.RankedRisk{Kind: n.Kind, ID: n.Key, Name: n.Name, DollarizedRisk: n.DollarizedRisk})
	}
	return rankAndCut(out, 0)
}

// RiskFactorExposure sums weight × company dollarized risk per factor over
// companies with positive dollarized risk.
func RiskFactorExposure(g *graph.Graph, n int) []models.RankedRisk {
	if n <= 0 {
		n = DefaultFactorTopN
	}
	var out []models.RankedRisk
	var terms []float64
	for _, fid := range g.Nodes(models.KindRiskFactor) {
		terms = terms[:0]
		for _, ei := range g.ExposedTo(fid) {
			e := g.Exposure(ei)
			if d := g.Node(e.Company).DollarizedRisk; d > 0 {
				terms = append(terms, e.Weight*d)
			}
		}
		if len(terms) == 0 {
			continue
		}
		f := g.Node(fid)
		out = append(out, models.RankedRisk{Kind: models.KindRiskFactor, ID: f.Key, Name: f.Name, DollarizedRisk: floats.Sum(terms)})
	}
	return rankAndCut(out, n)
}

// Catalog lists the selectable entities, sorted by name.
func Catalog(g *graph.Graph) models.Catalog {
	cat := models.Catalog{
		Companies:    refs(g, models.KindCompany),
		Blockholders: refs(g, models.KindBlockholder),
	}
	sectors := map[string]struct{}{}
	locations := map[string]struct{}{}
	for _, id := range g.Nodes(models.KindCompany) {
		n := g.Node(id)
		if n.Sector != "" {
			sectors[n.Sector] = struct{}{}
		}
		if n.Location != "" {
			locations[n.Location] = struct{}{}
		}
	}
	for _, id := range g.Nodes(models.KindRiskFactor) {
		cat.RiskFactors = append(cat.RiskFactors, g.Node(id).Key)
	}
	sort.Strings(cat.RiskFactors)
	cat.Sectors = sortedKeys(sectors)
	cat.Locations = sortedKeys(locations)
	return cat
}

func refs(g *graph.Graph, kind models.NodeKind) []models.NamedRef {
	ids := g.Nodes(kind)
	out := make([]models.NamedRef, 0, len(ids))
	for _, id := range ids {
		n := g.Node(id)
		out = append(out, models.NamedRef{ID: n.Key, Name: n.Name})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func rankAndCut(in []models.RankedRisk, n int) []models.RankedRisk {
	sort.SliceStable(in, func(i, j int) bool { return in[i].DollarizedRisk > in[j].DollarizedRisk })
	if n > 0 && len(in) > n {
		in = in[:n]
	}
	return in
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
