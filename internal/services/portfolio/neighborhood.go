package portfolio

import (
	"fmt"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/graph"
)

// DefaultNeighborhoodDepth is how many OWNS hops are followed downstream.
const DefaultNeighborhoodDepth = 3

// Neighborhood collects the direct owners of the root, the companies reachable
// through at most depth OWNS hops, and the exposures of every company in view.
func Neighborhood(g *graph.Graph, kind models.NodeKind, key string, depth int) (models.Neighborhood, error) {
	root, ok := g.Lookup(kind, key)
	if !ok || !kind.IsOwner() {
		return models.Neighborhood{}, fmt.Errorf("%s %q: %w", kind, key, models.ErrNotFound)
	}
	if depth <= 0 {
		depth = DefaultNeighborhoodDepth
	}

	rn := g.Node(root)
	out := models.Neighborhood{Root: models.NamedRef{ID: rn.Key, Name: rn.Name}}
	edgeSeen := map[int]struct{}{}
	addEdge := func(ei int) {
		if _, ok := edgeSeen[ei]; ok {
			return
		}
		edgeSeen[ei] = struct{}{}
		e := g.Owns(ei)
		out.Ownerships = append(out.Ownerships, models.Ownership{
			OwnerKind: g.Node(e.From).Kind,
			OwnerID:   g.Node(e.From).Key,
			TargetID:  g.Node(e.To).Key,
			Percent:   e.Percent,
			Year:      e.Year,
		})
	}

	for _, ei := range g.OwnsIn(root) {
		o := g.Node(g.Owns(ei).From)
		out.Owners = append(out.Owners, models.NamedRef{ID: o.Key, Name: o.Name})
		addEdge(ei)
	}

	visited := map[graph.NodeID]struct{}{root: {}}
	var companies []graph.NodeID
	if kind == models.KindCompany {
		companies = append(companies, root)
	}
	frontier := []graph.NodeID{root}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []graph.NodeID
		for _, id := range frontier {
			for _, ei := range g.OwnsOut(id) {
				addEdge(ei)
				to := g.Owns(ei).To
				if _, ok := visited[to]; ok {
					continue
				}
				visited[to] = struct{}{}
				companies = append(companies, to)
				next = append(next, to)
			}
		}
		frontier = next
	}

	for _, id := range companies {
		n := g.Node(id)
		if id != root {
			out.Companies = append(out.Companies, models.NamedRef{ID: n.Key, Name: n.Name})
		}
		for _, ei := range g.ExposuresOf(id) {
			e := g.Exposure(ei)
			out.Exposures = append(out.Exposures, models.Exposure{CompanyID: n.Key, Factor: g.Node(e.Factor).Key, Weight: e.Weight})
		}
	}
	return out, nil
}
