// Package graph holds the ownership network in an arena: nodes live in a
// slice addressed by NodeID, edges live in slices, and adjacency is kept as
// edge indices. Cross-holdings therefore never create reference cycles.
package graph

import (
	"fmt"

	"RiskGraph/internal/domain/models"
)

// NodeID is a handle into the node arena. It is only valid for the Graph
// that issued it (and its clones).
type NodeID int

// Node carries the union of Company, Blockholder and RiskFactor properties.
type Node struct {
	Kind     models.NodeKind
	Key      string
	Name     string
	Sector   string
	Location string
	Type     string
	Role     models.Role

	MarketCap      float64
	DirectRisk     float64
	TotalRisk      float64
	DollarizedRisk float64
	NormalizedRisk float64
}

// OwnsEdge is From owning Percent of To.
type OwnsEdge struct {
	From    NodeID
	To      NodeID
	Percent float64
	Year    int
}

// ExposureEdge is Company contributing Weight of risk through Factor.
type ExposureEdge struct {
	Company NodeID
	Factor  NodeID
	Weight  float64
}

type nodeKey struct {
	kind models.NodeKind
	key  string
}

type Graph struct {
	nodes     []Node
	index     map[nodeKey]NodeID
	owns      []OwnsEdge
	exposures []ExposureEdge

	ownsOut [][]int
	ownsIn  [][]int
	expOut  [][]int
	expIn   [][]int
}

func New() *Graph {
	return &Graph{index: make(map[nodeKey]NodeID)}
}

// Len returns the number of nodes of every kind.
func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) addNode(n Node) NodeID {
	k := nodeKey{kind: n.Kind, key: n.Key}
	if id, ok := g.index[k]; ok {
		g.nodes[id] = n
		return id
	}
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.index[k] = id
	g.ownsOut = append(g.ownsOut, nil)
	g.ownsIn = append(g.ownsIn, nil)
	g.expOut = append(g.expOut, nil)
	g.expIn = append(g.expIn, nil)
	return id
}

// AddCompany inserts a company or replaces the properties of an existing one.
// Edges are kept on replace.
func (g *Graph) AddCompany(c models.Company) NodeID {
	role := c.Role
	if role == "" {
		role = models.RoleCompany
	}
	return g.addNode(Node{
		Kind:           models.KindCompany,
		Key:            c.ID,
		Name:           c.Name,
		Sector:         c.Sector,
		Location:       c.Location,
		Role:           role,
		MarketCap:      c.MarketCap,
		DirectRisk:     c.DirectRisk,
		TotalRisk:      c.TotalRisk,
		DollarizedRisk: c.DollarizedRisk,
		NormalizedRisk: c.NormalizedRisk,
	})
}

func (g *Graph) AddBlockholder(b models.Blockholder) NodeID {
	return g.addNode(Node{
		Kind:           models.KindBlockholder,
		Key:            b.ID,
		Name:           b.Name,
		Type:           b.Type,
		TotalRisk:      b.TotalRisk,
		DollarizedRisk: b.DollarizedRisk,
		NormalizedRisk: b.NormalizedRisk,
	})
}

func (g *Graph) AddRiskFactor(rf models.RiskFactor) NodeID {
	return g.addNode(Node{
		Kind:           models.KindRiskFactor,
		Key:            rf.Name,
		Name:           rf.Name,
		DollarizedRisk: rf.DollarizedRisk,
	})
}

func (g *Graph) Lookup(kind models.NodeKind, key string) (NodeID, bool) {
	id, ok := g.index[nodeKey{kind: kind, key: key}]
	return id, ok
}

// Node returns a pointer into the arena. It stays valid until the next node insert.
func (g *Graph) Node(id NodeID) *Node {
	return &g.nodes[id]
}

// Nodes lists the handles of one kind in insertion order.
func (g *Graph) Nodes(kind models.NodeKind) []NodeID {
	out := make([]NodeID, 0, len(g.nodes))
	for i := range g.nodes {
		if g.nodes[i].Kind == kind {
			out = append(out, NodeID(i))
		}
	}
	return out
}

// MergeOwnership creates from→to or overwrites its percent and year.
func (g *Graph) MergeOwnership(from, to NodeID, percent float64, year int) error {
	if !g.nodes[from].Kind.IsOwner() {
		return fmt.Errorf("ownership from %s %q: not an owner kind", g.nodes[from].Kind, g.nodes[from].Key)
	}
	if g.nodes[to].Kind != models.KindCompany {
		return fmt.Errorf("ownership into %s %q: target must be a company", g.nodes[to].Kind, g.nodes[to].Key)
	}
	for _, ei := range g.ownsOut[from] {
		if g.owns[ei].To == to {
			g.owns[ei].Percent = percent
			g.owns[ei].Year = year
			return nil
		}
	}
	ei := len(g.owns)
	g.owns = append(g.owns, OwnsEdge{From: from, To: to, Percent: percent, Year: year})
	g.ownsOut[from] = append(g.ownsOut[from], ei)
	g.ownsIn[to] = append(g.ownsIn[to], ei)
	return nil
}

// RemoveOwnership deletes from→to and reports whether it existed.
func (g *Graph) RemoveOwnership(from, to NodeID) bool {
	removed := g.filterOwns(func(e OwnsEdge) bool { return e.From == from && e.To == to })
	return removed > 0
}

// RemoveIncomingOwnership deletes every OWNS edge into to and returns how many went.
func (g *Graph) RemoveIncomingOwnership(to NodeID) int {
	return g.filterOwns(func(e OwnsEdge) bool { return e.To == to })
}

func (g *Graph) filterOwns(drop func(OwnsEdge) bool) int {
	kept := g.owns[:0]
	removed := 0
	for _, e := range g.owns {
		if drop(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0
	}
	g.owns = kept
	for i := range g.ownsOut {
		g.ownsOut[i] = g.ownsOut[i][:0]
		g.ownsIn[i] = g.ownsIn[i][:0]
	}
	for ei, e := range g.owns {
		g.ownsOut[e.From] = append(g.ownsOut[e.From], ei)
		g.ownsIn[e.To] = append(g.ownsIn[e.To], ei)
	}
	return removed
}

// OwnsOut returns indices of edges leaving id. The slice must not be modified.
func (g *Graph) OwnsOut(id NodeID) []int { return g.ownsOut[id] }

// OwnsIn returns indices of edges entering id.
func (g *Graph) OwnsIn(id NodeID) []int { return g.ownsIn[id] }

func (g *Graph) Owns(ei int) OwnsEdge { return g.owns[ei] }

func (g *Graph) OwnsCount() int { return len(g.owns) }

// MergeExposure creates company→factor or overwrites its weight.
func (g *Graph) MergeExposure(company, factor NodeID, weight float64) error {
	if g.nodes[company].Kind != models.KindCompany {
		return fmt.Errorf("exposure from %s %q: only companies are exposed", g.nodes[company].Kind, g.nodes[company].Key)
	}
	if g.nodes[factor].Kind != models.KindRiskFactor {
		return fmt.Errorf("exposure into %s %q: target must be a risk factor", g.nodes[factor].Kind, g.nodes[factor].Key)
	}
	for _, ei := range g.expOut[company] {
		if g.exposures[ei].Factor == factor {
			g.exposures[ei].Weight = weight
			return nil
		}
	}
	ei := len(g.exposures)
	g.exposures = append(g.exposures, ExposureEdge{Company: company, Factor: factor, Weight: weight})
	g.expOut[company] = append(g.expOut[company], ei)
	g.expIn[factor] = append(g.expIn[factor], ei)
	return nil
}

// ExposuresOf returns indices of the exposure edges of a company.
func (g *Graph) ExposuresOf(company NodeID) []int { return g.expOut[company] }

// ExposedTo returns indices of the exposure edges pointing at a risk factor.
func (g *Graph) ExposedTo(factor NodeID) []int { return g.expIn[factor] }

func (g *Graph) Exposure(ei int) ExposureEdge { return g.exposures[ei] }

func (g *Graph) SetExposureWeight(ei int, weight float64) {
	g.exposures[ei].Weight = weight
}

func (g *Graph) ExposureCount() int { return len(g.exposures) }

// Degree counts incident OWNS and EXPOSED_TO edges in both directions. A
// self-owning edge counts once.
func (g *Graph) Degree(id NodeID) int {
	d := len(g.ownsOut[id]) + len(g.ownsIn[id]) + len(g.expOut[id]) + len(g.expIn[id])
	for _, ei := range g.ownsOut[id] {
		if g.owns[ei].To == id {
			d--
		}
	}
	return d
}

// Clone returns a deep copy sharing no slices with g. Handles stay valid.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:     append([]Node(nil), g.nodes...),
		index:     make(map[nodeKey]NodeID, len(g.index)),
		owns:      append([]OwnsEdge(nil), g.owns...),
		exposures: append([]ExposureEdge(nil), g.exposures...),
		ownsOut:   cloneAdjacency(g.ownsOut),
		ownsIn:    cloneAdjacency(g.ownsIn),
		expOut:    cloneAdjacency(g.expOut),
		expIn:     cloneAdjacency(g.expIn),
	}
	for k, v := range g.index {
		c.index[k] = v
	}
	return c
}

func cloneAdjacency(in [][]int) [][]int {
	out := make([][]int, len(in))
	for i, s := range in {
		if len(s) > 0 {
			out[i] = append([]int(nil), s...)
		}
	}
	return out
}
