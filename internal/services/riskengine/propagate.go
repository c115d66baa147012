// Package riskengine resolves total risk over the ownership network and
// converts it into dollar exposure.
package riskengine

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/graph"
	applogger "RiskGraph/pkg/logger"
)

const (
	DefaultMaxIterations     = 15
	DefaultEpsilon           = 1e-4
	DefaultParallelThreshold = 5000
)

type Config struct {
	MaxIterations int
	Epsilon       float64
	// Workers > 1 enables chunked parallel rounds once the number of owners
	// reaches ParallelThreshold.
	Workers           int
	ParallelThreshold int
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Epsilon <= 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.ParallelThreshold <= 0 {
		c.ParallelThreshold = DefaultParallelThreshold
	}
	return c
}

// PropagationResult describes one fixpoint run.
type PropagationResult struct {
	Iterations       int
	Converged        bool
	UpdatesPerRound  []int
	Nodes            int
	CyclicComponents int
	SelfLoops        int
	Duration         time.Duration
}

// Summary converts the result to its wire form.
func (r PropagationResult) Summary() *models.PropagationSummary {
	return &models.PropagationSummary{
		Iterations:       r.Iterations,
		Converged:        r.Converged,
		UpdatesPerRound:  append([]int(nil), r.UpdatesPerRound...),
		Nodes:            r.Nodes,
		CyclicComponents: r.CyclicComponents,
		SelfLoops:        r.SelfLoops,
		Duration:         r.Duration,
	}
}

type Propagator struct {
	cfg    Config
	logger *applogger.Logger
}

func NewPropagator(cfg Config, logger *applogger.Logger) *Propagator {
	return &Propagator{cfg: cfg.withDefaults(), logger: logger}
}

// Propagate recomputes direct_risk and total_risk of every company and
// blockholder in g. Rounds are Jacobi style: every owner reads the totals of
// the previous round and all writes land at the end of the round. A
// non-positive maxIterations uses the configured default.
func (p *Propagator) Propagate(ctx context.Context, g *graph.Graph, maxIterations int) (PropagationResult, error) {
	start := time.Now()
	if maxIterations <= 0 {
		maxIterations = p.cfg.MaxIterations
	}

	owners := seed(g)
	res := PropagationResult{Nodes: len(owners.companies) + len(owners.blockholders)}
	res.CyclicComponents, res.SelfLoops = cycleStats(g)

	totals := make([]float64, g.Len())
	for i := range totals {
		totals[i] = g.Node(graph.NodeID(i)).TotalRisk
	}

	next := make([]float64, len(owners.withOwns))
	changed := make([]bool, len(owners.withOwns))
	parallel := p.cfg.Workers > 1 && len(owners.withOwns) >= p.cfg.ParallelThreshold

	for round := 1; round <= maxIterations; round++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var err error
		if parallel {
			err = p.roundParallel(ctx, g, owners.withOwns, totals, next, changed)
		} else {
			evalChunk(g, owners.withOwns, totals, next, changed, p.cfg.Epsilon)
		}
		if err != nil {
			return res, err
		}

		// barrier
		updates := 0
		for i, id := range owners.withOwns {
			if !changed[i] {
				continue
			}
			updates++
			totals[id] = next[i]
			g.Node(id).TotalRisk = next[i]
		}
		res.Iterations = round
		res.UpdatesPerRound = append(res.UpdatesPerRound, updates)
		if updates == 0 {
			res.Converged = true
			break
		}
	}
	res.Duration = time.Since(start)

	if !res.Converged {
		last := 0
		if n := len(res.UpdatesPerRound); n > 0 {
			last = res.UpdatesPerRound[n-1]
		}
		p.logger.Warn("risk propagation did not converge",
			applogger.Int("max_iterations", maxIterations),
			applogger.Int("last_round_updates", last),
			applogger.Int("cyclic_components", res.CyclicComponents),
		)
	} else {
		p.logger.Info("risk propagation converged",
			applogger.Int("iterations", res.Iterations),
			applogger.Int("nodes", res.Nodes),
			applogger.Duration("duration_ms", res.Duration),
		)
	}
	return res, nil
}

func (p *Propagator) roundParallel(ctx context.Context, g *graph.Graph, owners []graph.NodeID, totals, next []float64, changed []bool) error {
	workers := p.cfg.Workers
	chunk := (len(owners) + workers - 1) / workers
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for lo := 0; lo < len(owners); lo += chunk {
		lo := lo
		hi := min(lo+chunk, len(owners))
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			evalChunk(g, owners[lo:hi], totals, next[lo:hi], changed[lo:hi], p.cfg.Epsilon)
			return nil
		})
	}
	return eg.Wait()
}

// evalChunk only reads g and totals, and writes to its own window of next and changed.
func evalChunk(g *graph.Graph, owners []graph.NodeID, totals, next []float64, changed []bool, eps float64) {
	for i, id := range owners {
		v := g.Node(id).DirectRisk
		for _, ei := range g.OwnsOut(id) {
			e := g.Owns(ei)
			v += e.Percent * totals[e.To]
		}
		next[i] = v
		changed[i] = math.Abs(v-totals[id]) > eps
	}
}

type ownerSets struct {
	companies    []graph.NodeID
	blockholders []graph.NodeID
	withOwns     []graph.NodeID
}

// seed resets the derived fields and sets company direct risk from exposures.
func seed(g *graph.Graph) ownerSets {
	var sets ownerSets
	var weights []float64
	for i := 0; i < g.Len(); i++ {
		id := graph.NodeID(i)
		n := g.Node(id)
		switch n.Kind {
		case models.KindCompany:
			weights = weights[:0]
			for _, ei := range g.ExposuresOf(id) {
				weights = append(weights, g.Exposure(ei).Weight)
			}
			n.DirectRisk = floats.Sum(weights)
			n.TotalRisk = n.DirectRisk
			n.NormalizedRisk = 0
			sets.companies = append(sets.companies, id)
		case models.KindBlockholder:
			n.DirectRisk = 0
			n.TotalRisk = 0
			n.NormalizedRisk = 0
			sets.blockholders = append(sets.blockholders, id)
		default:
			continue
		}
		if len(g.OwnsOut(id)) > 0 {
			sets.withOwns = append(sets.withOwns, id)
		}
	}
	return sets
}

// cycleStats counts strongly connected ownership components with more than
// one node, plus self-owning nodes.
func cycleStats(g *graph.Graph) (components, selfLoops int) {
	dg := simple.NewDirectedGraph()
	for ei := 0; ei < g.OwnsCount(); ei++ {
		e := g.Owns(ei)
		if e.From == e.To {
			selfLoops++
			continue
		}
		dg.SetEdge(dg.NewEdge(simple.Node(e.From), simple.Node(e.To)))
	}
	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) > 1 {
			components++
		}
	}
	return components, selfLoops
}
