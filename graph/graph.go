package graph

import (
	"context"
	"fmt"

	"github.com/zhisuan/graphchat/log"
)

// End is the terminal sentinel of the edge table. Reaching it stops the
// traversal loop.
const End = "__end__"

// NodeFunc is one unit of work bound to a graph vertex. Implementations
// convert their own failures into error events plus state markers and
// return nil; a non-nil error is reserved for cancellation and engine
// faults and aborts the traversal.
type NodeFunc func(ctx context.Context, st State, em *Emitter) error

// Router decides the next vertex from current state. Decide must be a pure
// function of state; Targets declares every name it may return so the graph
// can be validated at construction time instead of failing mid-request.
type Router struct {
	Decide  func(st State) string
	Targets []string
}

func (r *Router) allows(name string) bool {
	for _, t := range r.Targets {
		if t == name {
			return true
		}
	}
	return false
}

// Edge is the tagged outgoing edge of a vertex: either a static target or
// a conditional Router, never both.
type Edge struct {
	To     string
	Router *Router
}

// Graph is a declarative workflow definition: named nodes, one entry point
// and an edge table. Build it with the Add* methods, then Compile.
type Graph struct {
	name  string
	entry string
	nodes map[string]NodeFunc
	descs map[string]string
	edges map[string]Edge
}

func NewGraph(name string) *Graph {
	return &Graph{
		name:  name,
		nodes: make(map[string]NodeFunc),
		descs: make(map[string]string),
		edges: make(map[string]Edge),
	}
}

func (g *Graph) Name() string { return g.name }

// AddNode registers a vertex. The description is informational only.
func (g *Graph) AddNode(name, description string, fn NodeFunc) *Graph {
	g.nodes[name] = fn
	g.descs[name] = description
	return g
}

// AddEdge declares a static transition from one vertex to another (or End).
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = Edge{To: to}
	return g
}

// AddConditionalEdge declares a routed transition. targets must list every
// node name decide may return, End included.
func (g *Graph) AddConditionalEdge(from string, decide func(st State) string, targets ...string) *Graph {
	g.edges[from] = Edge{Router: &Router{Decide: decide, Targets: targets}}
	return g
}

func (g *Graph) SetEntryPoint(name string) *Graph {
	g.entry = name
	return g
}

// Validate checks the definition is traversable: the entry point and every
// referenced destination exist, every node has an outgoing edge, and every
// router declares at least one target. A routing mistake is a programming
// error, so it must surface here rather than per-request.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return fmt.Errorf("graph %q: no entry point set", g.name)
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("graph %q: entry point %q is not a registered node", g.name, g.entry)
	}
	for from := range g.nodes {
		if _, ok := g.edges[from]; !ok {
			return fmt.Errorf("graph %q: node %q has no outgoing edge", g.name, from)
		}
	}
	for from, edge := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("graph %q: edge declared from unregistered node %q", g.name, from)
		}
		if edge.Router != nil {
			if edge.Router.Decide == nil {
				return fmt.Errorf("graph %q: router on %q has no decide function", g.name, from)
			}
			if len(edge.Router.Targets) == 0 {
				return fmt.Errorf("graph %q: router on %q declares no targets", g.name, from)
			}
			for _, t := range edge.Router.Targets {
				if t == End {
					continue
				}
				if _, ok := g.nodes[t]; !ok {
					return fmt.Errorf("graph %q: router on %q targets unknown node %q", g.name, from, t)
				}
			}
			continue
		}
		if edge.To == End {
			continue
		}
		if _, ok := g.nodes[edge.To]; !ok {
			return fmt.Errorf("graph %q: edge %q -> %q targets unknown node", g.name, from, edge.To)
		}
	}
	return nil
}

// Compile validates the definition and returns its executable form.
func (g *Graph) Compile() (*Runnable, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Runnable{graph: g, logger: log.GetDefaultLogger()}, nil
}

// MustCompile is Compile for graphs that are wired statically at startup.
func (g *Graph) MustCompile() *Runnable {
	r, err := g.Compile()
	if err != nil {
		panic(err)
	}
	return r
}

// Runnable executes a compiled graph.
type Runnable struct {
	graph  *Graph
	logger log.Logger
}

func (r *Runnable) Name() string { return r.graph.name }

// Run drives the traversal loop: every iteration executes exactly one node
// fully, then consults the edge table. Cancellation is checked at each node
// boundary. After the loop exits normally one trailing complete event is
// emitted unconditionally; an earlier error event does not suppress it,
// because error content and stream completion are orthogonal signals.
func (r *Runnable) Run(ctx context.Context, st State, em *Emitter) error {
	current := r.graph.entry
	for current != End {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn, ok := r.graph.nodes[current]
		if !ok {
			return fmt.Errorf("graph %q: no node named %q", r.graph.name, current)
		}
		r.logger.Debug("graph %s: executing node %s", r.graph.name, current)
		if err := fn(ctx, st, em); err != nil {
			return err
		}

		edge, ok := r.graph.edges[current]
		if !ok {
			return fmt.Errorf("graph %q: node %q has no outgoing edge", r.graph.name, current)
		}
		if edge.Router != nil {
			next := edge.Router.Decide(st)
			if next != End && !edge.Router.allows(next) {
				return fmt.Errorf("graph %q: router on %q returned undeclared target %q", r.graph.name, current, next)
			}
			r.logger.Debug("graph %s: router %s -> %s", r.graph.name, current, next)
			current = next
			continue
		}
		current = edge.To
	}
	return em.Complete(ctx, "数据处理完成")
}
