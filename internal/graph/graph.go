// Package graph builds directed dependency graphs over activities.
//
// An edge X -> Y means Y consumed a path X produced, where "produced" and
// "consumed" are compared with pathutil.AreRelated. When inputs and outputs
// are materialized, every produced path becomes its own node between the
// producing and the consuming activities.
package graph

import (
	"fmt"
	"sort"

	"prov-go/internal/model"
	"prov-go/internal/pathutil"
)

// NodeKind distinguishes activity nodes from materialized output nodes.
type NodeKind int

const (
	ActivityNode NodeKind = iota
	OutputNode
)

// Node is a vertex of the graph.
type Node struct {
	Key        string
	Kind       NodeKind
	ActivityID string // producing activity for OutputNode
	Path       string // empty for ActivityNode
}

// Graph is an immutable, acyclic dependency graph.
type Graph struct {
	nodes map[string]Node
	succ  map[string][]string
	order []string
}

func outputKey(activityID, path string) string {
	return activityID + "#" + path
}

// Build constructs the dependency graph of activities. Deleted activities are
// ignored. It fails with a *model.GraphError of kind model.ErrCycle when the
// activities depend on each other circularly.
func Build(activities []*model.Activity, withInputsOutputs bool) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]Node),
		succ:  make(map[string][]string),
	}

	live := make([]*model.Activity, 0, len(activities))
	for _, a := range activities {
		if a.IsDeleted() {
			continue
		}
		if _, dup := g.nodes[a.ID]; dup {
			continue
		}
		live = append(live, a)
		g.nodes[a.ID] = Node{Key: a.ID, Kind: ActivityNode, ActivityID: a.ID}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ID < live[j].ID })

	for _, producer := range live {
		for _, out := range producer.GenerationPaths() {
			from := producer.ID
			if withInputsOutputs {
				key := outputKey(producer.ID, out)
				g.nodes[key] = Node{Key: key, Kind: OutputNode, ActivityID: producer.ID, Path: out}
				g.addEdge(producer.ID, key)
				from = key
			}
			for _, consumer := range live {
				if consumer.ID == producer.ID {
					continue
				}
				if usesRelated(consumer, out) {
					g.addEdge(from, consumer.ID)
				}
			}
		}
	}

	order, err := g.sort()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

func usesRelated(a *model.Activity, path string) bool {
	for _, in := range a.UsagePaths() {
		if pathutil.AreRelated(in, path) {
			return true
		}
	}
	return false
}

func (g *Graph) addEdge(from, to string) {
	for _, existing := range g.succ[from] {
		if existing == to {
			return
		}
	}
	g.succ[from] = append(g.succ[from], to)
}

const (
	white = iota
	grey
	black
)

// sort returns a topological order or the first cycle found. Traversal
// visits nodes and successors in key order so results are deterministic.
func (g *Graph) sort() ([]string, error) {
	keys := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
		sort.Strings(g.succ[k])
	}
	sort.Strings(keys)

	color := make(map[string]int, len(keys))
	var stack []string
	var post []string

	var visit func(k string) error
	visit = func(k string) error {
		color[k] = grey
		stack = append(stack, k)
		for _, next := range g.succ[k] {
			switch color[next] {
			case grey:
				return g.cycleError(stack, next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[k] = black
		post = append(post, k)
		return nil
	}

	for _, k := range keys {
		if color[k] == white {
			if err := visit(k); err != nil {
				return nil, err
			}
		}
	}

	order := make([]string, len(post))
	for i, k := range post {
		order[len(post)-1-i] = k
	}
	return order, nil
}

func (g *Graph) cycleError(stack []string, start string) error {
	i := len(stack) - 1
	for i >= 0 && stack[i] != start {
		i--
	}
	var ids []string
	for _, k := range stack[i:] {
		if n := g.nodes[k]; n.Kind == ActivityNode {
			ids = append(ids, n.ActivityID)
		}
	}
	return &model.GraphError{
		Kind:        model.ErrCycle,
		ActivityIDs: ids,
		Detail:      fmt.Sprintf("%d activities depend on each other", len(ids)),
	}
}

// ActivityOrder returns activity ids in execution order.
func (g *Graph) ActivityOrder() []string {
	var ids []string
	for _, k := range g.order {
		if g.nodes[k].Kind == ActivityNode {
			ids = append(ids, k)
		}
	}
	return ids
}
