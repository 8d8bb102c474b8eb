package dnc

// routes.go finds shortest server paths through a network's links, so flows
// can be given just a source and a destination.

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// The links are converted into a gonum graph, which has the path algorithms
// built in. Every link weighs 1, so a shortest path minimizes the number of
// servers crossed.
//
// DijkstraFrom computes the tree of shortest paths rooted at one server. Trees
// are cached by root, so routing many flows from the same source costs one
// tree.

// router holds the graph form of a network's links and the trees computed so
// far. It is rebuilt whenever servers or links change.
type router struct {
	connGraph *simple.WeightedDirectedGraph
	cachedSP  map[int64]path.Shortest
}

// buildRouter returns the graph form of the links between servers.
func buildRouter(servers []*Server, links map[int][]int) *router {
	connGraph := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for _, s := range servers {
		connGraph.AddNode(simple.Node(s.id))
	}
	for srcId, dstIds := range links {
		for _, dstId := range dstIds {
			weightedEdge := simple.WeightedEdge{F: simple.Node(srcId), T: simple.Node(dstId), W: 1.0}
			connGraph.SetWeightedEdge(weightedEdge)
		}
	}
	return &router{connGraph: connGraph, cachedSP: make(map[int64]path.Shortest)}
}

// spTree returns the shortest path tree rooted in from, computing and
// caching it if needed.
func (rt *router) spTree(from int64) path.Shortest {
	spTree, present := rt.cachedSP[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(rt.connGraph.Node(from), rt.connGraph)
	rt.cachedSP[from] = spTree
	return spTree
}

// routeFrom returns the ids of the servers on a shortest path from srcId to
// dstId, both included, or nil if dstId cannot be reached.
func (rt *router) routeFrom(srcId, dstId int) []int {
	var nodeSeq []graph.Node
	nodeSeq, _ = rt.spTree(int64(srcId)).To(int64(dstId))
	route := make([]int, 0, len(nodeSeq))
	for _, node := range nodeSeq {
		route = append(route, int(node.ID()))
	}
	return route
}

// Route returns the servers on a shortest path from src to dst over the
// network's links. Route is meant for topology construction and is not safe
// for concurrent use.
func (n *Network) Route(src, dst *Server) ([]*Server, error) {
	if err := n.owns(src); err != nil {
		return nil, err
	}
	if err := n.owns(dst); err != nil {
		return nil, err
	}
	if n.rt == nil {
		n.rt = buildRouter(n.servers, n.links)
	}
	route := n.rt.routeFrom(src.id, dst.id)
	if len(route) == 0 {
		return nil, fmt.Errorf("%w: from %s to %s", ErrNoRoute, src, dst)
	}
	servers := make([]*Server, len(route))
	for i, id := range route {
		servers[i] = n.servers[id]
	}
	return servers, nil
}

// AddFlowRouted adds a flow from src to dst along a shortest path.
func (n *Network) AddFlowRouted(alias string, arrival Curve, src, dst *Server) (*Flow, error) {
	servers, err := n.Route(src, dst)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", alias, err)
	}
	return n.AddFlow(alias, arrival, servers)
}
