package dnc

// network.go holds the topology the analyses read: servers with their
// service guarantees, directed links between them, and flows with an arrival
// curve and a path. A Network is built once and then only read; the analyses
// never modify it.

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// A Server is a service element: a minimum service curve, optional gamma
// and extra-gamma corrections, and the multiplexing it applies to the flows
// it serves.
type Server struct {
	id         int
	alias      string
	service    Curve
	gamma      Curve
	extraGamma Curve
	mux        MuxDiscipline
}

// ServerOption sets an optional attribute when a server is added.
type ServerOption func(*Server)

// WithGamma sets the curve bounding the extra service deprivation that
// multiplexing can cause at the server.
func WithGamma(gamma Curve) ServerOption {
	return func(s *Server) { s.gamma = gamma }
}

// WithExtraGamma sets the second-order multiplexing correction.
func WithExtraGamma(extraGamma Curve) ServerOption {
	return func(s *Server) { s.extraGamma = extraGamma }
}

func (s *Server) ID() int                     { return s.id }
func (s *Server) Alias() string               { return s.alias }
func (s *Server) Service() Curve              { return s.service }
func (s *Server) Multiplexing() MuxDiscipline { return s.mux }
func (s *Server) String() string              { return s.alias }

// Gamma returns the server's gamma curve, BurstDelay(0) if none was set.
func (s *Server) Gamma() Curve {
	if !s.gamma.Defined() {
		return BurstDelay(0)
	}
	return s.gamma
}

// ExtraGamma returns the server's extra-gamma curve, BurstDelay(0) if none
// was set.
func (s *Server) ExtraGamma() Curve {
	if !s.extraGamma.Defined() {
		return BurstDelay(0)
	}
	return s.extraGamma
}

// A Path is a non-empty sequence of servers. Its gamma and extra-gamma are
// the convolutions of those of its servers.
type Path struct {
	servers    []*Server
	gamma      Curve
	extraGamma Curve
}

// NewPath builds the path through servers, in order.
func NewPath(servers []*Server) (*Path, error) {
	if len(servers) == 0 {
		return nil, ErrEmptyPath
	}
	p := &Path{servers: slices.Clone(servers)}
	gammas := make([]Curve, len(servers))
	extras := make([]Curve, len(servers))
	for i, s := range servers {
		gammas[i], extras[i] = s.Gamma(), s.ExtraGamma()
	}
	var err error
	if p.gamma, err = ConvolveAll(gammas); err != nil {
		return nil, fmt.Errorf("path gamma: %w", err)
	}
	if p.extraGamma, err = ConvolveAll(extras); err != nil {
		return nil, fmt.Errorf("path extra-gamma: %w", err)
	}
	return p, nil
}

func (p *Path) Servers() []*Server { return slices.Clone(p.servers) }
func (p *Path) Len() int           { return len(p.servers) }
func (p *Path) Source() *Server    { return p.servers[0] }
func (p *Path) Sink() *Server      { return p.servers[len(p.servers)-1] }
func (p *Path) Gamma() Curve       { return p.gamma }
func (p *Path) ExtraGamma() Curve  { return p.extraGamma }

// Index returns the position of s on the path, -1 if s is not on it.
func (p *Path) Index(s *Server) int {
	return slices.Index(p.servers, s)
}

// Contains reports whether s is on the path.
func (p *Path) Contains(s *Server) bool {
	return p.Index(s) >= 0
}

// Predecessor returns the server before s on the path.
func (p *Path) Predecessor(s *Server) (*Server, bool) {
	i := p.Index(s)
	if i <= 0 {
		return nil, false
	}
	return p.servers[i-1], true
}

// SubPath returns the part of the path from index from to index to, inclusive.
func (p *Path) SubPath(from, to int) (*Path, error) {
	if from < 0 || to >= len(p.servers) || from > to {
		return nil, fmt.Errorf("%w: sub-path [%d,%d] of %s", ErrEmptyPath, from, to, p)
	}
	return NewPath(p.servers[from : to+1])
}

func (p *Path) String() string {
	names := make([]string, len(p.servers))
	for i, s := range p.servers {
		names[i] = s.alias
	}
	return strings.Join(names, "->")
}

// A Flow is traffic bounded by an arrival curve at its source, crossing
// the servers of its path.
type Flow struct {
	id      int
	alias   string
	arrival Curve
	path    *Path
}

func (f *Flow) ID() int         { return f.id }
func (f *Flow) Alias() string   { return f.alias }
func (f *Flow) Arrival() Curve  { return f.arrival }
func (f *Flow) Path() *Path     { return f.path }
func (f *Flow) Source() *Server { return f.path.Source() }
func (f *Flow) Sink() *Server   { return f.path.Sink() }
func (f *Flow) String() string  { return f.alias }

// Network is the topology view the analyses work on.
type Network struct {
	Name string

	// serial tells apart networks sharing a name, in shared bound caches
	serial uint64

	servers       []*Server
	serverByAlias map[string]*Server

	// links maps a server id to the ids of the servers it feeds
	links map[int][]int

	flows       []*Flow
	flowByAlias map[string]*Flow
	flowsAt     map[int][]*Flow

	rt *router
}

// networkSerial numbers the networks created so far.
var networkSerial atomic.Uint64

// CreateNetwork is a constructor for an empty network.
func CreateNetwork(name string) *Network {
	return &Network{
		Name:          name,
		serial:        networkSerial.Add(1),
		serverByAlias: make(map[string]*Server),
		links:         make(map[int][]int),
		flowByAlias:   make(map[string]*Flow),
		flowsAt:       make(map[int][]*Flow),
	}
}

// AddServer adds a server with the given service curve and multiplexing.
func (n *Network) AddServer(alias string, service Curve, mux MuxDiscipline, opts ...ServerOption) (*Server, error) {
	if _, present := n.serverByAlias[alias]; present {
		return nil, fmt.Errorf("%w: server %s", ErrDuplicateAlias, alias)
	}
	if mux == MuxServerLocal {
		return nil, fmt.Errorf("server %s: %s is not a server discipline", alias, mux)
	}
	if err := service.ValidateService(); err != nil {
		return nil, fmt.Errorf("server %s service: %w", alias, err)
	}
	s := &Server{id: len(n.servers), alias: alias, service: service, mux: mux}
	for _, opt := range opts {
		opt(s)
	}
	for name, c := range map[string]Curve{"gamma": s.gamma, "extra-gamma": s.extraGamma} {
		if !c.Defined() {
			continue
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("server %s %s: %w", alias, name, err)
		}
		if c.hasNegInf() {
			return nil, fmt.Errorf("%w: server %s %s takes -inf", ErrInvalidCurveShape, alias, name)
		}
	}
	n.servers = append(n.servers, s)
	n.serverByAlias[alias] = s
	n.rt = nil
	return s, nil
}

// AddLink connects src to dst.
func (n *Network) AddLink(src, dst *Server) error {
	if err := n.owns(src); err != nil {
		return err
	}
	if err := n.owns(dst); err != nil {
		return err
	}
	if src == dst {
		return fmt.Errorf("%w: link from %s to itself", ErrNonFeedForwardTopology, src)
	}
	if !slices.Contains(n.links[src.id], dst.id) {
		n.links[src.id] = append(n.links[src.id], dst.id)
	}
	n.rt = nil
	return nil
}

// Linked reports whether src feeds dst directly.
func (n *Network) Linked(src, dst *Server) bool {
	return slices.Contains(n.links[src.id], dst.id)
}

// AddFlow adds a flow with the given arrival curve over servers, which must
// be linked one to the next.
func (n *Network) AddFlow(alias string, arrival Curve, servers []*Server) (*Flow, error) {
	if _, present := n.flowByAlias[alias]; present {
		return nil, fmt.Errorf("%w: flow %s", ErrDuplicateAlias, alias)
	}
	if err := arrival.ValidateArrival(); err != nil {
		return nil, fmt.Errorf("flow %s arrival: %w", alias, err)
	}
	for i, s := range servers {
		if err := n.owns(s); err != nil {
			return nil, fmt.Errorf("flow %s: %w", alias, err)
		}
		if slices.Index(servers, s) != i {
			return nil, fmt.Errorf("%w: flow %s visits %s twice", ErrNonFeedForwardTopology, alias, s)
		}
		if i > 0 && !n.Linked(servers[i-1], s) {
			return nil, fmt.Errorf("%w: flow %s from %s to %s", ErrNoLink, alias, servers[i-1], s)
		}
	}
	p, err := NewPath(servers)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", alias, err)
	}
	f := &Flow{id: len(n.flows), alias: alias, arrival: arrival, path: p}
	n.flows = append(n.flows, f)
	n.flowByAlias[alias] = f
	for _, s := range servers {
		n.flowsAt[s.id] = append(n.flowsAt[s.id], f)
	}
	return f, nil
}

func (n *Network) owns(s *Server) error {
	if s == nil || s.id >= len(n.servers) || n.servers[s.id] != s {
		return fmt.Errorf("%w: %v", ErrUnknownServer, s)
	}
	return nil
}

func (n *Network) Servers() []*Server { return slices.Clone(n.servers) }
func (n *Network) Flows() []*Flow     { return slices.Clone(n.flows) }

// Server looks a server up by alias.
func (n *Network) Server(alias string) (*Server, error) {
	s, present := n.serverByAlias[alias]
	if !present {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, alias)
	}
	return s, nil
}

// Flow looks a flow up by alias.
func (n *Network) Flow(alias string) (*Flow, error) {
	f, present := n.flowByAlias[alias]
	if !present {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, alias)
	}
	return f, nil
}

// FlowsAt lists the flows crossing s, in the order they were added.
func (n *Network) FlowsAt(s *Server) []*Flow {
	return slices.Clone(n.flowsAt[s.id])
}

// FlowDependencies lists the flows whose arrival bounds are needed to bound
// f: the flows met on f's path, the flows those meet upstream of where
// they meet f, and so on. f itself is not listed. The analyses derive the
// same closure server by server; this is for inspecting a network.
func (n *Network) FlowDependencies(f *Flow) []*Flow {
	// needed[g] is the path index of g up to which g's arrival is needed
	needed := make(map[*Flow]int)
	var queue []*Flow
	need := func(g *Flow, k int) {
		if g == f {
			return
		}
		if prev, present := needed[g]; present && prev >= k {
			return
		}
		needed[g] = k
		queue = append(queue, g)
	}
	for _, s := range f.path.servers {
		for _, g := range n.flowsAt[s.id] {
			need(g, g.path.Index(s))
		}
	}
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		for _, s := range g.path.servers[:needed[g]] {
			for _, h := range n.flowsAt[s.id] {
				if h != g {
					need(h, h.path.Index(s))
				}
			}
		}
	}
	deps := make([]*Flow, 0, len(needed))
	for g := range needed {
		deps = append(deps, g)
	}
	slices.SortFunc(deps, func(a, b *Flow) int { return a.id - b.id })
	return deps
}

// dependencyGraph links server a to server b whenever some flow goes from
// a straight to b. Arrival bounds at b are derived from bounds at a, so a
// cycle here makes the derivation recurse for ever.
func (n *Network) dependencyGraph() *simple.DirectedGraph {
	g := simple.NewDirectedGraph()
	for _, s := range n.servers {
		g.AddNode(simple.Node(s.id))
	}
	for _, f := range n.flows {
		for i := 1; i < len(f.path.servers); i++ {
			from, to := int64(f.path.servers[i-1].id), int64(f.path.servers[i].id)
			if !g.HasEdgeFromTo(from, to) {
				g.SetEdge(g.NewEdge(g.Node(from), g.Node(to)))
			}
		}
	}
	return g
}

// CheckFeedForward fails with ErrNonFeedForwardTopology, naming the servers
// and the flows involved, if the flows' server dependencies form a cycle.
func (n *Network) CheckFeedForward() error {
	_, err := topo.Sort(n.dependencyGraph())
	if err == nil {
		return nil
	}
	var cycles topo.Unorderable
	if !errors.As(err, &cycles) {
		return fmt.Errorf("%w: %w", ErrNonFeedForwardTopology, err)
	}
	groups := make([]string, 0, len(cycles))
	for _, component := range cycles {
		groups = append(groups, fmt.Sprintf("%s (flows %s)", n.nodeAliases(component), n.cycleFlows(component)))
	}
	return fmt.Errorf("%w: cycle among servers %s", ErrNonFeedForwardTopology, strings.Join(groups, "; "))
}

// ServerOrder returns the servers sorted so that every server comes after
// the servers feeding it.
func (n *Network) ServerOrder() ([]*Server, error) {
	nodes, err := topo.Sort(n.dependencyGraph())
	if err != nil {
		return nil, n.CheckFeedForward()
	}
	order := make([]*Server, len(nodes))
	for i, node := range nodes {
		order[i] = n.servers[node.ID()]
	}
	return order, nil
}

// cycleFlows names the flows going straight from one server of the
// component to another.
func (n *Network) cycleFlows(component []graph.Node) string {
	in := make(map[int]bool, len(component))
	for _, node := range component {
		in[int(node.ID())] = true
	}
	var names []string
	for _, f := range n.flows {
		for i := 1; i < len(f.path.servers); i++ {
			if in[f.path.servers[i-1].id] && in[f.path.servers[i].id] {
				names = append(names, f.alias)
				break
			}
		}
	}
	return strings.Join(names, ",")
}

func (n *Network) nodeAliases(nodes []graph.Node) string {
	names := make([]string, len(nodes))
	for i, node := range nodes {
		names[i] = n.servers[node.ID()].alias
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}
