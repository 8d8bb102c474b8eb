package dnc

// desc-topo.go holds the serializable description of a network. A
// NetworkDesc is what gets written to and read from yaml or json files; Build
// turns it into the Network the analyses work on, and Network.Transform goes
// the other way.

import (
	"errors"
	"fmt"
)

// A CurveDesc describes a curve either by canonical shape and parameters or,
// for shape "generic", by its segment list. The shape names are those of
// ShapeKind.
type CurveDesc struct {
	Shape    string    `json:"shape" yaml:"shape"`
	Rate     float64   `json:"rate,omitempty" yaml:"rate,omitempty"`
	Burst    float64   `json:"burst,omitempty" yaml:"burst,omitempty"`
	Latency  float64   `json:"latency,omitempty" yaml:"latency,omitempty"`
	Segments []Segment `json:"segments,omitempty" yaml:"segments,omitempty"`
}

// DescribeCurve gives the most compact description of c.
func DescribeCurve(c Curve) CurveDesc {
	sh := c.Shape()
	if sh.Kind == ShapeGeneric {
		return CurveDesc{Shape: sh.Kind.String(), Segments: c.Segments()}
	}
	return CurveDesc{Shape: sh.Kind.String(), Rate: sh.Rate, Burst: sh.Burst, Latency: sh.Latency}
}

// Curve builds the described curve.
func (cd CurveDesc) Curve() (Curve, error) {
	kind, present := shapeKindFromStr[cd.Shape]
	if !present {
		return Curve{}, fmt.Errorf("%w: unknown shape %q", ErrInvalidCurveShape, cd.Shape)
	}
	switch kind {
	case ShapeZero:
		return ZeroCurve(), nil
	case ShapeBurstDelay:
		return BurstDelay(cd.Latency), nil
	case ShapeRateLatency:
		return RateLatency(cd.Rate, cd.Latency), nil
	case ShapeTokenBucket:
		return TokenBucket(cd.Burst, cd.Rate), nil
	}
	return NewCurve(cd.Segments)
}

// ServerDesc describes a server. Gamma and ExtraGamma may be left out.
type ServerDesc struct {
	Name         string        `json:"name" yaml:"name"`
	Service      CurveDesc     `json:"service" yaml:"service"`
	Multiplexing MuxDiscipline `json:"multiplexing" yaml:"multiplexing"`
	Gamma        *CurveDesc    `json:"gamma,omitempty" yaml:"gamma,omitempty"`
	ExtraGamma   *CurveDesc    `json:"extragamma,omitempty" yaml:"extragamma,omitempty"`
}

// LinkDesc names the servers at the two ends of a link.
type LinkDesc struct {
	Src string `json:"src" yaml:"src"`
	Dst string `json:"dst" yaml:"dst"`
}

// FlowDesc describes a flow. Path lists its servers by name. When Path is
// empty the flow is routed along a shortest path from Src to Dst.
type FlowDesc struct {
	Name    string    `json:"name" yaml:"name"`
	Arrival CurveDesc `json:"arrival" yaml:"arrival"`
	Path    []string  `json:"path,omitempty" yaml:"path,omitempty"`
	Src     string    `json:"src,omitempty" yaml:"src,omitempty"`
	Dst     string    `json:"dst,omitempty" yaml:"dst,omitempty"`
}

// NetworkDesc is the serializable form of a Network.
type NetworkDesc struct {
	Name    string       `json:"name" yaml:"name"`
	Servers []ServerDesc `json:"servers" yaml:"servers"`
	Links   []LinkDesc   `json:"links" yaml:"links"`
	Flows   []FlowDesc   `json:"flows" yaml:"flows"`
}

// CreateNetworkDesc is a constructor for an empty description.
func CreateNetworkDesc(name string) *NetworkDesc {
	return &NetworkDesc{
		Name:    name,
		Servers: make([]ServerDesc, 0),
		Links:   make([]LinkDesc, 0),
		Flows:   make([]FlowDesc, 0),
	}
}

// WriteToFile stores the description in the named file. Serialization to
// json or to yaml is selected based on the extension of the name.
func (nd *NetworkDesc) WriteToFile(filename string) error {
	return writeDesc(filename, *nd)
}

// ReadNetworkDesc deserializes a NetworkDesc. If dict is empty the file whose
// name is given is read to acquire the bytes.
func ReadNetworkDesc(filename string, useYAML bool, dict []byte) (*NetworkDesc, error) {
	nd := NetworkDesc{}
	if err := readDesc(filename, useYAML, dict, &nd); err != nil {
		return nil, err
	}
	return &nd, nil
}

// Build creates the described network. Every problem found is reported, not
// just the first; servers and links are built before flows so that a flow
// error does not hide a server error.
func (nd *NetworkDesc) Build() (*Network, error) {
	net := CreateNetwork(nd.Name)
	var errs []error

	for _, sd := range nd.Servers {
		service, err := sd.Service.Curve()
		if err != nil {
			errs = append(errs, fmt.Errorf("server %s service: %w", sd.Name, err))
			continue
		}
		var opts []ServerOption
		if sd.Gamma != nil {
			gamma, err := sd.Gamma.Curve()
			if err != nil {
				errs = append(errs, fmt.Errorf("server %s gamma: %w", sd.Name, err))
				continue
			}
			opts = append(opts, WithGamma(gamma))
		}
		if sd.ExtraGamma != nil {
			extraGamma, err := sd.ExtraGamma.Curve()
			if err != nil {
				errs = append(errs, fmt.Errorf("server %s extra-gamma: %w", sd.Name, err))
				continue
			}
			opts = append(opts, WithExtraGamma(extraGamma))
		}
		if _, err := net.AddServer(sd.Name, service, sd.Multiplexing, opts...); err != nil {
			errs = append(errs, err)
		}
	}

	for _, ld := range nd.Links {
		src, serr := net.Server(ld.Src)
		dst, derr := net.Server(ld.Dst)
		if serr != nil || derr != nil {
			errs = append(errs, fmt.Errorf("link %s->%s: %w", ld.Src, ld.Dst, errors.Join(serr, derr)))
			continue
		}
		if err := net.AddLink(src, dst); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, ReportErrs(errs)
	}

	for _, fd := range nd.Flows {
		if err := nd.buildFlow(net, fd); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, ReportErrs(errs)
	}
	return net, nil
}

func (nd *NetworkDesc) buildFlow(net *Network, fd FlowDesc) error {
	arrival, err := fd.Arrival.Curve()
	if err != nil {
		return fmt.Errorf("flow %s arrival: %w", fd.Name, err)
	}
	if len(fd.Path) == 0 {
		src, serr := net.Server(fd.Src)
		dst, derr := net.Server(fd.Dst)
		if serr != nil || derr != nil {
			return fmt.Errorf("flow %s: %w", fd.Name, errors.Join(serr, derr))
		}
		_, err = net.AddFlowRouted(fd.Name, arrival, src, dst)
		return err
	}
	servers := make([]*Server, len(fd.Path))
	for i, name := range fd.Path {
		if servers[i], err = net.Server(name); err != nil {
			return fmt.Errorf("flow %s: %w", fd.Name, err)
		}
	}
	_, err = net.AddFlow(fd.Name, arrival, servers)
	return err
}

// Transform returns the description of the network. Flows are described by
// their explicit paths.
func (n *Network) Transform() NetworkDesc {
	nd := CreateNetworkDesc(n.Name)
	for _, s := range n.servers {
		sd := ServerDesc{Name: s.alias, Service: DescribeCurve(s.service), Multiplexing: s.mux}
		if s.gamma.Defined() {
			gamma := DescribeCurve(s.gamma)
			sd.Gamma = &gamma
		}
		if s.extraGamma.Defined() {
			extraGamma := DescribeCurve(s.extraGamma)
			sd.ExtraGamma = &extraGamma
		}
		nd.Servers = append(nd.Servers, sd)
	}
	for _, s := range n.servers {
		for _, dstId := range n.links[s.id] {
			nd.Links = append(nd.Links, LinkDesc{Src: s.alias, Dst: n.servers[dstId].alias})
		}
	}
	for _, f := range n.flows {
		path := make([]string, len(f.path.servers))
		for i, s := range f.path.servers {
			path[i] = s.alias
		}
		nd.Flows = append(nd.Flows, FlowDesc{Name: f.alias, Arrival: DescribeCurve(f.arrival), Path: path})
	}
	return *nd
}
