package dnc

// generate.go builds random feed-forward networks, for exercising the
// analyses on more than hand-written examples. Links only ever go from a
// server to one with a larger index, so every generated network is
// feed-forward by construction.

import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
)

// GeneratorConfig holds the parameters of a random network.
type GeneratorConfig struct {
	Name       string `json:"name" yaml:"name"`
	Servers    int    `json:"servers" yaml:"servers"`
	Flows      int    `json:"flows" yaml:"flows"`
	MaxPathLen int    `json:"maxpathlen" yaml:"maxpathlen"`

	// service rates are drawn from [Rate/2, 3*Rate/2), latencies from
	// [0, Latency)
	Rate    float64 `json:"rate" yaml:"rate"`
	Latency float64 `json:"latency" yaml:"latency"`

	// bursts are drawn from [0, MaxBurst)
	MaxBurst float64 `json:"maxburst" yaml:"maxburst"`

	// Utilization caps the load of every server, as a fraction of its rate
	Utilization float64 `json:"utilization" yaml:"utilization"`

	// SkipProb is the chance of a link skipping one server of the chain
	SkipProb float64 `json:"skipprob" yaml:"skipprob"`

	// PeakFactor above 1 makes every arrival a dual token bucket: the drawn
	// burst at the sustained rate, capped by a smaller burst at PeakFactor
	// times that rate. 0 keeps single token buckets.
	PeakFactor float64 `json:"peakfactor" yaml:"peakfactor"`

	Multiplexing MuxDiscipline `json:"multiplexing" yaml:"multiplexing"`
}

func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Name:        "random",
		Servers:     8,
		Flows:       12,
		MaxPathLen:  4,
		Rate:        100,
		Latency:     0.01,
		MaxBurst:    10,
		Utilization: 0.8,
		SkipProb:    0.3,
	}
}

func (gc GeneratorConfig) validate() error {
	switch {
	case gc.Servers < 1:
		return fmt.Errorf("generator: %d servers", gc.Servers)
	case gc.Flows < 0:
		return fmt.Errorf("generator: %d flows", gc.Flows)
	case gc.MaxPathLen < 1:
		return fmt.Errorf("generator: maximum path length %d", gc.MaxPathLen)
	case gc.Rate <= 0 || gc.Latency < 0 || gc.MaxBurst < 0:
		return fmt.Errorf("generator: rate %g, latency %g, burst %g", gc.Rate, gc.Latency, gc.MaxBurst)
	case gc.Utilization <= 0 || gc.Utilization >= 1:
		return fmt.Errorf("generator: utilization %g is not in (0,1)", gc.Utilization)
	case gc.PeakFactor != 0 && gc.PeakFactor <= 1:
		return fmt.Errorf("generator: peak factor %g is not above 1", gc.PeakFactor)
	}
	return nil
}

// randInt draws uniformly from [0, n).
func randInt(rng *rngstream.RngStream, n int) int {
	return min(int(rng.RandU01()*float64(n)), n-1)
}

// GenerateNetworkDesc draws a random network from the stream named by
// gc.Name. Servers are rate-latency, flows token-bucket (dual token-bucket
// when gc.PeakFactor is set) with sustained rates scaled so that no server
// is loaded beyond gc.Utilization.
func GenerateNetworkDesc(gc GeneratorConfig) (*NetworkDesc, error) {
	if err := gc.validate(); err != nil {
		return nil, err
	}
	rng := rngstream.New(gc.Name)
	nd := CreateNetworkDesc(gc.Name)

	names := make([]string, gc.Servers)
	rates := make([]float64, gc.Servers)
	succ := make([][]int, gc.Servers)
	for i := range names {
		names[i] = fmt.Sprintf("s%d", i)
		rates[i] = roundFloat(gc.Rate*(0.5+rng.RandU01()), 3)
		nd.Servers = append(nd.Servers, ServerDesc{
			Name:         names[i],
			Service:      DescribeCurve(RateLatency(rates[i], roundFloat(gc.Latency*rng.RandU01(), 6))),
			Multiplexing: gc.Multiplexing,
		})
	}
	for i := 0; i+1 < gc.Servers; i++ {
		succ[i] = append(succ[i], i+1)
		if i+2 < gc.Servers && rng.RandU01() < gc.SkipProb {
			succ[i] = append(succ[i], i+2)
		}
		for _, j := range succ[i] {
			nd.Links = append(nd.Links, LinkDesc{Src: names[i], Dst: names[j]})
		}
	}

	// draw the paths first; rates depend on how many flows share a server
	paths := make([][]int, gc.Flows)
	load := make([]int, gc.Servers)
	for k := range paths {
		at := randInt(rng, gc.Servers)
		hops := 1 + randInt(rng, gc.MaxPathLen)
		path := []int{at}
		for len(path) < hops && len(succ[at]) > 0 {
			at = succ[at][randInt(rng, len(succ[at]))]
			path = append(path, at)
		}
		for _, i := range path {
			load[i]++
		}
		paths[k] = path
	}

	for k, path := range paths {
		rate := math.Inf(1)
		hops := make([]string, len(path))
		for j, i := range path {
			rate = min(rate, gc.Utilization*rates[i]/float64(load[i]))
			hops[j] = names[i]
		}
		burst, sustained := roundFloat(gc.MaxBurst*rng.RandU01(), 3), math.Floor(rate*1000)/1000
		arrival := TokenBucket(burst, sustained)
		if gc.PeakFactor > 1 {
			peakBurst := roundFloat(burst*(0.1+0.5*rng.RandU01()), 3)
			arrival = Min(arrival, TokenBucket(peakBurst, roundFloat(sustained*gc.PeakFactor, 3)))
		}
		nd.Flows = append(nd.Flows, FlowDesc{
			Name:    fmt.Sprintf("f%d", k),
			Arrival: DescribeCurve(arrival),
			Path:    hops,
		})
	}
	return nd, nil
}

// GenerateNetwork draws a random network and builds it.
func GenerateNetwork(gc GeneratorConfig) (*Network, error) {
	nd, err := GenerateNetworkDesc(gc)
	if err != nil {
		return nil, err
	}
	return nd.Build()
}
