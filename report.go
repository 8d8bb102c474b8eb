package dnc

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Report gathers the results of analyses of one network so they can be
// saved for later comparison.
type Report struct {
	// name of the network analysed
	Network string `json:"network" yaml:"network"`

	// configuration the results were derived under
	Config AnalysisConfig `json:"config" yaml:"config"`

	// results, in the order they were added
	Results []Result `json:"results" yaml:"results"`
}

// CreateReport is a constructor.
func CreateReport(network string, cfg AnalysisConfig) *Report {
	return &Report{Network: network, Config: cfg, Results: make([]Result, 0)}
}

// AddResult appends results to the report.
func (rp *Report) AddResult(results ...Result) {
	rp.Results = append(rp.Results, results...)
}

// Lookup returns the result of the given analysis for the named flow.
func (rp *Report) Lookup(flow string, kind AnalysisKind) (Result, bool) {
	idx := slices.IndexFunc(rp.Results, func(r Result) bool {
		return r.Flow == flow && r.Analysis == kind
	})
	if idx < 0 {
		return Result{}, false
	}
	return rp.Results[idx], true
}

// Best returns, per flow, the smallest delay bound over all analyses in the
// report.
func (rp *Report) Best() map[string]Num {
	best := make(map[string]Num)
	for _, r := range rp.Results {
		if d, present := best[r.Flow]; present {
			best[r.Flow] = d.Min(r.Delay)
		} else {
			best[r.Flow] = r.Delay
		}
	}
	return best
}

// String tabulates the results, one flow per line.
func (rp *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "network %s (%s)\n", rp.Network, rp.Config)
	results := slices.Clone(rp.Results)
	slices.SortStableFunc(results, func(a, b Result) int { return strings.Compare(a.Flow, b.Flow) })
	for _, r := range results {
		fmt.Fprintf(&sb, "%-12s %-5s delay %-14s backlog %s\n", r.Flow, r.Analysis, r.Delay, r.Backlog)
	}
	return sb.String()
}

// WriteToFile stores the report in the named file, as yaml or json depending
// on its extension.
func (rp *Report) WriteToFile(filename string) error {
	return writeDesc(filename, *rp)
}

// ReadReport deserializes a Report. If dict is empty the bytes are read from
// the named file.
func ReadReport(filename string, useYAML bool, dict []byte) (*Report, error) {
	rp := Report{}
	if err := readDesc(filename, useYAML, dict, &rp); err != nil {
		return nil, err
	}
	return &rp, nil
}
