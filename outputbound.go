package dnc

import (
	"fmt"
)

// GammaSource is a server or a path: anything output bounds can be derived
// over, carrying the gamma corrections that apply to it.
type GammaSource interface {
	Gamma() Curve
	ExtraGamma() Curve
}

// OutputBound derives the candidate arrival curves of traffic leaving a
// server or path, one per pair of candidate arrival and service curves.
// The candidates are all valid bounds; callers reduce them with MinAll when
// they need the tightest one.
//
// With gamma on, each arrival curve is first convolved with the gamma of at
// and the result deconvolved by each service curve; with it off, the arrival
// curve is deconvolved directly using cfg.Deconvolution. With extra-gamma on,
// every result is then convolved with the extra-gamma of at. A stage that is
// off is skipped, not applied with a neutral curve.
func OutputBound(cfg AnalysisConfig, arrivals, services []Curve, at GammaSource) ([]Curve, error) {
	if len(arrivals) == 0 || len(services) == 0 {
		return nil, fmt.Errorf("%w: %d arrival curves, %d service curves",
			ErrEmptyCandidateSet, len(arrivals), len(services))
	}

	results := make([]Curve, 0, len(arrivals)*len(services))
	for _, alpha := range arrivals {
		if cfg.UseGamma {
			inflated, err := Convolve(alpha, at.Gamma())
			if err != nil {
				return nil, fmt.Errorf("gamma: %w", err)
			}
			alpha = inflated
		}
		for _, beta := range services {
			var out Curve
			var err error
			if cfg.UseGamma {
				// inflated curves are rarely canonical; shape dispatch
				// takes the almost-concave path when it applies
				out, err = Deconvolve(alpha, beta)
			} else {
				out, err = DeconvolveWith(alpha, beta, cfg.Deconvolution)
			}
			if err != nil {
				return nil, err
			}
			results = append(results, out)
		}
	}

	if cfg.UseExtraGamma {
		for i, out := range results {
			corrected, err := Convolve(out, at.ExtraGamma())
			if err != nil {
				return nil, fmt.Errorf("extra-gamma: %w", err)
			}
			results[i] = corrected
		}
	}
	return results, nil
}

// ServerOutputBound is OutputBound against the server's own service curve.
func ServerOutputBound(cfg AnalysisConfig, arrivals []Curve, s *Server) ([]Curve, error) {
	return OutputBound(cfg, arrivals, []Curve{s.Service()}, s)
}
