package dnc

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// DeconvolutionVariant selects how output bounds deconvolve. The default
// dispatches on curve shapes; DeconvolveTokenBucketRateLatency insists on the
// closed form and fails on any other shapes.
type DeconvolutionVariant int

const (
	DeconvolveDefault DeconvolutionVariant = iota
	DeconvolveTokenBucketRateLatency
)

// ConvolutionVariant selects how service curves are concatenated.
type ConvolutionVariant int

const (
	ConvolveDefault ConvolutionVariant = iota
	ConvolveRateLatency
)

// ArrivalBoundMethod selects how the arrival curve of cross traffic at a
// server is derived from its arrival curves upstream.
type ArrivalBoundMethod int

const (
	// ArrivalBoundPerHop bounds the output of each upstream server in turn.
	ArrivalBoundPerHop ArrivalBoundMethod = iota

	// ArrivalBoundPathConcatenation concatenates the leftover service along
	// the longest sub-path the traffic shares and bounds its output once.
	ArrivalBoundPathConcatenation

	// ArrivalBoundPmoo uses the PMOO leftover over that shared sub-path.
	ArrivalBoundPmoo
)

// MuxDiscipline is the multiplexing assumed between flows at a server.
// MuxServerLocal is only meaningful in an AnalysisConfig, where it defers to
// each server's own discipline.
type MuxDiscipline int

const (
	MuxArbitrary MuxDiscipline = iota
	MuxFifo
	MuxServerLocal
)

var deconvToStr = map[DeconvolutionVariant]string{
	DeconvolveDefault:                "default",
	DeconvolveTokenBucketRateLatency: "tb-rl",
}

var convToStr = map[ConvolutionVariant]string{
	ConvolveDefault:     "default",
	ConvolveRateLatency: "rl",
}

var abToStr = map[ArrivalBoundMethod]string{
	ArrivalBoundPerHop:            "per-hop",
	ArrivalBoundPathConcatenation: "path-concatenation",
	ArrivalBoundPmoo:              "pmoo",
}

var muxToStr = map[MuxDiscipline]string{
	MuxArbitrary:   "arbitrary",
	MuxFifo:        "fifo",
	MuxServerLocal: "server-local",
}

// lookup inverts one of the name tables above.
func lookup[K comparable](table map[K]string, name, what string) (K, error) {
	for k, v := range table {
		if v == name {
			return k, nil
		}
	}
	var zero K
	return zero, fmt.Errorf("unknown %s %q", what, name)
}

func (v DeconvolutionVariant) String() string { return deconvToStr[v] }
func (v ConvolutionVariant) String() string   { return convToStr[v] }
func (m ArrivalBoundMethod) String() string   { return abToStr[m] }
func (m MuxDiscipline) String() string        { return muxToStr[m] }

func (v DeconvolutionVariant) MarshalText() ([]byte, error) { return []byte(v.String()), nil }
func (v ConvolutionVariant) MarshalText() ([]byte, error)   { return []byte(v.String()), nil }
func (m ArrivalBoundMethod) MarshalText() ([]byte, error)   { return []byte(m.String()), nil }
func (m MuxDiscipline) MarshalText() ([]byte, error)        { return []byte(m.String()), nil }

func (v *DeconvolutionVariant) UnmarshalText(b []byte) (err error) {
	*v, err = lookup(deconvToStr, string(b), "deconvolution variant")
	return err
}

func (v *ConvolutionVariant) UnmarshalText(b []byte) (err error) {
	*v, err = lookup(convToStr, string(b), "convolution variant")
	return err
}

func (m *ArrivalBoundMethod) UnmarshalText(b []byte) (err error) {
	*m, err = lookup(abToStr, string(b), "arrival bound method")
	return err
}

func (m *MuxDiscipline) UnmarshalText(b []byte) (err error) {
	*m, err = lookup(muxToStr, string(b), "multiplexing discipline")
	return err
}

// AnalysisConfig selects the algorithms an analysis run uses. It is a plain
// value; the With methods return modified copies.
type AnalysisConfig struct {
	// UseGamma convolves arrivals with the gamma curve of the server or
	// path before deconvolving by the service curve.
	UseGamma bool `json:"usegamma" yaml:"usegamma"`

	// UseExtraGamma convolves output bounds with the extra-gamma curve.
	UseExtraGamma bool `json:"useextragamma" yaml:"useextragamma"`

	Convolution   ConvolutionVariant   `json:"convolution" yaml:"convolution"`
	Deconvolution DeconvolutionVariant `json:"deconvolution" yaml:"deconvolution"`
	ArrivalBound  ArrivalBoundMethod   `json:"arrivalbound" yaml:"arrivalbound"`
	Multiplexing  MuxDiscipline        `json:"multiplexing" yaml:"multiplexing"`
}

// DefaultAnalysisConfig has both gamma stages off, shape-dispatched algorithms,
// path concatenation arrival bounds and arbitrary multiplexing everywhere.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		ArrivalBound: ArrivalBoundPathConcatenation,
		Multiplexing: MuxArbitrary,
	}
}

func (cfg AnalysisConfig) WithGamma(gamma, extraGamma bool) AnalysisConfig {
	cfg.UseGamma, cfg.UseExtraGamma = gamma, extraGamma
	return cfg
}

func (cfg AnalysisConfig) WithArrivalBound(m ArrivalBoundMethod) AnalysisConfig {
	cfg.ArrivalBound = m
	return cfg
}

func (cfg AnalysisConfig) WithMultiplexing(m MuxDiscipline) AnalysisConfig {
	cfg.Multiplexing = m
	return cfg
}

func (cfg AnalysisConfig) WithVariants(conv ConvolutionVariant, deconv DeconvolutionVariant) AnalysisConfig {
	cfg.Convolution, cfg.Deconvolution = conv, deconv
	return cfg
}

// muxAt resolves the discipline in force at server s.
func (cfg AnalysisConfig) muxAt(s *Server) MuxDiscipline {
	if cfg.Multiplexing == MuxServerLocal {
		return s.Multiplexing()
	}
	return cfg.Multiplexing
}

func (cfg AnalysisConfig) String() string {
	return fmt.Sprintf("gamma=%t extragamma=%t conv=%s deconv=%s ab=%s mux=%s",
		cfg.UseGamma, cfg.UseExtraGamma, cfg.Convolution, cfg.Deconvolution, cfg.ArrivalBound, cfg.Multiplexing)
}

// WriteToFile stores the configuration in the named file, as yaml or json
// depending on its extension.
func (cfg AnalysisConfig) WriteToFile(filename string) error {
	return writeDesc(filename, cfg)
}

// ReadAnalysisConfig deserializes an AnalysisConfig. If dict is empty the
// bytes are read from the named file. Fields missing from the input keep
// their DefaultAnalysisConfig values.
func ReadAnalysisConfig(filename string, useYAML bool, dict []byte) (AnalysisConfig, error) {
	cfg := DefaultAnalysisConfig()
	if err := readDesc(filename, useYAML, dict, &cfg); err != nil {
		return AnalysisConfig{}, err
	}
	return cfg, nil
}

// CalculatorConfig holds the settings shared by every analysis of a process.
// It is built once at startup and handed to each analysis by value, so an
// analysis never sees it change.
type CalculatorConfig struct {
	// ChecksEnabled validates every curve the analyses consume or produce.
	ChecksEnabled bool `json:"checks" yaml:"checks"`

	// MaxPmooCombinations caps the number of rate-latency/token-bucket
	// combinations a PMOO leftover enumerates before it falls back to a
	// single conservative approximation per curve.
	MaxPmooCombinations int `json:"maxpmoocombinations" yaml:"maxpmoocombinations"`
}

func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{ChecksEnabled: true, MaxPmooCombinations: 1024}
}

// DisableAllChecks returns a copy of calc with curve validation off.
func (calc CalculatorConfig) DisableAllChecks() CalculatorConfig {
	calc.ChecksEnabled = false
	return calc
}

// WriteToFile stores the calculator configuration in the named file.
func (calc CalculatorConfig) WriteToFile(filename string) error {
	return writeDesc(filename, calc)
}

// ReadCalculatorConfig deserializes a CalculatorConfig, defaulting what the
// input leaves out.
func ReadCalculatorConfig(filename string, useYAML bool, dict []byte) (CalculatorConfig, error) {
	calc := DefaultCalculatorConfig()
	if err := readDesc(filename, useYAML, dict, &calc); err != nil {
		return CalculatorConfig{}, err
	}
	return calc, nil
}

// isYAMLFile reports whether the extension of filename selects yaml.
func isYAMLFile(filename string) bool {
	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		return true
	}
	return false
}

// writeDesc serializes v to the named file, selecting yaml or json by the
// file's extension.
func writeDesc(filename string, v any) error {
	var bytes []byte
	var merr error

	pathExt := path.Ext(filename)
	switch {
	case isYAMLFile(filename):
		bytes, merr = yaml.Marshal(v)
	case pathExt == ".json" || pathExt == ".JSON":
		bytes, merr = json.MarshalIndent(v, "", "\t")
	default:
		return fmt.Errorf("file %s: extension %q selects neither yaml nor json", filename, pathExt)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// readDesc deserializes into v from dict, or from the named file if dict is
// empty.
func readDesc(filename string, useYAML bool, dict []byte, v any) error {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return err
		}
	}
	if useYAML {
		return yaml.Unmarshal(dict, v)
	}
	return json.Unmarshal(dict, v)
}
