// dnc bounds the delays and backlogs of the flows of a feed-forward network
// described in a yaml or json file, and generates random such networks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/iti/dnc"
	"github.com/patrickmn/go-cache"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:          "dnc",
		Short:        "Deterministic network calculus bounds for feed-forward networks",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
			slog.SetDefault(slog.New(handler))
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every bound derived")
	rootCmd.AddCommand(newAnalyzeCmd(), newGenerateCmd())
	return rootCmd
}

func newAnalyzeCmd() *cobra.Command {
	var (
		cfgFile   string
		kinds     []string
		flowNames []string
		outFile   string
		noChecks  bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [network file]",
		Short: "Bound the delay and backlog of the flows of a network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nd, err := dnc.ReadNetworkDesc(args[0], isYAML(args[0]), []byte{})
			if err != nil {
				return err
			}
			net, err := nd.Build()
			if err != nil {
				return err
			}

			cfg := dnc.DefaultAnalysisConfig()
			if cfgFile != "" {
				if cfg, err = dnc.ReadAnalysisConfig(cfgFile, isYAML(cfgFile), []byte{}); err != nil {
					return err
				}
			}
			calc := dnc.DefaultCalculatorConfig()
			if noChecks {
				calc = calc.DisableAllChecks()
			}

			flows := net.Flows()
			if len(flowNames) > 0 {
				flows = flows[:0]
				for _, name := range flowNames {
					f, err := net.Flow(name)
					if err != nil {
						return err
					}
					flows = append(flows, f)
				}
			}

			// one arrival bound cache serves all the analyses
			memo := cache.New(cache.NoExpiration, 0)
			report := dnc.CreateReport(net.Name, cfg)
			for _, name := range kinds {
				var kind dnc.AnalysisKind
				if err := kind.UnmarshalText([]byte(name)); err != nil {
					return err
				}
				a, err := dnc.NewAnalysis(kind, net, cfg, dnc.WithCalculator(calc), dnc.WithCache(memo))
				if err != nil {
					return err
				}
				results, err := dnc.AnalyzeAll(context.Background(), a, flows)
				if err != nil {
					return err
				}
				report.AddResult(results...)
			}

			fmt.Fprint(cmd.OutOrStdout(), report.String())
			if outFile != "" {
				return report.WriteToFile(outFile)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "analysis configuration file")
	cmd.Flags().StringSliceVarP(&kinds, "analysis", "a", []string{"tfa", "sfa", "pmoo"}, "analyses to run")
	cmd.Flags().StringSliceVarP(&flowNames, "flow", "f", nil, "flows to bound, all if none given")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "file to save the report in")
	cmd.Flags().BoolVar(&noChecks, "no-checks", false, "skip curve validation")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	gc := dnc.DefaultGeneratorConfig()
	var mux string
	cmd := &cobra.Command{
		Use:   "generate [network file]",
		Short: "Write a random feed-forward network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := gc.Multiplexing.UnmarshalText([]byte(mux)); err != nil {
				return err
			}
			nd, err := dnc.GenerateNetworkDesc(gc)
			if err != nil {
				return err
			}
			if err := nd.WriteToFile(args[0]); err != nil {
				return err
			}
			slog.Info("network written", "file", args[0], "servers", len(nd.Servers), "flows", len(nd.Flows))
			return nil
		},
	}
	cmd.Flags().StringVar(&gc.Name, "name", gc.Name, "network name, also naming the random stream")
	cmd.Flags().IntVar(&gc.Servers, "servers", gc.Servers, "number of servers")
	cmd.Flags().IntVar(&gc.Flows, "flows", gc.Flows, "number of flows")
	cmd.Flags().IntVar(&gc.MaxPathLen, "max-path", gc.MaxPathLen, "maximum number of servers on a path")
	cmd.Flags().Float64Var(&gc.Rate, "rate", gc.Rate, "mean service rate")
	cmd.Flags().Float64Var(&gc.Latency, "latency", gc.Latency, "maximum service latency")
	cmd.Flags().Float64Var(&gc.MaxBurst, "burst", gc.MaxBurst, "maximum flow burst")
	cmd.Flags().Float64Var(&gc.Utilization, "utilization", gc.Utilization, "maximum server load")
	cmd.Flags().Float64Var(&gc.PeakFactor, "peak-factor", gc.PeakFactor, "peak to sustained rate of dual token-bucket flows, 0 for single buckets")
	cmd.Flags().StringVar(&mux, "mux", "arbitrary", "multiplexing of the servers (arbitrary, fifo)")
	return cmd
}

func isYAML(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
