package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-gauss/batch"
	"github.com/cwbudde/algo-gauss/internal/dataset"
)

type decomposeFlags struct {
	input, output  string
	alpha1, alpha2 float64
	workers        int
	single         int
	noImprove      bool
}

func newDecomposeCmd(a *app, g *globalFlags) *cobra.Command {
	var f decomposeFlags
	cmd := &cobra.Command{
		Use:   "decompose",
		Short: "Decompose every spectrum of a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.decompose(cmd, g, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.input, "input", "i", "-", "spectra file (JSON), - for stdin")
	fl.StringVarP(&f.output, "output", "o", "-", "result file (JSON), - for stdout")
	fl.Float64Var(&f.alpha1, "alpha1", 0, "phase-one smoothing scale (overrides config)")
	fl.Float64Var(&f.alpha2, "alpha2", 0, "phase-two smoothing scale, enables two phases")
	fl.IntVarP(&f.workers, "workers", "j", 0, "concurrent decompositions (overrides config)")
	fl.IntVar(&f.single, "single", -1, "decompose only the spectrum at this position")
	fl.BoolVar(&f.noImprove, "no-improve", false, "skip the improvement loop")
	return cmd
}

func (a *app) decompose(cmd *cobra.Command, g *globalFlags, f decomposeFlags) error {
	ctx := cmd.Context()

	if f.alpha1 > 0 {
		a.cfg.Alpha1 = f.alpha1
	}
	if f.alpha2 > 0 {
		a.cfg.Alpha2 = f.alpha2
		a.cfg.TwoPhase = true
	}
	if f.workers > 0 {
		a.cfg.UseNCPUs = f.workers
	}
	if f.noImprove {
		a.cfg.ImproveFitting = false
	}
	set, err := a.cfg.Settings()
	if err != nil {
		return err
	}

	in, err := a.openInput(f.input)
	if err != nil {
		return err
	}
	spectra, err := dataset.ReadSpectra(in)
	in.Close()
	if err != nil {
		return err
	}

	stopMetrics, err := a.serveMetrics(ctx, g.metricsAddr)
	if err != nil {
		return err
	}
	defer stopMetrics()

	runner := &batch.Runner{
		Settings: set,
		Workers:  a.cfg.UseNCPUs,
		Logger:   a.log,
		Metrics:  a.metrics,
	}
	a.log.Debug("decomposing",
		slog.Int("spectra", len(spectra)),
		slog.Float64("alpha1", set.Alpha1),
		slog.String("phase", set.Phase.String()))

	var res *batch.Result
	if f.single >= 0 {
		if f.single >= len(spectra) {
			return fmt.Errorf("--single %d: file has %d spectra", f.single, len(spectra))
		}
		res, err = runner.RunSingle(ctx, spectra[f.single])
	} else {
		res, err = runner.Run(ctx, spectra)
	}
	if err != nil {
		return err
	}

	out, err := a.createOutput(f.output)
	if err != nil {
		return err
	}
	if err := dataset.WriteResult(out, res); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
