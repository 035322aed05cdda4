package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-gauss/agd/train"
	"github.com/cwbudde/algo-gauss/internal/dataset"
)

type trainFlags struct {
	input, output  string
	alpha1, alpha2 float64
	snr, snr2      float64
	learningRate   float64
	eps, mad       float64
	maxIter        int
}

func newTrainCmd(a *app) *cobra.Command {
	def := train.DefaultOptions(0)
	var f trainFlags
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the smoothing scales on spectra with known components",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.train(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.input, "input", "i", "-", "training file (JSON), - for stdin")
	fl.StringVarP(&f.output, "output", "o", "-", "trained scales (JSON), - for stdout")
	fl.Float64Var(&f.alpha1, "alpha1", 0, "initial phase-one scale (default from config)")
	fl.Float64Var(&f.alpha2, "alpha2", 0, "initial phase-two scale, trains two phases")
	fl.Float64Var(&f.snr, "snr", def.SNRThresh, "guessing threshold on the data")
	fl.Float64Var(&f.snr2, "snr2", def.SNR2Thresh, "guessing threshold on the second derivative")
	fl.Float64Var(&f.learningRate, "learning-rate", def.LearningRate, "gradient step")
	fl.Float64Var(&f.eps, "eps", def.Eps, "finite difference step in log(alpha)")
	fl.Float64Var(&f.mad, "mad", def.MAD, "convergence threshold on the median step")
	fl.IntVar(&f.maxIter, "max-iter", def.MaxIter, "iteration limit")
	return cmd
}

func (a *app) train(cmd *cobra.Command, f trainFlags) error {
	in, err := a.openInput(f.input)
	if err != nil {
		return err
	}
	examples, err := dataset.ReadExamples(in)
	in.Close()
	if err != nil {
		return err
	}

	opts := train.DefaultOptions(a.cfg.Alpha1)
	if f.alpha1 > 0 {
		opts.Alpha1 = f.alpha1
	}
	if a.cfg.TwoPhase || a.cfg.Phase == "two" {
		opts.Alpha2 = a.cfg.Alpha2
	}
	if f.alpha2 > 0 {
		opts.Alpha2 = f.alpha2
	}
	opts.SNRThresh, opts.SNR2Thresh = f.snr, f.snr2
	opts.LearningRate, opts.Eps, opts.MAD = f.learningRate, f.eps, f.mad
	opts.MaxIter = f.maxIter
	opts.Workers = a.cfg.UseNCPUs
	opts.Logger = a.log

	trained, err := train.Train(cmd.Context(), examples, opts)
	if err != nil {
		return err
	}

	out, err := a.createOutput(f.output)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(trained); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
