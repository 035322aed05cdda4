package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-gauss/agd"
)

// ErrPanic wraps a panic recovered from a decomposition.
var ErrPanic = errors.New("batch: decomposition panicked")

// DecomposeFunc decomposes one spectrum.
type DecomposeFunc func(ctx context.Context, sp agd.Spectrum, set agd.Settings, opts ...agd.Option) (agd.Result, error)

// Observer receives one observation per spectrum. outcome is one of
// "improved", "fitted", "guess_only", "no_components" or "failed".
type Observer interface {
	Observe(outcome string, elapsed time.Duration, components int)
}

// Runner decomposes batches of spectra with shared settings.
type Runner struct {
	Settings agd.Settings
	// Workers bounds the concurrent decompositions; 0 uses GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
	Metrics Observer
	// Decompose defaults to agd.Decompose.
	Decompose DecomposeFunc
}

type row struct {
	res agd.Result
	err error
}

// Run decomposes spectra and returns their results in input order. The
// error is non-nil only when ctx ends before the batch completes or the
// settings are invalid.
func (r *Runner) Run(ctx context.Context, spectra []agd.Spectrum) (*Result, error) {
	if err := r.Settings.Validate(); err != nil {
		return nil, err
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := r.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	runID := uuid.NewString()
	log = log.With(slog.String("run_id", runID))
	log.Info("batch started", slog.Int("spectra", len(spectra)), slog.Int("workers", workers))
	start := time.Now()

	rows := make([]row, len(spectra))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, sp := range spectra {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows[i] = r.one(ctx, sp, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := newResult(len(spectra))
	for i, rw := range rows {
		if rw.err != nil {
			out.fail(i)
			out.Failures = append(out.Failures, Failure{Position: i, Index: spectra[i].Index, Err: rw.err})
			continue
		}
		out.set(i, rw.res)
	}
	r.summarize(log, out, time.Since(start))
	return out, nil
}

// RunSingle decomposes one spectrum through the same failure handling as
// Run.
func (r *Runner) RunSingle(ctx context.Context, sp agd.Spectrum) (*Result, error) {
	single := *r
	single.Workers = 1
	return single.Run(ctx, []agd.Spectrum{sp})
}

// one runs a single decomposition and converts panics into errors.
func (r *Runner) one(ctx context.Context, sp agd.Spectrum, log *slog.Logger) (rw row) {
	decompose := r.Decompose
	if decompose == nil {
		decompose = agd.Decompose
	}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			rw = row{err: fmt.Errorf("%w: %v", ErrPanic, p)}
		}
		r.observe(rw, time.Since(start))
	}()

	res, err := decompose(ctx, sp, r.Settings, agd.WithLogger(log))
	if err != nil {
		return row{err: err}
	}
	return row{res: res}
}

func (r *Runner) observe(rw row, elapsed time.Duration) {
	if r.Metrics == nil {
		return
	}
	if rw.err != nil {
		r.Metrics.Observe("failed", elapsed, 0)
		return
	}
	r.Metrics.Observe(OutcomeLabel(rw.res.Outcome), elapsed, rw.res.NComponents())
}

// OutcomeLabel names an outcome for logs and metrics.
func OutcomeLabel(o agd.Outcome) string {
	switch o.(type) {
	case agd.Improved:
		return "improved"
	case agd.Fitted:
		return "fitted"
	case agd.GuessOnly:
		return "guess_only"
	default:
		return "no_components"
	}
}

// summarize logs the batch totals and, once, every failure.
func (r *Runner) summarize(log *slog.Logger, out *Result, elapsed time.Duration) {
	total := 0
	for _, n := range out.NComponents {
		if n != nil {
			total += *n
		}
	}
	log.Info("batch finished",
		slog.Int("spectra", out.Len()),
		slog.Int("failed", len(out.Failures)),
		slog.Int("components", total),
		slog.Duration("elapsed", elapsed))
	if len(out.Failures) == 0 {
		return
	}

	attrs := make([]any, 0, len(out.Failures))
	for _, f := range out.Failures {
		attrs = append(attrs, slog.String(fmt.Sprintf("spectrum_%d", f.Index), f.Err.Error()))
	}
	log.Warn("spectra failed", slog.Group("failures", attrs...))
}
