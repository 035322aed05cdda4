// Package agd decomposes a spectrum into Gaussian components with the
// Autonomous Gaussian Decomposition algorithm.
//
// # Algorithm
//
// Decompose runs up to four stages on one spectrum:
//
//  1. Phase one: candidate components are guessed from regularized
//     derivatives of the data at smoothing scale Alpha1 (package guess).
//  2. Phase two (optional): the phase-one candidates are fitted to the
//     second derivative of the data, subtracted, and the median-filtered
//     residual is searched again at the broader scale Alpha2. Both candidate
//     sets are combined and ordered by descending amplitude.
//  3. Final fit: all candidates are refined by bounded nonlinear least
//     squares against the data (package fit).
//  4. Improvement (optional): the fit is repaired and extended until it
//     passes quality control (package improve).
//
// # Results
//
// The outcome of a decomposition is one of NoComponents, GuessOnly, Fitted
// or Improved; consumers switch on the concrete type:
//
//	res, err := agd.Decompose(ctx, spectrum, agd.ApplySettingsOptions(agd.WithAlpha1(2.5)))
//	switch o := res.Outcome.(type) {
//	case agd.Improved:
//		use(o.Params, o.Report.RChi2)
//	case agd.Fitted:
//		use(o.Params, math.NaN())
//	}
//
// Settings are plain values. Build them with DefaultSettings or
// ApplySettingsOptions and never share a mutable copy between goroutines.
package agd
