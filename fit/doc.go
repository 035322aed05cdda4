// Package fit refines multi-Gaussian parameters by bounded nonlinear least
// squares.
//
// Data fits the model sum of Gaussians directly to a spectrum, weighted by
// the per-channel errors and optionally restricted to a channel mask.
//
// SecondDerivative fits the model's discrete second derivative to a
// regularized second derivative of the data inside a fit mask, while outside
// the mask the model is tied to the data with a down-weighted residual. This
// is the intermediate fit used to prepare narrow-line guesses for a second
// decomposition pass.
//
// Both functions return a Solution with the refined parameters, their
// standard errors (NaN when the covariance is unavailable) and the solver
// status. A solver that fails to converge is not an error; the caller
// inspects Solution.Success.
package fit
