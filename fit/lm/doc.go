// Package lm implements a bounded Levenberg-Marquardt least-squares solver.
//
// Solve minimizes the sum of squared residuals of a user function over a
// parameter vector. Box bounds are handled by the MINUIT variable
// transformations: the solver works on unconstrained internal parameters p
// and the function always sees external parameters x(p) within bounds.
//
//	lower only:  x = lo - 1 + sqrt(p^2 + 1)
//	upper only:  x = hi + 1 - sqrt(p^2 + 1)
//	both:        x = lo + (sin(p) + 1) * (hi - lo) / 2
//
// The Jacobian is approximated by forward differences in internal
// coordinates. Each iteration solves the damped normal equations
//
//	(J^T J + lambda * diag(J^T J)) delta = -J^T r
//
// with a Cholesky factorization. After convergence the covariance
// inv(J^T J) is mapped to external coordinates and scaled by the reduced
// chi-square, which yields the parameter standard errors.
//
// Every residual evaluation, including those spent on the Jacobian, counts
// against Settings.MaxEval.
package lm
