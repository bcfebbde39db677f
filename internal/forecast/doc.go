// Package forecast implements the revenue forecasting engine: a from-scratch
// least-squares polynomial regression over short monthly revenue series.
//
// The engine is pure and stateless. It fits a polynomial to an observed
// series of (x, y) samples, evaluates the fitted model at arbitrary points,
// scores goodness of fit, and projects future values. Every call owns its
// inputs and outputs, so the package is safe for concurrent use without
// synchronization.
//
// # Method
//
// Fitting reduces the least-squares problem to the normal equations
// (Xᵀ·X)·β = Xᵀ·Y and solves the resulting square system by Gaussian
// elimination with partial pivoting. Normal equations are numerically weaker
// than QR or SVD for ill-conditioned or large problems, but the series here
// are tiny (≤ 15 samples, degree ≤ 3) and this matches the behavior the
// analytics dashboard was built against. This is a known limitation, not an
// accuracy target.
//
// # Degenerate inputs
//
// Requesting more flexibility than the data supports is not an error: the
// degree is silently reduced to max(1, n-1). A system that remains singular
// after pivoting (duplicate x values, a single sample) yields
// ErrSingularSystem rather than NaN coefficients. An empty series yields
// ErrEmptySeries.
package forecast
