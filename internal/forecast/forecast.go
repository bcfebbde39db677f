package forecast

import (
	"errors"
	"math"
)

// Sample is a single observation in a revenue series. X is an integer time
// step (0, 1, 2, ... — not a calendar date); Y is a non-negative currency
// amount. Slice order is chronological and semantically meaningful.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

var (
	// ErrEmptySeries is returned when an operation requires at least one sample.
	ErrEmptySeries = errors.New("forecast: empty series")

	// ErrSingularSystem is returned when the normal-equations matrix is
	// singular even after partial pivoting and no fit is possible, e.g. when
	// all x values are identical.
	ErrSingularSystem = errors.New("forecast: singular system, fit not possible for given series")
)

// zeroVarianceEps bounds the residual sum of squares under which a
// zero-variance series counts as perfectly fitted.
const zeroVarianceEps = 1e-12

// Fit computes the least-squares polynomial coefficients explaining series up
// to the requested degree. Coefficients are returned in ascending power
// order: y = c[0] + c[1]·x + ... + c[d]·x^d.
//
// If the series has fewer than degree+1 points the degree is silently
// reduced to max(1, n-1); asking for more flexibility than the data supports
// is never an error. Returns ErrSingularSystem when the reduced system has
// no unique solution.
func Fit(series []Sample, degree int) ([]float64, error) {
	n := len(series)
	if n == 0 {
		return nil, ErrEmptySeries
	}
	if degree < 1 {
		degree = 1
	}
	if n < degree+1 {
		degree = n - 1
		if degree < 1 {
			degree = 1
		}
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, s := range series {
		xs[i] = s.X
		ys[i] = s.Y
	}

	design := designMatrix(xs, degree)
	dt := transpose(design)

	// Normal equations: (Xᵀ·X)·β = Xᵀ·Y
	lhs := multiply(dt, design)
	rhs := multiplyVector(dt, ys)

	coeffs, err := solveLinearSystem(lhs, rhs)
	if err != nil {
		return nil, err
	}

	return coeffs, nil
}

// Predict evaluates the fitted polynomial at x and clamps the result to be
// non-negative. The clamp is a domain correction: a polynomial fitted to a
// handful of points can swing negative, but revenue cannot.
func Predict(x float64, coeffs []float64) float64 {
	y := evaluate(x, coeffs)
	if y < 0 {
		return 0
	}

	return y
}

// evaluate computes the raw polynomial value at x via Horner's rule, without
// the non-negativity clamp. Residual computations use this form.
func evaluate(x float64, coeffs []float64) float64 {
	y := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		y = y*x + coeffs[i]
	}

	return y
}

// RSquared reports the coefficient of determination of coeffs against the
// observed series: 1 - SSres/SStot. Residuals use the raw (unclamped)
// polynomial evaluation, since the score measures fit quality rather than
// domain validity.
//
// When every observed y is identical SStot is zero; the convention here is
// 1.0 when the residuals are also ~0 (the constant model explains a constant
// series perfectly) and 0.0 otherwise. The score is not clamped: a poor fit
// on a tiny sample can legitimately score below zero and callers see that
// as-is.
func RSquared(series []Sample, coeffs []float64) float64 {
	n := len(series)
	if n == 0 {
		return 0
	}

	mean := 0.0
	for _, s := range series {
		mean += s.Y
	}
	mean /= float64(n)

	ssTot := 0.0
	ssRes := 0.0
	for _, s := range series {
		d := s.Y - mean
		ssTot += d * d

		r := s.Y - evaluate(s.X, coeffs)
		ssRes += r * r
	}

	if ssTot == 0 {
		if ssRes <= zeroVarianceEps {
			return 1.0
		}

		return 0.0
	}

	return 1.0 - ssRes/ssTot
}

// Fitted evaluates coeffs at each observed x, producing the model's view of
// the historical series. Values are clamped non-negative like Predict.
func Fitted(series []Sample, coeffs []float64) []Sample {
	out := make([]Sample, len(series))
	for i, s := range series {
		out[i] = Sample{X: s.X, Y: Predict(s.X, coeffs)}
	}

	return out
}

// Project fits series with the given degree and returns exactly count future
// samples at lastX+1 .. lastX+count, contiguous with the observed series and
// clamped non-negative. An empty series is rejected with ErrEmptySeries
// rather than anchoring projections at x=0.
func Project(series []Sample, count, degree int) ([]Sample, error) {
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}

	coeffs, err := Fit(series, degree)
	if err != nil {
		return nil, err
	}

	if count <= 0 {
		return []Sample{}, nil
	}

	lastX := series[len(series)-1].X
	out := make([]Sample, 0, count)
	for i := 1; i <= count; i++ {
		x := lastX + float64(i)
		out = append(out, Sample{X: x, Y: Predict(x, coeffs)})
	}

	return out, nil
}

// RMSE computes the root mean square error of coeffs against the series,
// using the raw polynomial evaluation.
func RMSE(series []Sample, coeffs []float64) float64 {
	n := len(series)
	if n == 0 {
		return 0
	}

	sumSq := 0.0
	for _, s := range series {
		r := s.Y - evaluate(s.X, coeffs)
		sumSq += r * r
	}

	return math.Sqrt(sumSq / float64(n))
}
