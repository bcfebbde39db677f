package forecast

import "math"

// singularEps is the pivot magnitude below which the system is treated as
// singular. The matrices here are at most 4×4 with entries built from small
// integer powers, so anything this close to zero is degeneracy, not noise.
const singularEps = 1e-12

// designMatrix builds the Vandermonde-style design matrix for a polynomial
// fit: row i is [1, x_i, x_i², ..., x_i^degree].
func designMatrix(xs []float64, degree int) [][]float64 {
	m := make([][]float64, len(xs))
	for i, x := range xs {
		row := make([]float64, degree+1)
		p := 1.0
		for j := 0; j <= degree; j++ {
			row[j] = p
			p *= x
		}
		m[i] = row
	}

	return m
}

// transpose returns the transpose of a (rows×cols) matrix.
func transpose(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return nil
	}

	rows := len(m)
	cols := len(m[0])
	t := make([][]float64, cols)
	for i := 0; i < cols; i++ {
		t[i] = make([]float64, rows)
		for j := 0; j < rows; j++ {
			t[i][j] = m[j][i]
		}
	}

	return t
}

// multiply computes the matrix product a·b. Dimensions must agree
// (len(a[0]) == len(b)); callers in this package always pass conformant
// matrices built from the same design matrix.
func multiply(a, b [][]float64) [][]float64 {
	rows := len(a)
	inner := len(b)
	cols := len(b[0])

	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		for k := 0; k < inner; k++ {
			aik := a[i][k]
			if aik == 0 {
				continue
			}
			for j := 0; j < cols; j++ {
				out[i][j] += aik * b[k][j]
			}
		}
	}

	return out
}

// multiplyVector computes the matrix-vector product a·v.
func multiplyVector(a [][]float64, v []float64) []float64 {
	out := make([]float64, len(a))
	for i, row := range a {
		sum := 0.0
		for j, x := range row {
			sum += x * v[j]
		}
		out[i] = sum
	}

	return out
}

// solveLinearSystem solves the square system a·x = b by Gaussian elimination
// with partial pivoting and back substitution. Partial pivoting is required:
// without it a near-zero pivot silently turns the coefficients into NaN or
// Inf. Returns ErrSingularSystem when the best available pivot is still
// effectively zero.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)

	// Augmented working copy so the inputs stay untouched.
	m := make([][]float64, n)
	for i := 0; i < n; i++ {
		m[i] = make([]float64, n+1)
		copy(m[i], a[i])
		m[i][n] = b[i]
	}

	for col := 0; col < n; col++ {
		// Partial pivoting: bring the row with the largest absolute value
		// in this column into the pivot position.
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}

		if math.Abs(m[pivot][col]) < singularEps {
			return nil, ErrSingularSystem
		}

		if pivot != col {
			m[col], m[pivot] = m[pivot], m[col]
		}

		for row := col + 1; row < n; row++ {
			factor := m[row][col] / m[col][col]
			if factor == 0 {
				continue
			}
			for k := col; k <= n; k++ {
				m[row][k] -= factor * m[col][k]
			}
		}
	}

	// Back substitution.
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := m[i][n]
		for j := i + 1; j < n; j++ {
			sum -= m[i][j] * x[j]
		}
		x[i] = sum / m[i][i]
	}

	return x, nil
}
