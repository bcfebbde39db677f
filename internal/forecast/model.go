package forecast

import (
	"fmt"
	"strings"
)

// Model bundles a fitted polynomial with its fit statistics.
//
// Fields:
//   - Degree: effective polynomial degree after clamping
//   - Coefficients: fitted parameters in ascending power order
//   - RSquared: coefficient of determination (may be negative for poor fits)
//   - RMSE: root mean square error against the observed series
//   - Formula: human-readable representation of the model
type Model struct {
	Degree       int       `json:"degree"`
	Coefficients []float64 `json:"coefficients"`
	RSquared     float64   `json:"r_squared"`
	RMSE         float64   `json:"rmse"`
	Formula      string    `json:"formula"`
}

// FitModel fits series up to degree and returns the model together with its
// fit statistics. Degree clamping and error behavior match Fit.
func FitModel(series []Sample, degree int) (*Model, error) {
	coeffs, err := Fit(series, degree)
	if err != nil {
		return nil, err
	}

	return &Model{
		Degree:       len(coeffs) - 1,
		Coefficients: coeffs,
		RSquared:     RSquared(series, coeffs),
		RMSE:         RMSE(series, coeffs),
		Formula:      formatFormula(coeffs),
	}, nil
}

// Predict evaluates the model at x, clamped non-negative.
func (m *Model) Predict(x float64) float64 {
	return Predict(x, m.Coefficients)
}

// String returns a short human-readable summary of the model.
func (m *Model) String() string {
	return fmt.Sprintf("Model{Degree: %d, R²: %.4f, RMSE: %.4f, Formula: %s}",
		m.Degree, m.RSquared, m.RMSE, m.Formula)
}

// formatFormula renders coefficients as "y = a0 + a1·x + a2·x^2 ...".
func formatFormula(coeffs []float64) string {
	var b strings.Builder
	b.WriteString("y = ")
	for i, c := range coeffs {
		if i > 0 {
			if c < 0 {
				b.WriteString(" - ")
				c = -c
			} else {
				b.WriteString(" + ")
			}
		}
		switch i {
		case 0:
			fmt.Fprintf(&b, "%.2f", c)
		case 1:
			fmt.Fprintf(&b, "%.2f·x", c)
		default:
			fmt.Fprintf(&b, "%.2f·x^%d", c, i)
		}
	}

	return b.String()
}
