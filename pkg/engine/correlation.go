package engine

import (
	"math"
	"sort"

	"github.com/marbledata/explorer/pkg/table"
)

// correlate computes the requested coefficient over the rows where both
// columns hold numeric values, returning a derived one-row table.
func correlate(p *CorrelationParams, t *table.Table) (*table.Table, *StructuralError) {
	for _, col := range []string{p.ColumnX, p.ColumnY} {
		if !t.HasColumn(col) {
			return nil, columnNotFound(col)
		}
	}

	var xs, ys []float64
	for _, row := range t.Rows {
		x, xok := table.AsFloat(row[p.ColumnX])
		y, yok := table.AsFloat(row[p.ColumnY])
		if row[p.ColumnX] == nil || row[p.ColumnY] == nil || !xok || !yok {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if len(xs) < 2 {
		return nil, &StructuralError{Reason: ReasonInsufficientData, Detail: "need at least two paired numeric values"}
	}

	var coeff float64
	switch p.Method {
	case CorrSpearman:
		coeff = pearson(ranks(xs), ranks(ys))
	case CorrKendall:
		coeff = kendall(xs, ys)
	default:
		coeff = pearson(xs, ys)
	}

	result := table.New(
		[]string{"column_x", "column_y", "method", "coefficient"},
		[]table.Row{{
			"column_x":    p.ColumnX,
			"column_y":    p.ColumnY,
			"method":      string(p.Method),
			"coefficient": coeff,
		}},
	)
	table.SanitizeRows(result.Rows)
	return result, nil
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	return cov / math.Sqrt(varX*varY)
}

// ranks assigns average ranks, with ties sharing the mean of their positions.
func ranks(vals []float64) []float64 {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })

	out := make([]float64, len(vals))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && vals[idx[j+1]] == vals[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// kendall computes the tau-b coefficient, which corrects for ties.
func kendall(xs, ys []float64) float64 {
	var concordant, discordant float64
	var tiesX, tiesY float64
	for i := 0; i < len(xs); i++ {
		for j := i + 1; j < len(xs); j++ {
			dx := xs[i] - xs[j]
			dy := ys[i] - ys[j]
			switch {
			case dx == 0 && dy == 0:
				// Tied in both; contributes to neither denominator term.
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case dx*dy > 0:
				concordant++
			default:
				discordant++
			}
		}
	}
	denom := math.Sqrt((concordant + discordant + tiesX) * (concordant + discordant + tiesY))
	if denom == 0 {
		return math.NaN()
	}
	return (concordant - discordant) / denom
}
