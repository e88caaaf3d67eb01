package chemsim

import (
	"math"

	"chemsim/internal/sim"
)

// mergeResults combines per-worker ensemble means into one result, weighting
// each worker's row by the members that reached that time point. Workers
// without member counts are weighted by their ensemble size. Fluctuations are
// pooled exactly from the workers' final-value means and standard deviations.
func mergeResults(parts []*Results, sizes []int) *Results {
	if len(parts) == 1 {
		return parts[0]
	}
	first := parts[0]
	total := 0
	for _, n := range sizes {
		total += n
	}

	out := &Results{
		Simulator:    first.Simulator,
		Start:        first.Start,
		End:          first.End,
		Parameters:   first.Parameters,
		Symbols:      first.Symbols,
		Times:        first.Times,
		Values:       make([][]float64, len(first.Times)),
		CreatedAt:    first.CreatedAt,
		Members:      make([]int, len(first.Times)),
		FilledPoints: len(first.Times),
	}
	out.Parameters.EnsembleSize = sim.Int(total)

	for i := range out.Values {
		row := make([]float64, len(out.Symbols))
		var weight float64
		for p, part := range parts {
			if i >= part.FilledPoints {
				continue
			}
			n := members(part, sizes[p], i)
			if n == 0 {
				continue
			}
			out.Members[i] += n
			w := float64(n)
			weight += w
			for k, v := range part.Values[i] {
				row[k] += w * v
			}
		}
		if weight > 0 {
			for k := range row {
				row[k] /= weight
			}
		}
		out.Values[i] = row
	}
	for _, part := range parts {
		out.FilledPoints = min(out.FilledPoints, part.FilledPoints)
		out.Iterations += part.Iterations
		out.Cancelled = out.Cancelled || part.Cancelled
	}
	out.Fluctuations = pooledFluctuations(parts, sizes, out)
	return out
}

func members(part *Results, size, i int) int {
	if part.Members == nil {
		return size
	}
	return part.Members[i]
}

// pooledFluctuations combines sample standard deviations of worker groups:
// (sum (n_i-1) s_i^2 + sum n_i (m_i-m)^2) / (N-1).
func pooledFluctuations(parts []*Results, sizes []int, merged *Results) []float64 {
	last := len(merged.Times) - 1
	if merged.Cancelled || merged.FilledPoints <= last {
		return nil
	}
	for _, part := range parts {
		if part.Fluctuations == nil {
			return nil
		}
	}

	total := merged.Members[last]
	if total < 2 {
		return nil
	}
	out := make([]float64, len(merged.Symbols))
	for k := range out {
		mean := merged.Values[last][k]
		var ss float64
		for p, part := range parts {
			n := float64(members(part, sizes[p], last))
			s := part.Fluctuations[k]
			d := part.Values[last][k] - mean
			ss += (n-1)*s*s + n*d*d
		}
		out[k] = math.Sqrt(ss / float64(total-1))
	}
	return out
}
