package metadata

import (
	"fmt"
	"math"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// PageSizes returns the media box dimensions of every page in the PDF at
// path, in points.
func PageSizes(path string) ([]PageSize, error) {
	dims, err := api.PageDimsFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading page dimensions of %s: %w", path, err)
	}
	sizes := make([]PageSize, len(dims))
	for i, d := range dims {
		sizes[i] = PageSize{W: round2(d.Width), H: round2(d.Height)}
	}
	return sizes, nil
}

// InferGap estimates the horizontal gap, in points, that a side-by-side
// merge inserted between the two halves of each page. For each page the
// candidate gap is the merged width minus twice the source width; candidates
// below -0.5pt indicate the page was not merged and are discarded, small
// negatives are clamped to zero. The median of the surviving candidates is
// returned, or 0 when nothing survives.
func InferGap(sourceSizes, resultSizes []PageSize) float64 {
	n := len(sourceSizes)
	if len(resultSizes) < n {
		n = len(resultSizes)
	}

	var cands []float64
	for i := 0; i < n; i++ {
		cand := round2(resultSizes[i].W - 2*sourceSizes[i].W)
		if cand < -0.5 {
			continue
		}
		cands = append(cands, math.Max(0, cand))
	}
	if len(cands) == 0 {
		return 0
	}

	sort.Float64s(cands)
	mid := len(cands) / 2
	if len(cands)%2 == 1 {
		return cands[mid]
	}
	return round2((cands[mid-1] + cands[mid]) / 2)
}
