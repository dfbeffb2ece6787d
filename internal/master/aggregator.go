package master

import (
	"strings"

	"yqhp/freq-engine/pkg/types"
)

// Aggregate folds per-document results into the keyword-by-document matrix.
// Results are folded in slice order, which the distributor keeps equal to
// task id order. Every result contributes its document to FileOrder; a failed
// result contributes 0 to every keyword row.
func Aggregate(job *types.Job, results []*types.TaskResult) *types.AggregateResult {
	agg := types.NewAggregateResult(job.Keywords)

	for _, res := range results {
		if res == nil {
			continue
		}
		agg.FileOrder = append(agg.FileOrder, res.DocumentName)

		for _, kw := range agg.KeywordOrder {
			pct := 0.0
			if !res.Failed() {
				pct = Percentage(lookupCount(res.KeywordCounts, kw), res.TotalWordCount)
			}
			agg.Matrix[kw][res.DocumentName] = pct
		}
	}

	return agg
}

// Percentage returns 100*count/total, or 0 for an empty document.
func Percentage(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(count) / float64(total)
}

// lookupCount finds keyword in counts, falling back to a case-insensitive
// match for slaves that key counts by a different spelling.
func lookupCount(counts map[string]int, keyword string) int {
	if c, ok := counts[keyword]; ok {
		return c
	}
	for k, c := range counts {
		if strings.EqualFold(k, keyword) {
			return c
		}
	}
	return 0
}
