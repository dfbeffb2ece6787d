package types

// AggregateResult is the keyword-by-document percentage matrix returned to
// the client for one job.
type AggregateResult struct {
	// Matrix maps keyword -> document name -> percentage of the document's words.
	Matrix map[string]map[string]float64 `json:"keyword_to_file_percentages"`
	// FileOrder lists document names in the order their results were folded,
	// including documents whose task failed.
	FileOrder []string `json:"file_order"`
	// KeywordOrder lists the matrix rows in job order.
	KeywordOrder      []string `json:"keyword_order"`
	TotalProcessingMs int64    `json:"total_processing_ms"`
}

// NewAggregateResult returns a result with one empty row per keyword and no
// documents.
func NewAggregateResult(keywords []string) *AggregateResult {
	matrix := make(map[string]map[string]float64, len(keywords))
	order := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if _, ok := matrix[kw]; ok {
			continue
		}
		matrix[kw] = make(map[string]float64)
		order = append(order, kw)
	}
	return &AggregateResult{
		Matrix:       matrix,
		FileOrder:    make([]string, 0),
		KeywordOrder: order,
	}
}

// Percentage returns the matrix cell for keyword and document, 0 when absent.
func (a *AggregateResult) Percentage(keyword, document string) float64 {
	row, ok := a.Matrix[keyword]
	if !ok {
		return 0
	}
	return row[document]
}
