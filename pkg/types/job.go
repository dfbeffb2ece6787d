package types

import (
	"errors"
	"strings"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/duke-git/lancet/v2/strutil"
)

// ErrNilJob is returned when a nil job is validated.
var ErrNilJob = errors.New("job cannot be nil")

// Document is one named text submitted as part of a job.
type Document struct {
	Name    string `json:"name" yaml:"name"`
	Content string `json:"content" yaml:"content"`
}

// Job is a client request: the documents to scan and the keywords to count.
// Keywords are unique under case-insensitive comparison once normalized.
type Job struct {
	Documents []Document `json:"documents"`
	Keywords  []string   `json:"keywords"`
}

// Validate checks that the job can be distributed.
func (j *Job) Validate() error {
	if j == nil {
		return ErrNilJob
	}
	return nil
}

// Normalize rewrites the keyword list in place, see NormalizeKeywords.
func (j *Job) Normalize() {
	j.Keywords = NormalizeKeywords(j.Keywords)
}

// DocumentNames returns the document names in submission order.
func (j *Job) DocumentNames() []string {
	return slice.Map(j.Documents, func(_ int, d Document) string {
		return d.Name
	})
}

// NormalizeKeywords trims every keyword, drops blank ones and drops
// case-insensitive duplicates. The first spelling of a keyword wins and the
// relative order is preserved.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	trimmed := slice.Map(keywords, func(_ int, k string) string {
		return strutil.Trim(k)
	})
	return slice.Filter(trimmed, func(_ int, k string) bool {
		if strutil.IsBlank(k) {
			return false
		}
		key := strings.ToLower(k)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	})
}
