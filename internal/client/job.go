package client

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/duke-git/lancet/v2/fileutil"

	"yqhp/freq-engine/pkg/types"
)

// LoadJob reads every path into a document named by its base name and
// normalizes keywords.
func LoadJob(paths []string, keywords []string) (*types.Job, error) {
	job := &types.Job{
		Documents: make([]types.Document, 0, len(paths)),
		Keywords:  types.NormalizeKeywords(keywords),
	}

	for _, path := range paths {
		content, err := fileutil.ReadFileToString(path)
		if err != nil {
			return nil, fmt.Errorf("read document %s: %w", path, err)
		}
		job.Documents = append(job.Documents, types.Document{
			Name:    filepath.Base(path),
			Content: strings.TrimPrefix(content, "\uFEFF"),
		})
	}

	return job, nil
}

// ParseKeywords splits s on commas and whitespace and normalizes the result.
func ParseKeywords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	return types.NormalizeKeywords(fields)
}

// LoadKeywords reads a keyword file: one or more keywords per line,
// separated by commas or whitespace.
func LoadKeywords(path string) ([]string, error) {
	content, err := fileutil.ReadFileToString(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords %s: %w", path, err)
	}
	return ParseKeywords(content), nil
}
