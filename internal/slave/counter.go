package slave

import (
	"strings"
)

// isDelimiter 报告 r 是否为分词分隔符。
func isDelimiter(r rune) bool {
	switch r {
	case ' ', '\r', '\n', '\t',
		',', '.', '!', '?', ';', ':', '-', '\u2014',
		'(', ')', '"', '\'', '[', ']', '{', '}', '/', '\\':
		return true
	}
	return false
}

// Tokenize 按固定分隔符集合切分 content，返回小写的非空词元。
func Tokenize(content string) []string {
	tokens := strings.FieldsFunc(content, isDelimiter)
	for i, tok := range tokens {
		tokens[i] = strings.ToLower(tok)
	}
	return tokens
}

// CountKeywords 统计 content 中每个关键词出现的次数（不区分大小写）以及总词数。
// 返回的计数表以调用方给出的关键词拼写为键，未出现的关键词计为 0。
func CountKeywords(content string, keywords []string) (map[string]int, int) {
	counts := make(map[string]int, len(keywords))
	index := make(map[string][]string, len(keywords))
	for _, kw := range keywords {
		if _, ok := counts[kw]; ok {
			continue
		}
		counts[kw] = 0
		lower := strings.ToLower(kw)
		index[lower] = append(index[lower], kw)
	}

	tokens := Tokenize(content)
	for _, tok := range tokens {
		for _, kw := range index[tok] {
			counts[kw]++
		}
	}

	return counts, len(tokens)
}
