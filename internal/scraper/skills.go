package scraper

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultSkills is the vocabulary matched against posting text.
var DefaultSkills = []string{
	"angular", "aws", "azure", "c#", "c++", "django", "docker", "elasticsearch",
	"gcp", "golang", "graphql", "java", "javascript", "kafka", "kotlin",
	"kubernetes", "machine learning", "mongodb", "mysql", "node.js", "php",
	"postgresql", "python", "rabbitmq", "react", "redis", "ruby", "rust",
	"scala", "spark", "sql", "swift", "terraform", "typescript", "vue",
}

// MatchSkills returns the vocabulary terms that appear (case-insensitive) in
// text as whole tokens or token sequences: "java" does not match "javascript",
// "machine learning" matches across any whitespace. Result is sorted.
func MatchSkills(text string, vocabulary []string) []string {
	if len(vocabulary) == 0 || strings.TrimSpace(text) == "" {
		return nil
	}
	haystack := " " + strings.Join(tokenize(text), " ") + " "
	var found []string
	for _, term := range vocabulary {
		tokens := tokenize(term)
		if len(tokens) == 0 {
			continue
		}
		if strings.Contains(haystack, " "+strings.Join(tokens, " ")+" ") {
			found = append(found, strings.ToLower(strings.TrimSpace(term)))
		}
	}
	return MergeSkills(found)
}

// MergeSkills unions skill lists into one lowercase, de-duplicated, sorted set.
func MergeSkills(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, s := range list {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				seen[s] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// tokenize lowercases s and splits it on anything that cannot be part of a
// technology name. '+', '#' and '.' are kept ("c++", "c#", "node.js") but a
// trailing '.' is sentence punctuation and is dropped.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#' && r != '.'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimRight(f, "."); f != "" {
			out = append(out, f)
		}
	}
	return out
}
