package neo4j

import (
	"sort"
	"strings"
	"unicode"
)

const (
	maxTopicsPerChunk = 6
	minTopicRunes     = 4
)

var topicStopwords = map[string]struct{}{
	"about": {}, "actually": {}, "after": {}, "again": {}, "also": {}, "because": {},
	"been": {}, "before": {}, "being": {}, "could": {}, "does": {}, "doing": {},
	"going": {}, "gonna": {}, "have": {}, "just": {}, "know": {}, "like": {},
	"little": {}, "make": {}, "really": {}, "right": {}, "should": {}, "some": {},
	"that": {}, "their": {}, "them": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "thing": {}, "things": {}, "this": {}, "those": {}, "want": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {}, "will": {},
	"with": {}, "would": {}, "your": {}, "yeah": {}, "okay": {}, "from": {},
	"here": {}, "into": {}, "more": {}, "much": {}, "very": {}, "than": {},
}

// luceneSpecial lists characters that carry syntax in the fulltext query parser.
const luceneSpecial = `+-&|!(){}[]^"~*?:\/`

// extractTopics picks the most frequent content words of a passage, ties broken alphabetically.
func extractTopics(text string, limit int) []string {
	counts := make(map[string]int)
	for _, token := range splitWords(text) {
		if len([]rune(token)) < minTopicRunes {
			continue
		}
		if _, stop := topicStopwords[token]; stop {
			continue
		}
		counts[token]++
	}

	topics := make([]string, 0, len(counts))
	for token := range counts {
		topics = append(topics, token)
	}
	sort.Slice(topics, func(i, j int) bool {
		if counts[topics[i]] != counts[topics[j]] {
			return counts[topics[i]] > counts[topics[j]]
		}
		return topics[i] < topics[j]
	})
	if len(topics) > limit {
		topics = topics[:limit]
	}
	return topics
}

// luceneQuery turns free text into an OR query of escaped terms.
func luceneQuery(text string) string {
	terms := make([]string, 0)
	seen := make(map[string]struct{})
	for _, token := range splitWords(text) {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		terms = append(terms, escapeLucene(token))
	}
	return strings.Join(terms, " OR ")
}

func escapeLucene(term string) string {
	var b strings.Builder
	for _, r := range term {
		if strings.ContainsRune(luceneSpecial, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
