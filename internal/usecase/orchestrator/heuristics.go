package orchestrator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"techassist/internal/domain"
)

// stopWords are dropped from keyword extraction.
var stopWords = toSet(
	"a", "about", "above", "after", "again", "all", "am", "an", "and", "any", "are", "as", "at",
	"be", "because", "been", "before", "being", "below", "between", "both", "but", "by",
	"can", "could", "did", "do", "does", "doing", "down", "during", "each", "few", "for", "from",
	"further", "get", "got", "had", "has", "have", "having", "he", "her", "here", "hers", "him",
	"his", "how", "i", "if", "in", "into", "is", "it", "it's", "its", "itself", "just", "me",
	"more", "most", "my", "myself", "need", "no", "nor", "not", "now", "of", "off", "on", "once",
	"only", "or", "other", "our", "ours", "out", "over", "own", "please", "same", "she", "should",
	"so", "some", "such", "than", "that", "the", "their", "theirs", "them", "then", "there",
	"these", "they", "this", "those", "through", "to", "too", "under", "until", "up", "very",
	"was", "we", "were", "what", "when", "where", "which", "while", "who", "whom", "why", "will",
	"with", "would", "you", "your", "yours",
)

// conjunctionWords mark a query that combines several requests.
var conjunctionWords = []string{
	"also", "additionally", "furthermore", "moreover", "as well as", "in addition",
	"along with", "plus", "and then", "besides",
}

// complexPhrases mark a query that likely needs more than one specialist.
var complexPhrases = []string{
	"compare", "difference between", "step by step", "step-by-step", "root cause",
	"pros and cons", "what are the options", "best way to", "in detail", "explain why",
	"how and why", "walk me through", "end to end", "end-to-end",
}

// multiAgentLengthThreshold is the query length in characters above which
// fan-out is considered.
const multiAgentLengthThreshold = 150

// followupReference matches pronouns and back-references to earlier turns.
var followupReference = regexp.MustCompile(`(?i)\b(it|its|it's|this|that|these|those|they|them|the same|above|previous|previously|earlier|mentioned|you said)\b`)

// followupLead matches continuation openers.
var followupLead = regexp.MustCompile(`(?i)^\s*(and|also|but|so|then|what about|how about|what else|what if|tell me more|more on|continue|go on|can you|could you|please)\b`)

// followupMaxTokens is the token count at or below which any query is
// treated as a followup.
const followupMaxTokens = 3

// fallbackPairing names the type consulted when a classification has low
// confidence and no keyword signal points elsewhere.
var fallbackPairing = map[domain.AgentType]domain.AgentType{
	domain.AgentDocumentation:   domain.AgentTroubleshooting,
	domain.AgentTroubleshooting: domain.AgentDocumentation,
	domain.AgentMaintenance:     domain.AgentDocumentation,
}

// adjacentTypes are consulted in multi-agent mode when no keyword signal
// ranks the other types.
var adjacentTypes = map[domain.AgentType][]domain.AgentType{
	domain.AgentDocumentation:   {domain.AgentTroubleshooting},
	domain.AgentTroubleshooting: {domain.AgentDocumentation, domain.AgentMaintenance},
	domain.AgentMaintenance:     {domain.AgentDocumentation},
}

// maxAdditionalAgents caps the ranked additional agent types.
const maxAdditionalAgents = 2

var tokenRe = regexp.MustCompile(`[a-z0-9][a-z0-9'_-]*`)

func tokenize(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

// ExtractKeywords returns the matching signal of a query: lowercase tokens
// longer than two characters that are not stop-words, followed by adjacent
// bigrams where at least one side is not a stop-word. Order is stable and
// duplicates are dropped.
func ExtractKeywords(query string) []string {
	tokens := tokenize(query)
	seen := make(map[string]bool)
	var out []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, tok := range tokens {
		if len(tok) > 2 && !stopWords[tok] {
			add(tok)
		}
	}
	for i := 0; i+1 < len(tokens); i++ {
		a, b := tokens[i], tokens[i+1]
		if !stopWords[a] || !stopWords[b] {
			add(a + " " + b)
		}
	}
	return out
}

// IsComplexQuery reports whether the query text alone calls for several agents.
func IsComplexQuery(query string) bool {
	if utf8.RuneCountInString(query) > multiAgentLengthThreshold {
		return true
	}
	if strings.Count(query, "?") > 1 {
		return true
	}
	lower := " " + strings.Join(tokenize(query), " ") + " "
	for _, w := range conjunctionWords {
		if strings.Contains(lower, " "+w+" ") {
			return true
		}
	}
	raw := strings.ToLower(query)
	for _, p := range complexPhrases {
		if strings.Contains(raw, p) {
			return true
		}
	}
	return false
}

// IsFollowup reports whether the query reads as a continuation of the
// previous turn.
func IsFollowup(query string) bool {
	if len(tokenize(query)) <= followupMaxTokens {
		return true
	}
	return followupReference.MatchString(query) || followupLead.MatchString(query)
}

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
