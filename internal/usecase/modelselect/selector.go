// Package modelselect estimates query complexity and suggests a model tier.
package modelselect

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"techassist/internal/domain"
)

// Tier boundaries on the complexity score.
const (
	smallBelow  = 0.35
	mediumBelow = 0.7
)

// Hint adjustments applied to the raw score.
const (
	costNudge    = -0.15
	qualityNudge = 0.15
)

// tokenSaturation is the token count at which length alone contributes its
// full weight.
const tokenSaturation = 400

// historyWindow is the number of recent turns counted toward context length.
const historyWindow = 6

// indicator is one row of the complexity table.
type indicator struct {
	name    string
	pattern *regexp.Regexp
	weight  float64
}

// complexityIndicators raise the score when a query asks for reasoning,
// multi-step work or safety-critical procedure detail.
var complexityIndicators = []indicator{
	{"analysis", regexp.MustCompile(`(?i)\b(analy[sz]e|compare|evaluate|trade-?offs?|root cause|why does|why is)\b`), 0.2},
	{"procedure", regexp.MustCompile(`(?i)\b(step[- ]by[- ]step|procedure|overhaul|disassembl\w*|reassembl\w*|calibrat\w*)\b`), 0.15},
	{"multi_part", regexp.MustCompile(`(?i)\b(and also|as well as|in addition|additionally|both)\b`), 0.1},
	{"safety", regexp.MustCompile(`(?i)\b(safety|hazard\w*|torque|pressure|regulat\w*|complian\w*|airworth\w*)\b`), 0.1},
	{"code", regexp.MustCompile("```|\\b(func|def|class|SELECT|import)\\b"), 0.15},
	{"diagnosis", regexp.MustCompile(`(?i)\b(intermittent\w*|diagnos\w*|fault code|error code|troubleshoot\w*)\b`), 0.1},
}

// simpleIndicators lower the score for lookup-style queries.
var simpleIndicators = []indicator{
	{"lookup", regexp.MustCompile(`(?i)^\s*(where|what is|who|when|which)\b`), -0.1},
	{"short_ack", regexp.MustCompile(`(?i)^\s*(thanks|thank you|ok|okay|yes|no)\b`), -0.2},
}

// Selector implements domain.ModelSelector with a token-count and
// indicator-table heuristic.
type Selector struct {
	tokens domain.TokenCounter
	logger *slog.Logger
}

var _ domain.ModelSelector = (*Selector)(nil)

// New creates a Selector. A nil counter falls back to a words-based count.
func New(tokens domain.TokenCounter, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{tokens: tokens, logger: logger}
}

// SelectModel scores the query and maps the score onto a tier.
func (s *Selector) SelectModel(ctx context.Context, req domain.ModelSelectionRequest) (*domain.ModelSelection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, domain.NewDomainError("Selector.SelectModel", domain.ErrInvalidInput, "empty query")
	}

	score, reasons := s.Score(req.Query, req.History)
	switch {
	case req.PreferCost && !req.PreferQuality:
		score += costNudge
		reasons = append(reasons, "cost preference")
	case req.PreferQuality && !req.PreferCost:
		score += qualityNudge
		reasons = append(reasons, "quality preference")
	}
	score = domain.ClampConfidence(score)

	tier := TierFor(score)
	s.logger.Debug("model tier selected", "tier", tier, "score", score)
	return &domain.ModelSelection{
		Tier:            tier,
		ComplexityScore: score,
		Reason:          fmt.Sprintf("complexity %.2f (%s)", score, strings.Join(reasons, ", ")),
	}, nil
}

// Score returns the unclamped complexity score of query in the context of
// history, and the names of the signals that contributed.
func (s *Selector) Score(query string, history []domain.ConversationMessage) (float64, []string) {
	tokens := s.count(query)
	if n := len(history); n > 0 {
		start := max(0, n-historyWindow)
		for _, m := range history[start:] {
			tokens += s.count(m.Content) / 4
		}
	}

	lengthScore := min(1, float64(tokens)/tokenSaturation) * 0.4
	score := 0.15 + lengthScore
	reasons := []string{fmt.Sprintf("%d tokens", tokens)}

	for _, ind := range complexityIndicators {
		if ind.pattern.MatchString(query) {
			score += ind.weight
			reasons = append(reasons, ind.name)
		}
	}
	for _, ind := range simpleIndicators {
		if ind.pattern.MatchString(query) {
			score += ind.weight
			reasons = append(reasons, ind.name)
		}
	}
	if q := strings.Count(query, "?"); q > 1 {
		score += 0.05 * float64(min(q-1, 3))
		reasons = append(reasons, "multiple questions")
	}
	return score, reasons
}

func (s *Selector) count(text string) int {
	if s.tokens != nil {
		return s.tokens.Count(text)
	}
	return len(strings.Fields(text))
}

// TierFor maps a complexity score onto a tier.
func TierFor(score float64) domain.ModelTier {
	switch {
	case score < smallBelow:
		return domain.TierSmall
	case score < mediumBelow:
		return domain.TierMedium
	default:
		return domain.TierLarge
	}
}
