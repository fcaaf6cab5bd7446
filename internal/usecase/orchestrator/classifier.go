package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kaptinlin/jsonschema"

	"techassist/internal/domain"
	"techassist/internal/infra/metrics"
	"techassist/internal/infra/tracer"
)

// Classifier defaults.
const (
	DefaultClassifierCacheSize = 1000
	DefaultQuickThreshold      = 0.7
	FallbackConfidence         = 0.3

	classifierHistoryTurns = 3
	classifierTemperature  = 0.1
	classifierMaxTokens    = 500
)

// Classification methods, recorded in metrics.
const (
	methodQuick    = "quick"
	methodLLM      = "llm"
	methodFallback = "fallback"
)

const classificationSchemaJSON = `{
  "type": "object",
  "required": ["agent_type", "confidence"],
  "properties": {
    "agent_type": {"type": "string", "minLength": 1},
    "confidence": {"type": "number"},
    "reasoning": {"type": "string"}
  }
}`

var classificationSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile([]byte(classificationSchemaJSON))
})

// classificationReply is the JSON object the model is asked to produce.
type classificationReply struct {
	AgentType  string  `json:"agent_type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ClassifierStats reports cache effectiveness.
type ClassifierStats struct {
	Hits   int64
	Misses int64
	Size   int
}

// Classifier assigns a query to an agent type. A deterministic keyword pass
// answers confident cases; the rest go to the text-generation capability.
// Every outcome is memoized by query and recent history.
type Classifier struct {
	gen       domain.TextGenerator
	cache     *lru.Cache[string, domain.RequestClassification]
	threshold float64
	logger    *slog.Logger
	metrics   *metrics.Metrics

	hits   atomic.Int64
	misses atomic.Int64
}

// NewClassifier creates a classifier with an LRU cache of cacheSize entries.
// Non-positive sizes and thresholds select the defaults.
func NewClassifier(gen domain.TextGenerator, cacheSize int, quickThreshold float64, logger *slog.Logger, m *metrics.Metrics) (*Classifier, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultClassifierCacheSize
	}
	if quickThreshold <= 0 {
		quickThreshold = DefaultQuickThreshold
	}
	if logger == nil {
		logger = discardLogger()
	}
	cache, err := lru.New[string, domain.RequestClassification](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("classifier cache: %w", err)
	}
	return &Classifier{gen: gen, cache: cache, threshold: quickThreshold, logger: logger, metrics: m}, nil
}

// Classify returns the classification for query. It never fails: any error
// yields a low-confidence classification for the default agent type.
func (c *Classifier) Classify(ctx context.Context, query string, agents []domain.AgentMetadata, history []domain.ConversationMessage) (result domain.RequestClassification) {
	ctx, span := tracer.StartSpan(ctx, tracer.SpanClassify)
	defer span.End()

	key := classificationKey(query, history)
	if cached, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		c.metrics.IncCache(true)
		span.SetAttributes(tracer.BoolAttr("classifier.cache_hit", true))
		return cached
	}
	c.misses.Add(1)
	c.metrics.IncCache(false)

	method := methodFallback
	defer func() {
		if p := recover(); p != nil {
			method = methodFallback
			result = fallbackClassification(fmt.Errorf("panic: %v", p))
		}
		c.cache.Add(key, result)
		c.metrics.IncClassification(method)
		span.SetAttributes(
			tracer.StringAttr("classifier.method", method),
			tracer.StringAttr("classifier.agent_type", string(result.AgentType)),
			tracer.Float64Attr("classifier.confidence", result.Confidence),
		)
		c.logger.Debug("request classified", "method", method, "agent_type", result.AgentType, "confidence", result.Confidence)
	}()

	if cls, ok := QuickClassify(query); ok && cls.Confidence >= c.threshold {
		method = methodQuick
		return cls
	}

	cls, err := c.classifyWithModel(ctx, query, agents, history)
	if err != nil {
		tracer.RecordError(span, err)
		c.logger.Warn("model classification failed, using fallback", "error", err)
		return fallbackClassification(err)
	}
	method = methodLLM
	return cls
}

// Stats returns cache counters.
func (c *Classifier) Stats() ClassifierStats {
	return ClassifierStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.cache.Len()}
}

// Purge empties the cache.
func (c *Classifier) Purge() { c.cache.Purge() }

// QuickClassify scores query against quickPatterns. It reports false unless
// exactly one agent type has the highest positive score.
func QuickClassify(query string) (domain.RequestClassification, bool) {
	var top, second int
	var best domain.AgentType
	tie := false
	for _, t := range domain.AllAgentTypes() {
		score := 0
		for _, p := range quickPatterns[t] {
			if p.MatchString(query) {
				score++
			}
		}
		switch {
		case score > top:
			second, top, best, tie = top, score, t, false
		case score == top && score > 0:
			tie = true
			second = score
		case score > second:
			second = score
		}
	}
	if top == 0 || tie {
		return domain.RequestClassification{}, false
	}
	gap := float64(top-second) / float64(top)
	confidence := 0.5 + math.Min(0.3, gap*0.3)
	confidence = math.Round(confidence*1000) / 1000
	return domain.RequestClassification{
		AgentType:  best,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("keyword match: %d %s indicators vs %d for the next type", top, best, second),
	}, true
}

func (c *Classifier) classifyWithModel(ctx context.Context, query string, agents []domain.AgentMetadata, history []domain.ConversationMessage) (domain.RequestClassification, error) {
	if c.gen == nil {
		return domain.RequestClassification{}, domain.NewDomainError("Classifier.classifyWithModel", domain.ErrGenerationFailed, "no text generator")
	}
	msgs := []domain.Message{{Role: domain.RoleSystem, Content: classifierSystemPrompt}}
	msgs = append(msgs, historyMessages(history, 0)...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: buildClassificationPrompt(query, agents, DetectContentType(query))})

	resp, err := c.gen.Generate(ctx, domain.GenerationRequest{
		Messages:    msgs,
		Tier:        domain.TierSmall,
		Temperature: classifierTemperature,
		MaxTokens:   classifierMaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return domain.RequestClassification{}, err
	}
	return ParseClassification(resp.Content)
}

// ParseClassification extracts and validates the classification object in
// a model reply. Unknown agent types map to the default type and the
// confidence is clamped to [0, 1].
func ParseClassification(content string) (domain.RequestClassification, error) {
	raw, ok := ExtractJSONObject(content)
	if !ok {
		return domain.RequestClassification{}, domain.NewDomainError("Classifier.Parse", domain.ErrValidation, "no JSON object in reply")
	}
	reply, vr := ValidateClassificationJSON(raw)
	if err := vr.Err(); err != nil {
		return domain.RequestClassification{}, fmt.Errorf("%w: %s", err, strings.Join(vr.Errors, "; "))
	}
	reasoning := strings.TrimSpace(reply.Reasoning)
	if reasoning == "" {
		reasoning = "no reasoning provided"
	}
	return domain.RequestClassification{
		AgentType:  domain.AgentTypeOrDefault(reply.AgentType),
		Confidence: domain.ClampConfidence(reply.Confidence),
		Reasoning:  reasoning,
	}, nil
}

// ValidateClassificationJSON checks raw against the classification schema.
// Problems are reported in the result rather than as an error.
func ValidateClassificationJSON(raw string) (classificationReply, domain.ValidationResult) {
	var reply classificationReply
	schema, err := classificationSchema()
	if err != nil {
		return reply, domain.ValidationResult{Reason: "schema unavailable", Errors: []string{err.Error()}}
	}
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return reply, domain.ValidationResult{Reason: "malformed JSON", Errors: []string{err.Error()}}
	}
	result := schema.Validate(data)
	if !result.IsValid() {
		return reply, domain.ValidationResult{
			Reason: "classification does not match schema",
			Errors: []string{fmt.Sprintf("%s", result.Error())},
		}
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return reply, domain.ValidationResult{Reason: "malformed classification", Errors: []string{err.Error()}}
	}
	return reply, domain.ValidationResult{Success: true}
}

// ExtractJSONObject returns the first balanced, well-formed JSON object in s.
func ExtractJSONObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > 0 {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func fallbackClassification(err error) domain.RequestClassification {
	reason := "classification unavailable"
	if err != nil {
		reason = "classification failed, defaulting: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) {
			reason = "classification timed out, defaulting"
		}
	}
	return domain.RequestClassification{
		AgentType:  domain.DefaultAgentType,
		Confidence: FallbackConfidence,
		Reasoning:  reason,
	}
}

// classificationKey hashes the query with the last few history turns.
func classificationKey(query string, history []domain.ConversationMessage) string {
	type turn struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	start := max(0, len(history)-classifierHistoryTurns)
	turns := make([]turn, 0, classifierHistoryTurns)
	for _, m := range history[start:] {
		turns = append(turns, turn{Role: m.Role, Content: m.Content})
	}
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	_ = json.NewEncoder(h).Encode(turns)
	return hex.EncodeToString(h.Sum(nil))
}

// historyMessages converts stored turns into chat messages, keeping the
// last limit user and assistant turns. A non-positive limit keeps all.
func historyMessages(history []domain.ConversationMessage, limit int) []domain.Message {
	var out []domain.Message
	for _, m := range history {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		out = append(out, domain.Message{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

const classifierSystemPrompt = "You route technical support questions to the right specialist agent. " +
	"Reply with a single JSON object and nothing else."

func buildClassificationPrompt(query string, agents []domain.AgentMetadata, ct ContentType) string {
	var sb strings.Builder
	sb.WriteString("Available agents:\n")
	for _, a := range agents {
		fmt.Fprintf(&sb, "\n- agent_type: %s\n  name: %s\n", a.AgentType, a.Name)
		if a.Description != "" {
			fmt.Fprintf(&sb, "  description: %s\n", a.Description)
		}
		for _, c := range a.Capabilities {
			fmt.Fprintf(&sb, "  capability %s: %s\n", c.Name, c.Description)
			if len(c.Keywords) > 0 {
				fmt.Fprintf(&sb, "    keywords: %s\n", strings.Join(c.Keywords, ", "))
			}
			for _, ex := range c.Examples {
				fmt.Fprintf(&sb, "    example: %q\n", ex)
			}
		}
	}
	if len(agents) == 0 {
		for _, t := range domain.AllAgentTypes() {
			fmt.Fprintf(&sb, "- agent_type: %s\n", t)
		}
	}

	sb.WriteString("\nContent: ")
	sb.WriteString(contentGuidance[ct])
	sb.WriteString(`

Scoring rubric for confidence:
- 0.9 to 1.0: the query clearly and only fits one agent
- 0.6 to 0.9: one agent fits best but another could contribute
- below 0.6: the query is ambiguous or fits several agents equally

Respond with JSON: {"agent_type": "<documentation|troubleshooting|maintenance>", "confidence": <0..1>, "reasoning": "<one sentence>"}

Query: `)
	sb.WriteString(query)
	return sb.String()
}
