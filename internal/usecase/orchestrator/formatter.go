package orchestrator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"techassist/internal/domain"
)

// ApologyResponse is returned when an answer cannot be produced.
const ApologyResponse = "I'm sorry, but I ran into a problem while processing your request. " +
	"Please try again, or rephrase your question."

// secondaryExcerptLimit is the approximate length of each secondary answer
// included in a merged response.
const secondaryExcerptLimit = 500

const truncationMarker = "[...]"

var (
	fenceRe        = regexp.MustCompile("(?s)```.*?```")
	blankRunRe     = regexp.MustCompile(`\n(?:[ \t]*\n){3,}`)
	selfDescribeRe = regexp.MustCompile(`(?im)^[ \t]*(?:as an ai\b|as a language model|i am an ai\b|i'm an ai\b|i am a (?:documentation|troubleshooting|maintenance) (?:agent|assistant)|i'm the (?:documentation|troubleshooting|maintenance) (?:agent|assistant)|as (?:the|a|your) (?:documentation|troubleshooting|maintenance) (?:agent|assistant)).*(?:\n|$)`)
	followupHeadRe = regexp.MustCompile(`(?im)^[ \t]*(?:#+[ \t]*)?(?:\*\*)?follow[- ]?up questions?(?:\*\*)?:?(?:\*\*)?[ \t]*$`)
	listItemRe     = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
)

// offeringPhrases open the standalone questions accepted as follow-ups when
// an answer has no labeled follow-up section.
var offeringPhrases = []string{
	"would you like", "do you want", "should i", "shall i", "can i help",
	"would it help", "do you need", "are you interested", "is there anything",
	"would you prefer", "want me to",
}

// SourceReference is a document cited by an answer.
type SourceReference struct {
	Title    string `json:"title"`
	Location string `json:"location,omitempty"`
}

// FormatInput is a raw agent answer and its identity.
type FormatInput struct {
	Text           string
	AgentType      domain.AgentType
	AgentName      string
	Confidence     float64
	ConversationID string
	Metadata       map[string]any
	Sources        []SourceReference
}

// Formatter normalizes agent output into orchestrator responses.
type Formatter struct {
	logger *slog.Logger
}

func NewFormatter(logger *slog.Logger) *Formatter {
	if logger == nil {
		logger = discardLogger()
	}
	return &Formatter{logger: logger}
}

// FormatResponse cleans in.Text, extracts follow-up questions and appends
// cited sources. It never panics; on internal failure it returns the
// apology response.
func (f *Formatter) FormatResponse(in FormatInput) (resp domain.OrchestratorResponse) {
	defer func() {
		if p := recover(); p != nil {
			f.logger.Error("response formatting failed", "error", p, "agent_type", in.AgentType)
			resp = f.ErrorResponse(in.ConversationID, fmt.Errorf("format response: %v", p))
		}
	}()

	body, followups := extractFollowups(CleanText(in.Text))
	if len(in.Sources) > 0 {
		body = strings.TrimRight(body, "\n") + "\n\n" + formatSources(in.Sources)
	}

	meta := make(map[string]any, len(in.Metadata))
	for k, v := range in.Metadata {
		meta[k] = v
	}
	return domain.OrchestratorResponse{
		Response:          body,
		AgentType:         in.AgentType,
		AgentName:         in.AgentName,
		Confidence:        domain.ClampConfidence(in.Confidence),
		ConversationID:    in.ConversationID,
		Metadata:          meta,
		FollowupQuestions: followups,
	}
}

// ErrorResponse is the degraded answer used whenever a request fails.
func (f *Formatter) ErrorResponse(conversationID string, err error) domain.OrchestratorResponse {
	meta := map[string]any{"error": "unknown error", "error_code": string(domain.CodeUnknown)}
	if err != nil {
		meta["error"] = err.Error()
		meta["error_code"] = string(domain.ErrorCodeOf(err))
	}
	return domain.OrchestratorResponse{
		Response:       ApologyResponse,
		AgentType:      domain.DefaultAgentType,
		AgentName:      "",
		Confidence:     0,
		ConversationID: conversationID,
		Metadata:       meta,
	}
}

// FormatMultiAgentResponse merges secondary answers into the primary one.
// Identity fields come from the primary. On failure the primary is
// returned unchanged.
func (f *Formatter) FormatMultiAgentResponse(primary domain.OrchestratorResponse, secondaries []domain.OrchestratorResponse, routing domain.RoutingResult) (merged domain.OrchestratorResponse) {
	defer func() {
		if p := recover(); p != nil {
			f.logger.Error("multi-agent merge failed", "error", p)
			merged = primary
		}
	}()
	if len(secondaries) == 0 {
		return primary
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(primary.Response, "\n"))
	sb.WriteString("\n\n## Additional information")
	for _, s := range secondaries {
		label := string(s.AgentType)
		if s.AgentName != "" {
			label = fmt.Sprintf("%s (%s)", s.AgentName, s.AgentType)
		}
		fmt.Fprintf(&sb, "\n\n### From %s\n\n%s", label, truncateAtSentence(strings.TrimSpace(s.Response), secondaryExcerptLimit))
	}

	followups := make([]string, 0, domain.MaxFollowupQuestions)
	followups = appendCapped(followups, primary.FollowupQuestions...)
	for _, s := range secondaries {
		for _, q := range s.FollowupQuestions {
			followups = appendCapped(followups, fmt.Sprintf("[%s] %s", s.AgentType, q))
		}
	}

	meta := make(map[string]any, len(primary.Metadata)+4)
	for k, v := range primary.Metadata {
		meta[k] = v
	}
	types := make([]string, 0, len(secondaries))
	for _, s := range secondaries {
		types = append(types, string(s.AgentType))
		for k, v := range s.Metadata {
			meta[string(s.AgentType)+"_"+k] = v
		}
	}
	meta["multi_agent"] = true
	meta["secondary_agent_types"] = types
	meta["requested_agent_types"] = agentTypeStrings(routing.AdditionalAgentTypes)

	merged = primary
	merged.Response = sb.String()
	merged.FollowupQuestions = followups
	merged.Metadata = meta
	return merged
}

// CleanText removes leaked self-descriptions and fenced blocks, drops
// paragraphs that are bare JSON, and collapses long runs of blank lines.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = selfDescribeRe.ReplaceAllString(text, "")
	text = fenceRe.ReplaceAllString(text, "")
	text = dropJSONParagraphs(text)
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func dropJSONParagraphs(text string) string {
	paras := strings.Split(text, "\n\n")
	kept := paras[:0]
	for _, p := range paras {
		t := strings.TrimSpace(p)
		if (strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")) && json.Valid([]byte(t)) {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "\n\n")
}

// extractFollowups returns the body without a labeled follow-up section and
// up to MaxFollowupQuestions deduplicated questions.
func extractFollowups(body string) (string, []string) {
	if loc := followupHeadRe.FindStringIndex(body); loc != nil {
		questions, tail := followupSection(body[loc[1]:])
		body = strings.TrimSpace(strings.TrimRight(body[:loc[0]], "\n") + "\n\n" + strings.TrimLeft(tail, "\n"))
		if len(questions) > 0 {
			return body, dedupeCapped(questions)
		}
	}

	var questions []string
	for _, line := range strings.Split(body, "\n") {
		t := strings.TrimSpace(line)
		if !strings.HasSuffix(t, "?") {
			continue
		}
		lower := strings.ToLower(t)
		for _, p := range offeringPhrases {
			if strings.HasPrefix(lower, p) {
				questions = append(questions, t)
				break
			}
		}
	}
	return body, dedupeCapped(questions)
}

// followupSection reads the questions under a follow-up header. A line is a
// question when it is a list item or ends in '?'; list markers are dropped.
// The section ends at the first blank line after a question or at the first
// other line. It returns the questions and the text after the section.
func followupSection(section string) ([]string, string) {
	lines := strings.Split(section, "\n")
	var questions []string
	consumed := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(questions) > 0 {
				break
			}
			consumed++
			continue
		}
		if m := listItemRe.FindStringSubmatch(line); m != nil {
			trimmed = strings.TrimSpace(m[1])
		} else if !strings.HasSuffix(trimmed, "?") {
			break
		}
		questions = append(questions, trimmed)
		consumed++
	}
	return questions, strings.Join(lines[consumed:], "\n")
}

func dedupeCapped(qs []string) []string {
	if len(qs) == 0 {
		return nil
	}
	out := make([]string, 0, domain.MaxFollowupQuestions)
	seen := make(map[string]bool)
	for _, q := range qs {
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = appendCapped(out, q)
	}
	return out
}

func appendCapped(dst []string, qs ...string) []string {
	for _, q := range qs {
		if len(dst) >= domain.MaxFollowupQuestions {
			return dst
		}
		dst = append(dst, q)
	}
	return dst
}

func formatSources(sources []SourceReference) string {
	var sb strings.Builder
	sb.WriteString("**Sources:**")
	for _, s := range sources {
		sb.WriteString("\n- ")
		sb.WriteString(s.Title)
		if s.Location != "" {
			fmt.Fprintf(&sb, " (%s)", s.Location)
		}
	}
	return sb.String()
}

// sentenceEnds mark the end of a sentence, in order of preference on ties.
var sentenceEnds = []string{". ", "! ", "? ", ".\n", "!\n", "?\n", "。", "！", "？"}

// truncateAtSentence shortens s to at most limit bytes, cutting after the
// last sentence end before the limit, else at a word boundary, else at a
// rune boundary.
func truncateAtSentence(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	cut := s[:limit]
	end := -1
	for _, sep := range sentenceEnds {
		i := strings.LastIndex(cut, sep)
		if i < 0 {
			continue
		}
		// Keep the punctuation, drop any trailing whitespace.
		_, size := utf8.DecodeRuneInString(sep)
		if i+size > end {
			end = i + size
		}
	}
	if end > 0 {
		cut = cut[:end]
	} else if i := strings.LastIndexAny(cut, " \n"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + " " + truncationMarker
}

func agentTypeStrings(ts []domain.AgentType) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

// InterAgentTemplateName is the registered name of InterAgentTemplate.
const InterAgentTemplateName = "inter_agent"

// PromptTemplates returns the named prompts the coordinator renders through
// TextGenerator.GenerateTemplate. Generators must register them at startup.
func PromptTemplates() map[string]string {
	return map[string]string{InterAgentTemplateName: InterAgentTemplate}
}

// InterAgentTemplate is the consultation prompt sent to a secondary agent.
// Variables: Query, PrimaryType, SecondaryType, PrimaryResponse.
const InterAgentTemplate = `A user asked: "{{.Query}}"

The {{.PrimaryType}} specialist is handling the main answer.
{{- if .PrimaryResponse}}
Their answer so far:

{{.PrimaryResponse}}

As the {{.SecondaryType}} specialist, add only complementary information that the answer above does not already cover. Do not repeat it.
{{- else}}
As the {{.SecondaryType}} specialist, provide the complementary information from your area that the {{.PrimaryType}} specialist is unlikely to cover.
{{- end}}
Keep it brief and focused.`

var interAgentTmpl = template.Must(template.New("inter_agent").Option("missingkey=error").Parse(InterAgentTemplate))

// InterAgentVariables returns the template variables for InterAgentTemplate.
func InterAgentVariables(query string, primary, secondary domain.AgentType, primaryResponse string) map[string]any {
	return map[string]any{
		"Query":           query,
		"PrimaryType":     string(primary),
		"SecondaryType":   string(secondary),
		"PrimaryResponse": strings.TrimSpace(primaryResponse),
	}
}

// CreateInterAgentPrompt renders the consultation prompt asking the
// secondary agent for complementary, non-duplicate information.
func CreateInterAgentPrompt(query string, primary, secondary domain.AgentType, primaryResponse string) string {
	var sb strings.Builder
	if err := interAgentTmpl.Execute(&sb, InterAgentVariables(query, primary, secondary, primaryResponse)); err != nil {
		return fmt.Sprintf("User query: %s\nProvide complementary %s information.", query, secondary)
	}
	return sb.String()
}
