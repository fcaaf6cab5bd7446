package orchestrator

import (
	"regexp"

	"techassist/internal/domain"
)

// quickPatterns are the keyword families scored by the deterministic
// classification pass. Each pattern counts at most once per query.
var quickPatterns = map[domain.AgentType][]*regexp.Regexp{
	domain.AgentDocumentation: {
		regexp.MustCompile(`(?i)\bwhere\s+(can|do|is|are|would|should)\b`),
		regexp.MustCompile(`(?i)\b(find|locate|look\s*up|lookup)\b`),
		regexp.MustCompile(`(?i)\b(manuals?|handbooks?|documentation|documents?|guides?|references?|specs?|specifications?|diagrams?|bulletins?|datasheets?)\b`),
		regexp.MustCompile(`(?i)\b(explain|describe|what\s+is|what\s+are|how\s+does)\b`),
		regexp.MustCompile(`(?i)\b(chapter|section|page|appendix)\s*\d*\b`),
	},
	domain.AgentTroubleshooting: {
		regexp.MustCompile(`(?i)\b(problems?|issues?|trouble)\b`),
		regexp.MustCompile(`(?i)\b(not|isn't|won't|doesn't|didn't|can't|cannot)\s+(work|working|start|starting|turn|run|running|respond\w*|engage|engaging)\b`),
		regexp.MustCompile(`(?i)\b(errors?|faults?|alarms?|warnings?)\b`),
		regexp.MustCompile(`(?i)\b(broken|fail\w*|malfunction\w*|stuck|leak\w*|overheat\w*|nois[ey]|vibrat\w*)\b`),
		regexp.MustCompile(`(?i)\b(troubleshoot\w*|diagnos\w*|debug\w*|fix)\b`),
		regexp.MustCompile(`(?i)\bwhy\s+(is|does|did|won't|isn't|doesn't)\b`),
	},
	domain.AgentMaintenance: {
		regexp.MustCompile(`(?i)\b(maintenance|maintain\w*|servic(e|ing))\b`),
		regexp.MustCompile(`(?i)\b(replac\w*|install\w*|remov\w*|overhaul\w*|lubricat\w*)\b`),
		regexp.MustCompile(`(?i)\b(inspect\w*|schedul\w*|intervals?|preventi?ve|preventative)\b`),
		regexp.MustCompile(`(?i)\b(procedures?|step[- ]by[- ]step|torque)\b`),
	},
}

// ContentType is the rough shape of a query, used to steer the
// classification prompt.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentCode       ContentType = "code"
	ContentStructured ContentType = "structured_data"
)

var codePatterns = []*regexp.Regexp{
	regexp.MustCompile("```"),
	regexp.MustCompile(`(?m)^\s*(func|def|class|import|package|public|private|#include|var|const|let)\s+\w`),
	regexp.MustCompile(`(?i)\b(SELECT\s+.+\s+FROM|INSERT\s+INTO|UPDATE\s+\w+\s+SET)\b`),
	regexp.MustCompile(`\w+\([^)]*\)\s*(\{|;|=>)`),
}

var structuredPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)^\s*[\[{].*[\]}]\s*$`),
	regexp.MustCompile(`(?s)<(\w+)[^>]*>.*</\w+>`),
	regexp.MustCompile(`(?m)^\s*\|.*\|\s*$`),
	regexp.MustCompile(`(?m)(^\s*[\w .-]+\s*[:=]\s*\S+.*\n){2,}`),
}

// DetectContentType classifies the shape of a query as code, structured
// data or plain text.
func DetectContentType(query string) ContentType {
	for _, p := range codePatterns {
		if p.MatchString(query) {
			return ContentCode
		}
	}
	for _, p := range structuredPatterns {
		if p.MatchString(query) {
			return ContentStructured
		}
	}
	return ContentText
}

var contentGuidance = map[ContentType]string{
	ContentText:       "The query is plain text.",
	ContentCode:       "The query contains source code or commands. Code that fails or misbehaves usually needs troubleshooting; requests for API or syntax references are documentation.",
	ContentStructured: "The query contains structured data (JSON, tables, key/value pairs or markup). Readings or logs showing abnormal values usually need troubleshooting; schedules and part lists usually relate to maintenance.",
}
