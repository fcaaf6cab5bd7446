package orchestrator

import "techassist/internal/domain"

// defaultCapabilities are attached to agents whose configuration declares none.
var defaultCapabilities = map[domain.AgentType][]domain.AgentCapability{
	domain.AgentDocumentation: {
		{
			Name:        "documentation_lookup",
			Description: "Find manuals, specifications and reference material",
			Keywords: []string{
				"manual", "document", "documentation", "find", "reference", "guide",
				"specification", "spec", "diagram", "chapter", "section", "page", "lookup",
				"where can", "bulletin", "handbook",
			},
			Examples: []string{
				"Where can I find the manual for the landing gear?",
				"Which chapter covers the fuel system wiring diagram?",
			},
		},
		{
			Name:        "technical_explanation",
			Description: "Explain how a system or component works",
			Keywords:    []string{"explain", "how does", "what is", "overview", "describe", "definition"},
			Examples:    []string{"How does the hydraulic accumulator work?"},
		},
	},
	domain.AgentTroubleshooting: {
		{
			Name:        "fault_diagnosis",
			Description: "Diagnose faults, errors and abnormal behavior",
			Keywords: []string{
				"problem", "issue", "error", "fault", "not working", "broken", "fail",
				"failure", "failing", "troubleshoot", "diagnose", "leak", "leaking", "noise",
				"warning", "alarm", "malfunction", "stuck", "overheating",
			},
			Examples: []string{
				"I have a problem with the hydraulic system, it's not working",
				"The pump is making a grinding noise",
			},
		},
		{
			Name:        "error_code_lookup",
			Description: "Interpret fault and error codes",
			Keywords:    []string{"code", "error code", "fault code", "indicator", "light"},
			Examples:    []string{"What does fault code 42 on the ECU mean?"},
		},
	},
	domain.AgentMaintenance: {
		{
			Name:        "maintenance_procedure",
			Description: "Generate step-by-step maintenance procedures",
			Keywords: []string{
				"maintenance", "maintain", "procedure", "replace", "replacement", "install",
				"remove", "overhaul", "lubricate", "torque", "service", "servicing",
			},
			Examples: []string{
				"Give me the procedure to replace the brake pads",
				"How do I service the main rotor gearbox?",
			},
		},
		{
			Name:        "inspection_schedule",
			Description: "Inspection intervals and preventive maintenance schedules",
			Keywords:    []string{"inspect", "inspection", "schedule", "interval", "preventive", "check", "hours"},
			Examples:    []string{"When is the next 100-hour inspection due?"},
		},
	},
}

// defaultSystemPrompts are used when an agent configuration has no system prompt.
var defaultSystemPrompts = map[domain.AgentType]string{
	domain.AgentDocumentation: "You are a technical documentation assistant. Answer from manuals, " +
		"specifications and reference material. Cite the documents you rely on and say " +
		"when the documentation does not cover the question.",
	domain.AgentTroubleshooting: "You are a troubleshooting assistant for technical systems. Work " +
		"from symptoms to likely causes, ordered by probability, and give concrete checks " +
		"to confirm each cause. Flag any safety hazards first.",
	domain.AgentMaintenance: "You are a maintenance procedure assistant. Produce clear, numbered " +
		"maintenance steps with required tools, parts and safety precautions. Note " +
		"inspection intervals and torque values when relevant.",
}

// DefaultCapabilities returns a copy of the built-in capability descriptors for t.
func DefaultCapabilities(t domain.AgentType) []domain.AgentCapability {
	src := defaultCapabilities[t]
	out := make([]domain.AgentCapability, len(src))
	copy(out, src)
	return out
}

// DefaultSystemPrompt returns the built-in system prompt for t.
func DefaultSystemPrompt(t domain.AgentType) string {
	if p, ok := defaultSystemPrompts[t]; ok {
		return p
	}
	return defaultSystemPrompts[domain.DefaultAgentType]
}
