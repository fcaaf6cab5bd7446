package domain

import "testing"

func TestParseAgentType(t *testing.T) {
	tests := []struct {
		in     string
		want   AgentType
		wantOK bool
	}{
		{"documentation", AgentDocumentation, true},
		{"  Troubleshooting ", AgentTroubleshooting, true},
		{"MAINTENANCE", AgentMaintenance, true},
		{"maintenance_agent", AgentMaintenance, true},
		{"documentation agent", AgentDocumentation, true},
		{"billing", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseAgentType(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseAgentType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAgentTypeOrDefault(t *testing.T) {
	if got := AgentTypeOrDefault("weather"); got != DefaultAgentType {
		t.Errorf("unrecognized type = %q, want %q", got, DefaultAgentType)
	}
	if got := AgentTypeOrDefault("troubleshooting"); got != AgentTroubleshooting {
		t.Errorf("got %q, want troubleshooting", got)
	}
}

func TestAgentTypeValid(t *testing.T) {
	if !AgentMaintenance.Valid() {
		t.Error("maintenance should be valid")
	}
	if AgentType("Maintenance").Valid() {
		t.Error("non-canonical spelling should not be valid")
	}
}

func TestAllAgentTypesIsACopy(t *testing.T) {
	a := AllAgentTypes()
	a[0] = "mutated"
	if AllAgentTypes()[0] != AgentDocumentation {
		t.Error("AllAgentTypes must not expose the backing slice")
	}
}

func TestParseModelTier(t *testing.T) {
	cases := map[string]ModelTier{
		"small": TierSmall, "FAST": TierSmall, "large": TierLarge,
		"medium": TierMedium, "": TierMedium, "unknown": TierMedium,
	}
	for in, want := range cases {
		if got := ParseModelTier(in); got != want {
			t.Errorf("ParseModelTier(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAgentMetadataKeywordsDedup(t *testing.T) {
	m := AgentMetadata{Capabilities: []AgentCapability{
		{Keywords: []string{"Manual", "find"}},
		{Keywords: []string{"manual", " ", "document"}},
	}}
	got := m.Keywords()
	want := []string{"manual", "find", "document"}
	if len(got) != len(want) {
		t.Fatalf("Keywords() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keywords()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
