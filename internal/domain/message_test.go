package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageJSONRoundTrip(t *testing.T) {
	msg := Message{
		Role:      RoleUser,
		Content:   "hello",
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Role != msg.Role || got.Content != msg.Content || !got.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("got %+v, want %+v", got, msg)
	}
}

func TestOrchestratorResponseOmitsEmptyFields(t *testing.T) {
	resp := OrchestratorResponse{
		Response:       "Check the filter.",
		AgentType:      AgentMaintenance,
		AgentName:      "Upkeep",
		Confidence:     0.9,
		ConversationID: "c1",
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"metadata", "followup_questions"} {
		if _, ok := fields[key]; ok {
			t.Errorf("empty %s should be omitted: %s", key, data)
		}
	}
	if fields["agent_type"] != "maintenance" {
		t.Errorf("agent_type = %v, want maintenance", fields["agent_type"])
	}
}

func TestRequestContextIsOptional(t *testing.T) {
	var req OrchestratorRequest
	if err := json.Unmarshal([]byte(`{"query":"where is the fuse box","user_id":"u1"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Query != "where is the fuse box" || req.UserID != "u1" || req.ConversationID != "" || req.Context != nil {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestRoleConstants(t *testing.T) {
	roles := map[string]string{
		"system":    RoleSystem,
		"user":      RoleUser,
		"assistant": RoleAssistant,
	}
	for expected, got := range roles {
		if got != expected {
			t.Errorf("Role %q = %q, want %q", expected, got, expected)
		}
	}
}
