package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	t.Setenv("TECHASSIST_CONFIG", "")

	tests := []struct {
		name    string
		args    []string
		want    cliFlags
		wantPos []string
	}{
		{
			name:    "positional only",
			args:    []string{"how", "do", "I", "reset"},
			want:    cliFlags{ConfigPath: "techassist.yaml"},
			wantPos: []string{"how", "do", "I", "reset"},
		},
		{
			name:    "separate values",
			args:    []string{"--config", "/etc/ta.yaml", "--conversation", "c1", "query"},
			want:    cliFlags{ConfigPath: "/etc/ta.yaml", ConversationID: "c1"},
			wantPos: []string{"query"},
		},
		{
			name:    "equals values and json",
			args:    []string{"--user=u7", "--json", "q"},
			want:    cliFlags{ConfigPath: "techassist.yaml", UserID: "u7", JSON: true},
			wantPos: []string{"q"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, pos, err := parseFlags(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, flags)
			assert.Equal(t, tt.wantPos, pos)
		})
	}
}

func TestParseFlagsErrors(t *testing.T) {
	_, _, err := parseFlags([]string{"--config"})
	assert.ErrorContains(t, err, "needs a value")

	_, _, err = parseFlags([]string{"--verbose"})
	assert.ErrorContains(t, err, "unknown flag")
}

func TestParseFlagsConfigFromEnv(t *testing.T) {
	t.Setenv("TECHASSIST_CONFIG", "/tmp/from-env.yaml")
	flags, _, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.yaml", flags.ConfigPath)
}

func TestQueryArg(t *testing.T) {
	q, err := queryArg([]string{" reset", "the", "pump "})
	require.NoError(t, err)
	assert.Equal(t, "reset the pump", q)

	_, err = queryArg(nil)
	assert.Error(t, err)
}
