package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	out, err := runCLI(t, nil, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"migrate", "sweep", "genpass", "hash", "version"} {
		assert.Contains(t, out, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{
			name:     "separate value",
			args:     []string{"--config", "/path/to/passly.yaml", "--help"},
			wantFlag: "/path/to/passly.yaml",
		},
		{
			name:     "equals value",
			args:     []string{"--config=/etc/passly.yaml", "--help"},
			wantFlag: "/etc/passly.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, nil, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFlag, configFile)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, nil, "version")
	require.NoError(t, err)
	assert.Equal(t, "passly dev (commit: unknown, built: unknown)\n", out)
}

func TestGenpassCommand(t *testing.T) {
	out, err := runCLI(t, nil, "genpass", "--length", "20", "--count", "3", "--no-symbols")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Len(t, line, 20)
		assert.False(t, strings.ContainsAny(line, "!@#$%^&*"), "unexpected symbol in %q", line)
	}
}

func TestGenpassCommand_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "too short", args: []string{"genpass", "--length", "4"}},
		{name: "no sets", args: []string{"genpass", "--no-lower", "--no-upper", "--no-numbers", "--no-symbols"}},
		{name: "zero count", args: []string{"genpass", "--count", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, nil, tt.args...)
			assertErrorCode(t, err, "INVALID_OPTIONS")
		})
	}
}
