package main

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and stdin, returning stdout.
func runCLI(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()

	configFile = ""
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// cheapPasswordEnv keeps argon2 fast in tests.
func cheapPasswordEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PASSLY_PASSWORD__MEMORY", "8192")
	t.Setenv("PASSLY_PASSWORD__TIME", "1")
	t.Setenv("PASSLY_PASSWORD__PARALLELISM", "1")
}

func setSecretEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PASSLY_JWT__SECRET", base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))))
}

func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}
