package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/passly/password"
)

func TestHashCommand(t *testing.T) {
	cheapPasswordEnv(t)

	out, err := runCLI(t, strings.NewReader("correct horse battery\n"), "hash")
	require.NoError(t, err)

	var got hashOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, uint32(1), got.Iterations)
	assert.Equal(t, uint32(8192), got.MemoryKB)
	assert.Equal(t, uint8(1), got.Parallelism)
	assert.Equal(t, uint32(32), got.KeyLength)

	key, err := base64.StdEncoding.DecodeString(got.Hash)
	require.NoError(t, err)
	salt, err := base64.StdEncoding.DecodeString(got.Salt)
	require.NoError(t, err)
	assert.Len(t, salt, 16)

	params := password.Params{
		Iterations:  got.Iterations,
		MemoryKB:    got.MemoryKB,
		Parallelism: got.Parallelism,
		KeyLength:   got.KeyLength,
	}
	hasher, err := password.NewHasher(password.Config{Params: params, SaltLength: 16})
	require.NoError(t, err)

	ok, err := hasher.Verify(context.Background(), params, key, salt, "correct horse battery")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashCommand_RejectsShortPassword(t *testing.T) {
	cheapPasswordEnv(t)

	_, err := runCLI(t, strings.NewReader("short\n"), "hash")
	assertErrorCode(t, err, "INVALID_INPUT")
}

func TestHashCommand_EmptyInput(t *testing.T) {
	_, err := runCLI(t, strings.NewReader(""), "hash")
	assertErrorCode(t, err, "INVALID_INPUT")
}
