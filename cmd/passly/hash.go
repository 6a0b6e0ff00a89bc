package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/passly/password"
)

// hashOutput is the JSON written by the hash subcommand. Its fields match
// the password columns of an account row.
type hashOutput struct {
	Hash        string `json:"hash"`
	Salt        string `json:"salt"`
	Iterations  uint32 `json:"iterations"`
	MemoryKB    uint32 `json:"memory_kb"`
	Parallelism uint8  `json:"parallelism"`
	KeyLength   uint32 `json:"key_length"`
}

// NewHashCmd creates the hash subcommand.
func NewHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Hash a password read from stdin",
		Long: `Read one password line from stdin and print its argon2id hash, salt and
parameters as JSON, using the configured password section.`,
		RunE: runHash,
	}
}

func runHash(cmd *cobra.Command, _ []string) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return oops.Code("INVALID_INPUT").Wrapf(err, "read password from stdin")
	}
	pw := strings.TrimRight(line, "\r\n")
	if len(pw) < cfg.Password.MinLength || len(pw) > cfg.Password.MaxLength {
		return oops.Code("INVALID_INPUT").Errorf("password must be %d to %d bytes", cfg.Password.MinLength, cfg.Password.MaxLength)
	}

	hasher, err := password.NewHasher(password.Config{
		Params: password.Params{
			Iterations:  cfg.Password.Time,
			MemoryKB:    cfg.Password.Memory,
			Parallelism: cfg.Password.Parallelism,
			KeyLength:   cfg.Password.KeyLength,
		},
		SaltLength: cfg.Password.SaltLength,
	})
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("section", "password").Wrap(err)
	}

	h, err := hasher.Hash(cmd.Context(), pw)
	if err != nil {
		return oops.Code("HASH_FAILED").Wrap(err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(hashOutput{
		Hash:        base64.StdEncoding.EncodeToString(h.Key),
		Salt:        base64.StdEncoding.EncodeToString(h.Salt),
		Iterations:  h.Params.Iterations,
		MemoryKB:    h.Params.MemoryKB,
		Parallelism: h.Params.Parallelism,
		KeyLength:   h.Params.KeyLength,
	})
}
