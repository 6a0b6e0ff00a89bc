package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/passly/password"
)

type genpassOptions struct {
	length         int
	count          int
	noLower        bool
	noUpper        bool
	noNumbers      bool
	noSymbols      bool
	excludeSimilar bool
}

// NewGenpassCmd creates the genpass subcommand.
func NewGenpassCmd() *cobra.Command {
	opts := &genpassOptions{}

	cmd := &cobra.Command{
		Use:   "genpass",
		Short: "Generate random passwords",
		Long:  `Print random passwords drawn uniformly from the selected character sets.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenpass(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.length, "length", 16, "password length (8-128)")
	cmd.Flags().IntVar(&opts.count, "count", 1, "number of passwords")
	cmd.Flags().BoolVar(&opts.noLower, "no-lower", false, "exclude lowercase letters")
	cmd.Flags().BoolVar(&opts.noUpper, "no-upper", false, "exclude uppercase letters")
	cmd.Flags().BoolVar(&opts.noNumbers, "no-numbers", false, "exclude digits")
	cmd.Flags().BoolVar(&opts.noSymbols, "no-symbols", false, "exclude symbols")
	cmd.Flags().BoolVar(&opts.excludeSimilar, "exclude-similar", false, "exclude look-alike characters such as 0/O and 1/l")

	return cmd
}

func runGenpass(cmd *cobra.Command, opts *genpassOptions) error {
	if opts.count < 1 {
		return oops.Code("INVALID_OPTIONS").Errorf("count must be >= 1, got %d", opts.count)
	}

	genOpts := password.Options{
		Length:         opts.length,
		Lowercase:      !opts.noLower,
		Uppercase:      !opts.noUpper,
		Numbers:        !opts.noNumbers,
		Symbols:        !opts.noSymbols,
		ExcludeSimilar: opts.excludeSimilar,
	}
	for i := 0; i < opts.count; i++ {
		pw, err := password.Generate(genOpts)
		if err != nil {
			return oops.Code("INVALID_OPTIONS").Wrap(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), pw)
	}
	return nil
}
