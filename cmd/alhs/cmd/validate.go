package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NK-639/ALHS-Backend/internal/analyzer"
	"github.com/NK-639/ALHS-Backend/internal/parser"
)

// newValidateCmd creates the validate command.
func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a protocol file for syntax and semantic errors",
		Long: `Validate a protocol file for both syntax and semantic errors.

This command performs two-phase validation:
1. Syntax validation - the file must follow the protocol grammar
2. Semantic validation - device references must resolve, parameters
   must carry the right units and stay inside each device's safe
   envelope, and step dependencies must be acyclic

Exit code 0 indicates a valid file, non-zero indicates errors.`,
		Args: cobra.ExactArgs(1),
		Example: `  alhs validate wash.alp
  alhs validate --devices bench.json wash.alp`,
		RunE: runValidate,
	}

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	filename := args[0]

	printVerbose(cmd, "Validating file: %s\n", filename)

	program, err := parser.ParseFile(filename)
	if err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}

	printVerbose(cmd, "Syntax: OK\n")

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	if _, err := analyzer.New(registry).Analyze(program); err != nil {
		return fmt.Errorf("validation error:\n%w", err)
	}

	printVerbose(cmd, "Semantics: OK\n")

	fmt.Fprintf(cmd.OutOrStdout(), "File is valid: %s\n", filename)
	return nil
}
