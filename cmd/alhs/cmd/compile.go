package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NK-639/ALHS-Backend/internal/compiler"
)

var (
	// compileOut writes the command stream to a file instead of stdout
	compileOut string
)

// newCompileCmd creates the compile command.
func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile a protocol file to a motion command stream",
		Long: `Compile a protocol file into an executable motion command stream.

The protocol is parsed, semantically analyzed against the device
registry, and lowered to a numbered command script. The plain output
is the script itself; JSON output includes compilation metadata.`,
		Args: cobra.ExactArgs(1),
		Example: `  alhs compile wash.alp
  alhs compile --output json wash.alp
  alhs compile --emit wash.stream wash.alp`,
		RunE: runCompile,
	}

	cmd.Flags().StringVar(&compileOut, "emit", "", "write the command script to a file")

	return cmd
}

func runCompile(cmd *cobra.Command, args []string) error {
	filename := args[0]

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	comp := compiler.New(registry, compiler.DefaultConfig())

	printVerbose(cmd, "Compiling file: %s\n", filename)

	result, err := comp.CompileFile(cmd.Context(), filename)
	if err != nil {
		return fmt.Errorf("compile error:\n%w", err)
	}

	printVerbose(cmd, "Compiled %d commands in %s\n", result.Stream.Len(), result.Duration)

	if compileOut != "" {
		if err := os.WriteFile(compileOut, []byte(result.Stream.Script()+"\n"), 0o644); err != nil {
			return fmt.Errorf("write stream: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d commands to %s\n", result.Stream.Len(), compileOut)
		return nil
	}

	switch outputFormat {
	case "json":
		return outputJSON(cmd, result)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), result.Stream.Script())
		return nil
	}
}
