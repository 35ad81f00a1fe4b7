package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NK-639/ALHS-Backend/internal/parser"
)

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// VersionInfo holds version information for JSON output.
type VersionInfo struct {
	Version        string `json:"version"`
	GrammarVersion string `json:"grammarVersion"`
	BuildDate      string `json:"buildDate"`
	GitCommit      string `json:"gitCommit"`
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version, protocol grammar revision, build date and git
commit of the ALHS CLI.`,
		Args:    cobra.NoArgs,
		Example: `  alhs version
  alhs version --output json`,
		RunE: runVersion,
	}

	return cmd
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := VersionInfo{
		Version:        Version,
		GrammarVersion: parser.GrammarVersion,
		BuildDate:      BuildDate,
		GitCommit:      GitCommit,
	}

	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "ALHS v%s\n", Version)
		fmt.Fprintf(cmd.OutOrStdout(), "Grammar: %s\n", parser.GrammarVersion)
		fmt.Fprintf(cmd.OutOrStdout(), "Build Date: %s\n", BuildDate)
		fmt.Fprintf(cmd.OutOrStdout(), "Git Commit: %s\n", GitCommit)
		return nil
	}
}
