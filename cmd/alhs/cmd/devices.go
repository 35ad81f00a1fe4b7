package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// newDevicesCmd creates the devices command.
func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the devices protocols can target",
		Long: `List the device registry protocols are compiled against.

Without --devices this shows the built-in reference bench; with
--devices it shows the contents of the given specification file.`,
		Args: cobra.NoArgs,
		Example: `  alhs devices
  alhs devices --devices bench.json
  alhs devices --output json`,
		RunE: runDevices,
	}

	return cmd
}

func runDevices(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	specs := registry.List()

	if outputFormat == "json" {
		return outputJSON(cmd, specs)
	}

	for _, spec := range specs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", spec.Name, spec.Class)
		fmt.Fprintf(cmd.OutOrStdout(), "  operations: %s\n", strings.Join(spec.Operations, ", "))

		keys := make([]string, 0, len(spec.Envelopes))
		for key := range spec.Envelopes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			env := spec.Envelopes[key]
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: [%g, %g]\n", key, env.Min, env.Max)
		}
	}
	return nil
}
