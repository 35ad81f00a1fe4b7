// Package cmd provides the CLI commands for the ALHS protocol toolchain.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NK-639/ALHS-Backend/internal/device"
)

var (
	// verbose enables verbose output
	verbose bool
	// outputFormat specifies the output format (json, plain)
	outputFormat string
	// devicesFile is the path to the device specification file
	devicesFile string
)

const rootLong = `ALHS compiles lab automation protocols into motion command streams
and orchestrates their execution on Moonraker-compatible hardware.

A protocol is a sequence of operations like dispense, mix, move and
wait. The toolchain parses it, checks every operation against the
device registry, lowers it to a numbered command stream, and can run
the stream with retry, journaling and recovery.`

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "alhs",
	Short:        "Lab protocol compiler and run orchestrator",
	Long:         rootLong,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// NewRootCmd creates a new root command for testing.
// This allows tests to create fresh command trees.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "alhs",
		Short:        rootCmd.Short,
		Long:         rootLong,
		SilenceUsage: true,
	}

	addCommands(cmd)
	return cmd
}

func addCommands(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "plain", "output format (json|plain)")
	cmd.PersistentFlags().StringVar(&devicesFile, "devices", "", "device specification file (JSON)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newCompileCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newDevicesCmd())
	cmd.AddCommand(newServerCmd())
	cmd.AddCommand(newCompletionCmd())
}

func init() {
	addCommands(rootCmd)
}

// loadRegistry builds the device registry from --devices, or the
// built-in bench setup when no file is given.
func loadRegistry() (device.Registry, error) {
	if devicesFile != "" {
		return device.NewRegistryFromFile(devicesFile)
	}
	return device.NewStaticRegistry(defaultSpecs()...)
}

// defaultSpecs describes the reference bench: one volumetric pump, one
// stirrer, one gantry-mounted sampler.
func defaultSpecs() []device.Spec {
	return []device.Spec{
		{
			Name:       "pumpA",
			Class:      device.ClassDispenser,
			Operations: []string{"dispense", "set"},
			Envelopes: map[string]device.Envelope{
				"volume_ml": {Min: 0, Max: 50},
			},
		},
		{
			Name:       "stirrerB",
			Class:      device.ClassMixer,
			Operations: []string{"mix", "set"},
			Envelopes: map[string]device.Envelope{
				"speed_rpm":  {Min: 0, Max: 1200},
				"duration_s": {Min: 0, Max: 3600},
			},
		},
		{
			Name:       "samplerC",
			Class:      device.ClassSampler,
			Operations: []string{"move", "home", "sample"},
			Envelopes: map[string]device.Envelope{
				"x": {Min: 0, Max: 300},
				"y": {Min: 0, Max: 200},
				"z": {Min: 0, Max: 120},
			},
			Positions: map[string]device.Point{
				"rack":  {X: 250, Y: 40, Z: 30},
				"waste": {X: 280, Y: 180, Z: 30},
			},
		},
	}
}

// printVerbose prints message only if verbose mode is enabled.
func printVerbose(cmd *cobra.Command, format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}
