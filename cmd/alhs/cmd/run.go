package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NK-639/ALHS-Backend/internal/compiler"
	"github.com/NK-639/ALHS-Backend/internal/controller"
	"github.com/NK-639/ALHS-Backend/internal/orchestrator"
)

var (
	// moonrakerURL is the hardware controller endpoint
	moonrakerURL string
	// moonrakerAPIKey authenticates controller requests
	moonrakerAPIKey string
	// runDry executes against the built-in simulator
	runDry bool
)

// newRunCmd creates the run command.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Compile and execute a protocol on the hardware",
		Long: `Compile a protocol file and execute the resulting command stream on
a Moonraker-compatible controller.

Commands are dispatched strictly in order. A faulted command is
retried with exponential backoff; when retries are exhausted the run
stops and reports how far it got. Ctrl-C aborts the run and issues an
emergency stop before exiting.

Use --dry-run to execute against the built-in simulator instead of
real hardware.`,
		Args: cobra.ExactArgs(1),
		Example: `  alhs run wash.alp
  alhs run --moonraker http://bench-pi:7125 wash.alp
  alhs run --dry-run wash.alp`,
		RunE: runRun,
	}

	cmd.Flags().StringVar(&moonrakerURL, "moonraker", "http://localhost:7125", "Moonraker controller URL")
	cmd.Flags().StringVar(&moonrakerAPIKey, "api-key", "", "controller API key")
	cmd.Flags().BoolVar(&runDry, "dry-run", false, "execute against the built-in simulator")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	filename := args[0]

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	comp := compiler.New(registry, compiler.DefaultConfig())

	result, err := comp.CompileFile(cmd.Context(), filename)
	if err != nil {
		return fmt.Errorf("compile error:\n%w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Compiled %s: %d commands\n", result.SourceName, result.Stream.Len())

	ctrl, err := newController(cmd)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	orch := orchestrator.New(ctrl, orchestrator.DefaultConfig())
	run, err := orch.Start(result.Stream)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run %s started\n", run.ID())

	// Ctrl-C aborts the run; the hardware gets an emergency stop before
	// we exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.OutOrStdout(), "\nAborting run...")
			run.Abort()
		case <-run.Done():
		}
	}()

	if verbose {
		go reportProgress(cmd, run)
	}

	err = run.Wait(context.Background())

	snap := run.Snapshot()
	switch {
	case err == nil:
		fmt.Fprintf(cmd.OutOrStdout(), "Run completed: %d/%d commands\n", snap.Index, snap.Total)
		return nil
	default:
		var fault *orchestrator.FaultReport
		if errors.As(err, &fault) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Run %s: %s\n", snap.State, fault.Reason)
			fmt.Fprintf(cmd.ErrOrStderr(), "Completed %d/%d commands\n", fault.Completed, fault.Total)
		}
		return fmt.Errorf("run %s", snap.State)
	}
}

// newController connects to the hardware, or to the simulator when
// --dry-run is set.
func newController(cmd *cobra.Command) (controller.HardwareController, error) {
	if runDry {
		printVerbose(cmd, "Using built-in simulator\n")
		return controller.NewSimulator(), nil
	}

	cfg := controller.DefaultMoonrakerConfig(moonrakerURL)
	cfg.APIKey = moonrakerAPIKey

	client := controller.NewMoonrakerClient(cfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	if _, err := client.QueryStatus(ctx, ""); err != nil {
		client.Close()
		return nil, fmt.Errorf("controller unreachable at %s: %w", moonrakerURL, err)
	}

	printVerbose(cmd, "Connected to controller at %s\n", moonrakerURL)
	return client, nil
}

// reportProgress prints dispatch progress until the run finishes.
func reportProgress(cmd *cobra.Command, run *orchestrator.Run) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-run.Done():
			return
		case <-ticker.C:
			snap := run.Snapshot()
			if snap.Index != last {
				fmt.Fprintf(cmd.OutOrStdout(), "  %d/%d commands dispatched\n", snap.Index, snap.Total)
				last = snap.Index
			}
		}
	}
}
