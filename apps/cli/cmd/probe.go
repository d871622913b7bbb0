package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"modemprobe/packages/output"
	"modemprobe/packages/probe"
)

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	countFlag     int
	watchFlag     bool
	waitReadyFlag bool
	jsonFlag      bool
)

var probeCmd = &cobra.Command{
	Use:   "probe [health|echo|ota|all]",
	Short: "Run connectivity probes against the backend",
	Long: `Run the diagnostic probes from the troubleshooting runbook:

  health  GET /health, expects 200
  echo    POST /debug/echo, expects the payload mirrored back
  ota     POST the OTA update-check call a production device makes
  all     everything above, in order (default)

Examples:
  modemprobe probe --port /dev/ttyUSB2
  modemprobe probe health --count 20
  modemprobe probe --wait-ready --timeout 90s
  modemprobe probe all --watch --config modemprobe.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: probeCommand,
}

func init() {
	registerModemFlags(probeCmd)
	probeCmd.Flags().IntVar(&countFlag, "count", 1, "Repeat each probe N times and report latency percentiles")
	probeCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Re-run the probes when the config or profile file changes")
	probeCmd.Flags().BoolVar(&waitReadyFlag, "wait-ready", false, "Poll /health until the backend is warm before probing")
	probeCmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit results as a JSON document instead of console output")
}

func probeCommand(cmd *cobra.Command, args []string) error {
	selection := "all"
	if len(args) == 1 {
		selection = args[0]
	}
	switch selection {
	case "all", "health", "echo", "ota":
	default:
		return fmt.Errorf("unknown probe %q (want health, echo, ota or all)", selection)
	}
	if jsonFlag && countFlag > 1 {
		return fmt.Errorf("--json cannot be combined with --count")
	}

	runOnce := func() int {
		return runProbes(cmd, selection)
	}

	failed := runOnce()
	if !watchFlag {
		if failed > 0 {
			os.Exit(ExitProbeFailure)
		}
		return nil
	}

	return watchAndRerun(cmd, runOnce)
}

// runProbes builds the modem stack, runs the selected probes, and returns
// the number of failures.
func runProbes(cmd *cobra.Command, selection string) int {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := buildStack(ctx)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		if !watchFlag {
			os.Exit(exitCode(err))
		}
		return 1
	}
	defer s.Close()

	formatter := output.NewConsoleFormatter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithVerbose(s.cfg.GetVerbose()),
		output.WithNoColor(s.cfg.GetNoColor()),
	)
	p := probe.New(s.driver, s.cfg.BaseURL, probe.WithLogger(s.log))

	if waitReadyFlag {
		if err := p.WaitReady(ctx, s.cfg.ResponseTimeoutDuration(), 2*time.Second); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			return 1
		}
		if !jsonFlag {
			fmt.Fprintln(cmd.OutOrStdout(), "backend is warm")
		}
	}

	type namedProbe struct {
		name string
		run  func(context.Context) *probe.Result
	}
	var selected []namedProbe
	if selection == "all" || selection == "health" {
		selected = append(selected, namedProbe{"health", p.Health})
	}
	if selection == "all" || selection == "echo" {
		selected = append(selected, namedProbe{"echo", p.Echo})
	}
	if selection == "all" || selection == "ota" {
		selected = append(selected, namedProbe{"ota-check", func(ctx context.Context) *probe.Result {
			return p.OTACheck(ctx, s.cfg.DeviceID, s.cfg.FirmwareVersion)
		}})
	}

	var jsonOut *output.JSONFormatter
	if jsonFlag {
		jsonOut = output.NewJSONFormatter(output.JSONWithWriter(cmd.OutOrStdout()))
	}

	failed := 0
	for _, np := range selected {
		if countFlag > 1 {
			stats := p.Repeat(ctx, countFlag, np.run)
			formatter.PrintStats(stats)
			failed += stats.Failed()
			continue
		}
		res := np.run(ctx)
		if jsonOut != nil {
			jsonOut.Add(res)
		} else {
			formatter.PrintResult(res)
		}
		if !res.Passed() {
			failed++
		}
	}
	if jsonOut != nil {
		if err := jsonOut.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		}
	}
	return failed
}

// watchAndRerun re-runs the probes whenever the config or profile file is
// written, debounced against editor save storms.
func watchAndRerun(cmd *cobra.Command, run func() int) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	for _, f := range []string{configFlag, profileFlag} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			continue
		}
		dir := filepath.Dir(f)
		if !watched[dir] {
			if err := watcher.Add(dir); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to watch %s: %v\n", dir, err)
			}
			watched[dir] = true
		}
	}
	if len(watched) == 0 {
		return fmt.Errorf("--watch needs a --config or --profile file to watch")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var debounceTimer *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) && (event.Name == configFlag || event.Name == profileFlag) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "\nFile changed: %s\nRe-running probes...\n\n", event.Name)
					run()
					fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watcher error: %v\n", err)
		}
	}
}
