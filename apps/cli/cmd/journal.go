package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"modemprobe/packages/journal"
	"modemprobe/packages/output"
)

var (
	journalLimitFlag     int
	journalOlderThanFlag time.Duration
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the local request journal",
	Long: `Inspect the SQLite request journal written by the --journal flag.
Every journaled request carries the X-Request-ID it was sent with, so
entries here can be matched against the backend's request log.`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show recent requests, newest first",
	RunE:  journalListCommand,
}

var journalFindCmd = &cobra.Command{
	Use:   "find <request-id>",
	Short: "Look up a request by its X-Request-ID",
	Args:  cobra.ExactArgs(1),
	RunE:  journalFindCommand,
}

var journalPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete journal entries older than a cutoff",
	RunE:  journalPurgeCommand,
}

func init() {
	for _, c := range []*cobra.Command{journalListCmd, journalFindCmd, journalPurgeCmd} {
		c.Flags().StringVarP(&configFlag, "config", "c", getEnvString("MODEMPROBE_CONFIG", ""), "Configuration file path")
		c.Flags().StringVar(&journalFlag, "journal", getEnvString("MODEMPROBE_JOURNAL", ""), "Journal database path")
		c.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("MODEMPROBE_NO_COLOR", false), "Disable colored output")
	}
	journalListCmd.Flags().IntVar(&journalLimitFlag, "limit", 20, "Maximum entries to show")
	journalPurgeCmd.Flags().DurationVar(&journalOlderThanFlag, "older-than", 7*24*time.Hour, "Delete entries older than this")

	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalFindCmd)
	journalCmd.AddCommand(journalPurgeCmd)
}

// openJournal resolves the journal path from flags and config and opens it.
// The journal commands never touch the serial port.
func openJournal() (*journal.Journal, error) {
	cfg, err := loadRunConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(ExitConfigError)
	}
	if cfg.Journal == "" {
		fmt.Fprintln(os.Stderr, "error: no journal path configured (use --journal or the config file)")
		os.Exit(ExitConfigError)
	}
	return journal.Open(cfg.Journal)
}

func journalListCommand(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.List(cmd.Context(), journalLimitFlag)
	if err != nil {
		return err
	}
	formatter := output.NewConsoleFormatter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithNoColor(noColorFlag),
	)
	formatter.PrintJournal(entries)
	return nil
}

func journalFindCommand(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	entry, err := j.Find(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if entry == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "no entry with request id %s\n", args[0])
		os.Exit(ExitProbeFailure)
	}
	formatter := output.NewConsoleFormatter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithNoColor(noColorFlag),
	)
	formatter.PrintJournal([]journal.Entry{*entry})
	return nil
}

func journalPurgeCommand(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	cutoff := time.Now().Add(-journalOlderThanFlag)
	n, err := j.Purge(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries older than %s\n", n, journalOlderThanFlag)
	return nil
}
