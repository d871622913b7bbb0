package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "modemprobe",
	Short: "Diagnose HTTPS connectivity between an LTE modem and its backend.",
	Long: `modemprobe drives HTTPS requests through an LTE module's AT command
interface and classifies failures by layer, so you can tell a TLS or
socket problem (status 0, no backend log entry) apart from an
application-layer error the backend actually saw.`,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitUsageError)
	}
}

func init() {
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(otaCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(versionCmd)
}
