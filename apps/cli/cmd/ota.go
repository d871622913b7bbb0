package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"modemprobe/packages/ota"
)

var (
	otaOutputFlag string
	otaChunkFlag  int
	otaStatusFlag string
	otaDetailFlag string
)

var otaCmd = &cobra.Command{
	Use:   "ota",
	Short: "Talk to the OTA endpoints over the modem",
	Long: `Exercise the over-the-air update flow end to end: ask the backend
whether new firmware exists, pull the image down in Range-sized chunks,
and acknowledge the result the way a device would.`,
}

var otaCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Ask the backend whether an update is available",
	RunE:  otaCheckCommand,
}

var otaDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Check for an update and download the firmware image",
	RunE:  otaDownloadCommand,
}

var otaAckCmd = &cobra.Command{
	Use:   "ack",
	Short: "Report an update result back to the backend",
	RunE:  otaAckCommand,
}

func init() {
	for _, c := range []*cobra.Command{otaCheckCmd, otaDownloadCmd, otaAckCmd} {
		registerModemFlags(c)
	}
	otaDownloadCmd.Flags().StringVarP(&otaOutputFlag, "output", "o", "firmware.bin", "File to write the firmware image to")
	otaDownloadCmd.Flags().IntVar(&otaChunkFlag, "chunk-size", ota.DefaultChunkSize, "Range window per firmware request, in bytes")
	otaAckCmd.Flags().StringVar(&otaStatusFlag, "status", "success", "Result to report (success or failed)")
	otaAckCmd.Flags().StringVar(&otaDetailFlag, "detail", "", "Free-form detail to attach to the report")

	otaCmd.AddCommand(otaCheckCmd)
	otaCmd.AddCommand(otaDownloadCmd)
	otaCmd.AddCommand(otaAckCmd)
}

// otaClient builds the modem stack and an OTA client over it, exiting with
// the matching code when the stack cannot come up.
func otaClient(cmd *cobra.Command, ctx context.Context) (*ota.Client, *stack) {
	s, err := buildStack(ctx)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		os.Exit(exitCode(err))
	}
	client := ota.NewClient(s.driver, s.cfg.BaseURL, s.cfg.DeviceID, ota.WithLogger(s.log))
	return client, s
}

func otaCheckCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, s := otaClient(cmd, ctx)
	defer s.Close()

	result, err := client.Check(ctx, s.cfg.FirmwareVersion, "")
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		os.Exit(ExitProbeFailure)
	}
	if !result.Available {
		fmt.Fprintf(cmd.OutOrStdout(), "no update available (running %s)\n", s.cfg.FirmwareVersion)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "update available: %s (%d bytes)\n  url: %s\n  id:  %s\n",
		result.Version, result.Size, result.URL, result.ID)
	return nil
}

func otaDownloadCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, s := otaClient(cmd, ctx)
	defer s.Close()

	result, err := client.Check(ctx, s.cfg.FirmwareVersion, "")
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		os.Exit(ExitProbeFailure)
	}
	if !result.Available {
		fmt.Fprintf(cmd.OutOrStdout(), "no update available (running %s)\n", s.cfg.FirmwareVersion)
		return nil
	}

	f, err := os.Create(otaOutputFlag)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", otaOutputFlag, err)
	}
	defer f.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "downloading %s (%d bytes) to %s...\n", result.Version, result.Size, otaOutputFlag)
	n, err := client.Download(ctx, result.URL, result.Size, otaChunkFlag, f)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error after %d bytes: %v\n", n, err)
		os.Exit(ExitProbeFailure)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes\n", n)
	return nil
}

func otaAckCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, s := otaClient(cmd, ctx)
	defer s.Close()

	if err := client.Ack(ctx, otaStatusFlag, otaDetailFlag); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		os.Exit(ExitProbeFailure)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "acknowledged %s\n", otaStatusFlag)
	return nil
}
