package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gravyjobs/gravyjobs/internal/fetch"
)

// newFetchCmd creates the 'fetch' subcommand: one resilient fetch of a
// single URL, printing the payload to stdout.
func newFetchCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Fetches one URL through the resilient fetch layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			result, err := instance.Fetcher.Fetch(cmd.Context(), fetch.Request{URL: args[0]})
			if err != nil {
				return fmt.Errorf("fetch: %w", err)
			}

			instance.Logger.Info("fetch complete",
				zap.String("url", args[0]),
				zap.Int("bytes", len(result.Payload)),
				zap.Bool("from_cache", result.FromCache),
				zap.Bool("stale", result.Stale),
				zap.String("identity", result.IdentityID),
			)

			if output != "" {
				return os.WriteFile(output, result.Payload, 0o600)
			}
			_, err = cmd.OutOrStdout().Write(result.Payload)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write payload to file instead of stdout")
	return cmd
}
