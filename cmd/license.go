package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/gravyjobs/gravyjobs/internal/clock"
	"github.com/gravyjobs/gravyjobs/internal/license"
)

// newLicenseCmd creates the 'license' subcommand, printing the capability
// report for the configured key (or one passed via --key).
func newLicenseCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "license",
		Short: "Prints the capability report for a license key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			state := instance.License
			if key != "" {
				gate := license.NewGate(nil, clock.NewSystem())
				state = gate.Validate(key)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(state.Report())
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "validate this key instead of the configured one")
	return cmd
}
