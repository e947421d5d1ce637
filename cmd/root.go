// Package cmd defines and implements the CLI commands for the gravyjobs
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gravyjobs/gravyjobs/internal/app"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can swap
// in a mock factory.
var newApp = func() (*app.App, error) {
	return app.New(cfgFile)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gravyjobs",
		Short: "Aggregates job listings through a resilient, identity-rotating fetch layer.",
		Long: `gravyjobs scrapes job listings from public sites that rate limit,
block IPs, and fingerprint bots. Every outbound request goes through a
resilient fetch layer that rotates network identities and browser
fingerprints, backs off on blocking signals, and falls back to an
on-disk cache of prior results instead of failing outright.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := newApp()
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, instance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if instance, ok := cmd.Context().Value(appKey).(*app.App); ok && instance != nil {
				instance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newLicenseCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	instance, ok := ctx.Value(appKey).(*app.App)
	if !ok || instance == nil {
		return nil, errors.New("application services not initialized")
	}
	return instance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
