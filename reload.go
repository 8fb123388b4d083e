package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReloadCmd() *cobra.Command {
	var flagPIDFile string

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Force a running `serve` daemon to refresh every repository now",
		Long: `Sends SIGHUP to the serve daemon identified by --pid-file, which refreshes
every mounted repository immediately instead of waiting for its next
scheduled sync.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flagPIDFile == "" {
				return fmt.Errorf("--pid-file is required")
			}

			return sendSIGHUP(flagPIDFile)
		},
	}

	cmd.Flags().StringVar(&flagPIDFile, "pid-file", "", "PID file of the running serve daemon")

	return cmd
}
