package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the session snapshot every time it changes",
		Long: `Start a session synchronizer against the portal and print one line per
snapshot change until interrupted.

Examples:
  # Watch anonymously (shows a provisional identity when a cache exists)
  sessionwatch watch

  # Sign in first, then follow role changes and sign-outs
  PORTAL_PASSWORD=secret sessionwatch watch --email kagawad@brgy.example.ph
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			for snap := range s.sync.Watch(ctx) {
				fmt.Fprintln(out, renderLine(s.logger, snap))
			}
			return nil
		},
	}
}
