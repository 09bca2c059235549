package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Resolve the session once and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			for snap := range s.sync.Watch(ctx) {
				if snap.Loading {
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderLine(s.logger, snap))
				return nil
			}
			return ctx.Err()
		},
	}
}
