package commands

import (
	"github.com/spf13/cobra"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <location>",
		Short: "Print stored settings without locking",
		Long: `Print the stored settings blob. The resource is opened read-only, so this
works while another viewer holds the lock.

Examples:
  viewersettings show /data/experiment-42
  viewersettings show s3://my-bucket/datasets/run1/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openSession(ctx, args[0], true)
			if err != nil {
				return err
			}
			defer func() { _ = s.close(ctx) }()

			if !s.result.Loaded() {
				cmd.PrintErrln("No settings stored.")
				return nil
			}
			_, err = cmd.OutOrStdout().Write(s.source.Bytes())
			return err
		},
	}
}
