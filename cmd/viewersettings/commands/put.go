package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/objectfs/viewersettings/pkg/errors"
)

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <location> <file>",
		Short: "Replace stored settings with the contents of a file",
		Long: `Lock the resource, replace its settings with the contents of file and save.
Fails if the lock is held elsewhere or the location is not writable.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}

			ctx := cmd.Context()
			s, err := a.openSession(ctx, args[0], false)
			if err != nil {
				return err
			}
			if s.result.ReadOnly() {
				_ = s.close(ctx)
				return errors.ErrReadOnly
			}

			s.source.Set(data)
			if err := s.close(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved %d bytes to %s\n", len(data), s.coord.Identity())
			return err
		},
	}
}
