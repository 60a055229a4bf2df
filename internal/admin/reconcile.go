package admin

import (
	"context"

	"github.com/dmitrijs2005/depmsg/internal/app"
	"github.com/spf13/cobra"
)

func (c *command) reconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair depositions whose dual writes diverged",
		Long: `Walk the divergence journal and bring each listed deposition back in
line: messages missing from the database are migrated from the message
files, statuses are copied across and message files are re-exported from
the database. Depositions that were repaired are removed from the journal.
Requires --journal or DEPMSG_JOURNAL_PATH.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				r, err := a.Reconciler(ctx)
				if err != nil {
					return err
				}
				report, err := r.Run(ctx)
				if report != nil {
					printReconcile(c.out, report)
				}
				if err != nil {
					return err
				}
				if report.Failed() {
					return ErrBatchFailed
				}
				return nil
			})
		},
	}
}
