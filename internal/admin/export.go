package admin

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/depmsg/internal/app"
	"github.com/dmitrijs2005/depmsg/internal/docstore"
	"github.com/dmitrijs2005/depmsg/internal/docstore/blob"
	"github.com/dmitrijs2005/depmsg/internal/exporter"
	"github.com/spf13/cobra"
)

func (c *command) exportCommand() *cobra.Command {
	var (
		sf        scopeFlags
		outputDir string
		overwrite bool
		verify    bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write database content back out as message files",
		Long: `Render the messages, attachment references and statuses held in the
database as message files under --output-dir, one file per content type.
A deposition that already has files there is skipped unless --overwrite is
given, in which case the next file version is written. With --verify each
export is parsed back and compared with the configured message files.

Examples:
  msgadmin export --deposition D_1000000001 --output-dir ./exported
  msgadmin export --all --output-dir ./exported --verify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := sf.scope("all")
			if err != nil {
				return err
			}
			if outputDir == "" {
				return errors.New("--output-dir is required")
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				ex, err := a.Exporter(ctx)
				if err != nil {
					return err
				}
				opts := exporter.Options{
					Overwrite: overwrite,
					Workers:   a.Config().MigrateWorkers,
					Verify:    verify,
				}
				if verify {
					src, err := a.Documents(ctx)
					if err != nil {
						return err
					}
					opts.Against = src
				}

				dst := docstore.New(blob.NewFSStore(outputDir), a.Logger())
				report, err := ex.Run(ctx, scope, dst, opts)
				if report != nil {
					printExport(c.out, report)
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

	cmd.Flags().StringSliceVar(&sf.depositions, "deposition", nil, "deposition id to export (repeatable)")
	cmd.Flags().StringVar(&sf.idsFile, "ids-file", "", "file with one deposition id per line")
	cmd.Flags().BoolVar(&sf.all, "all", false, "export every deposition in the database")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory receiving the message files")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "write a new file version when files already exist")
	cmd.Flags().BoolVar(&verify, "verify", false, "compare every export with the configured message files")
	return cmd
}
