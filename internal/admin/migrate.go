package admin

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/depmsg/internal/app"
	"github.com/dmitrijs2005/depmsg/internal/migrator"
	"github.com/dmitrijs2005/depmsg/internal/models"
	"github.com/dmitrijs2005/depmsg/internal/repositories/repomanager"
	"github.com/spf13/cobra"
)

type scopeFlags struct {
	depositions []string
	idsFile     string
	all         bool
}

func (s *scopeFlags) scope(allFlag string) (migrator.Scope, error) {
	set := 0
	if len(s.depositions) > 0 {
		set++
	}
	if s.idsFile != "" {
		set++
	}
	if s.all {
		set++
	}
	if set != 1 {
		return nil, errors.New("choose exactly one of --deposition, --ids-file or --" + allFlag)
	}

	switch {
	case s.idsFile != "":
		return migrator.DepositionListFile(s.idsFile)
	case s.all:
		return migrator.DirectoryScan(), nil
	case len(s.depositions) == 1:
		return migrator.SingleDeposition(s.depositions[0]), nil
	default:
		return migrator.DepositionList(s.depositions...), nil
	}
}

func (c *command) migrateCommand() *cobra.Command {
	var (
		sf      scopeFlags
		dryRun  bool
		workers int
		rate    float64
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy messages from message files into the database",
		Long: `Copy every message, attachment reference and status of the chosen
depositions from the message files into the relational database. Messages
already in the database are skipped, so the command can be rerun after an
interruption. The schema is brought up to date first, except with --dry-run,
which leaves the database untouched.

Examples:
  msgadmin migrate --deposition D_1000000001
  msgadmin migrate --ids-file depositions.txt --workers 8 --rate 20
  msgadmin migrate --scan --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := sf.scope("scan")
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				opts := a.MigratorOptions()
				opts.DryRun = dryRun
				if cmd.Flags().Changed("workers") {
					opts.Workers = workers
				}
				if cmd.Flags().Changed("rate") {
					opts.Rate = rate
				}

				build := c.migrator
				if dryRun {
					build = c.dryRunMigrator
				}
				mg, err := build(ctx, a, opts)
				if err != nil {
					return err
				}
				report, err := mg.Run(ctx, scope)
				if report != nil {
					printMigration(c.out, report)
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

	cmd.Flags().StringSliceVar(&sf.depositions, "deposition", nil, "deposition id to migrate (repeatable)")
	cmd.Flags().StringVar(&sf.idsFile, "ids-file", "", "file with one deposition id per line")
	cmd.Flags().BoolVar(&sf.all, "scan", false, "migrate every deposition found in the message file tree")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "read and check everything without inserting")
	cmd.Flags().IntVar(&workers, "workers", 0, "depositions migrated concurrently")
	cmd.Flags().Float64Var(&rate, "rate", 0, "depositions started per second, 0 for unlimited")
	return cmd
}

func (c *command) migrator(ctx context.Context, a *app.App, opts migrator.Options) (*migrator.Migrator, error) {
	db, err := a.Database(ctx)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		return nil, err
	}
	return a.Migrator(ctx, opts)
}

// dryRunMigrator only inspects the schema. Without a message table the
// database holds no messages, so every message counts as new.
func (c *command) dryRunMigrator(ctx context.Context, a *app.App, opts migrator.Options) (*migrator.Migrator, error) {
	db, err := a.Database(ctx)
	if err != nil {
		return nil, err
	}
	st, err := db.Manager().VerifySchema(ctx, db.DB())
	if err != nil {
		return nil, err
	}
	if st.OK() {
		return a.Migrator(ctx, opts)
	}
	fmt.Fprintf(c.out, "Schema version %d of %d; a real run migrates it first.\n", st.Version, st.Latest)
	if !slices.Contains(st.MissingTables, repomanager.Tables[0]) {
		return a.Migrator(ctx, opts)
	}
	docs, err := a.Documents(ctx)
	if err != nil {
		return nil, err
	}
	return migrator.New(docs, emptyDatabase{}, opts, a.Logger(), a.Metrics()), nil
}

// emptyDatabase stands in for a database without a schema.
type emptyDatabase struct{}

func (emptyDatabase) Exists(context.Context, string) (bool, error) { return false, nil }

func (emptyDatabase) InsertMessage(context.Context, *models.Record) error {
	return errors.New("database has no schema")
}
