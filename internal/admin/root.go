// Package admin implements msgadmin, the operational tool for deposition
// message storage: schema setup, file-to-database migration, export back to
// message files, divergence reconciliation and direct message access.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/depmsg/internal/app"
	"github.com/dmitrijs2005/depmsg/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// ErrBatchFailed is returned when a batch command finished but at least one
// unit failed.
var ErrBatchFailed = errors.New("batch finished with failures")

type command struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// lookupEnv is a seam for tests; nil means the process environment.
	lookupEnv func(key string) (string, bool)
}

// NewRootCommand builds the msgadmin command tree.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	c := &command{in: in, out: out, errOut: errOut}
	return c.root()
}

func (c *command) root() *cobra.Command {
	root := &cobra.Command{
		Use:   "msgadmin",
		Short: "Administer deposition message storage",
		Long: `msgadmin manages deposition messages held in message files and in the
relational database: it creates the schema, migrates files into the
database, exports the database back into message files and repairs
depositions whose dual writes diverged.

Settings come from --config, the DEPMSG_* environment (a .env file is
read when present), the legacy MSGDB_*/MSGCIF_* switches and the flags
below, later sources winning.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		c.schemaCommand(),
		c.migrateCommand(),
		c.exportCommand(),
		c.reconcileCommand(),
		c.messagesCommand(),
	)
	return root
}

// Execute runs msgadmin with the process arguments and exits non-zero on
// failure. It is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	err := NewRootCommand(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp loads the configuration for cmd, builds the App, runs fn and then
// writes metrics and releases every store.
func (c *command) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := config.Load(config.Options{Flags: cmd.Flags(), LookupEnv: c.lookupEnv})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(cfg, c.errOut)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, a.FlushMetrics())
		err = multierr.Append(err, a.Close())
	}()
	return fn(cmd.Context(), a)
}
