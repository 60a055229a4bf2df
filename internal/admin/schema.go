package admin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/depmsg/internal/app"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

var (
	errNotConfirmed   = errors.New("drop not confirmed")
	errSchemaOutdated = errors.New("schema is missing or not up to date")
)

func (c *command) schemaCommand() *cobra.Command {
	var verifyOnly, dropAndRecreate, yes bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create, verify or recreate the message tables",
		Long: `Create the message tables or bring them up to date. With --verify-only the
schema is inspected and nothing is changed. With --drop-and-recreate every
message table is dropped and created empty; this asks for confirmation
unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if verifyOnly && dropAndRecreate {
				return errors.New("--verify-only and --drop-and-recreate are mutually exclusive")
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				switch {
				case verifyOnly:
					return c.verifySchema(ctx, a)
				case dropAndRecreate:
					return c.recreateSchema(ctx, a, yes)
				default:
					return c.createSchema(ctx, a)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&verifyOnly, "verify-only", false, "report the schema state without changing it")
	cmd.Flags().BoolVar(&dropAndRecreate, "drop-and-recreate", false, "drop all message tables and create them empty")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask before dropping tables")
	return cmd
}

func (c *command) createSchema(ctx context.Context, a *app.App) error {
	db, err := a.Database(ctx)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Schema is up to date.")
	return nil
}

func (c *command) verifySchema(ctx context.Context, a *app.App) error {
	db, err := a.Database(ctx)
	if err != nil {
		return err
	}
	st, err := db.Manager().VerifySchema(ctx, db.DB())
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Schema version: %d (latest %d)\n", st.Version, st.Latest)
	for _, t := range st.MissingTables {
		fmt.Fprintf(c.out, "  missing table: %s\n", t)
	}
	if !st.OK() {
		return errSchemaOutdated
	}
	fmt.Fprintln(c.out, "Schema is up to date.")
	return nil
}

func (c *command) recreateSchema(ctx context.Context, a *app.App, yes bool) error {
	if !yes {
		ok, err := c.confirm("This drops every message table and all stored messages. Continue? [y/N]: ")
		if err != nil {
			return err
		}
		if !ok {
			return errNotConfirmed
		}
	}

	db, err := a.Database(ctx)
	if err != nil {
		return err
	}
	if err := db.Manager().ResetSchema(ctx, db.DB()); err != nil {
		return err
	}
	a.Logger().Warn(ctx, "message schema recreated", "dialect", db.Manager().Dialect())
	fmt.Fprintln(c.out, "Schema recreated.")
	return nil
}

// confirm asks a yes/no question on an interactive terminal. Without a
// terminal the answer is no; scripts pass --yes instead.
func (c *command) confirm(prompt string) (bool, error) {
	fd := -1
	if f, ok := c.in.(*os.File); ok {
		fd = int(f.Fd())
	}
	if !isTerminal(fd) {
		return false, nil
	}

	fmt.Fprint(c.out, prompt)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
