package admin

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/depmsg/internal/exporter"
	"github.com/dmitrijs2005/depmsg/internal/migrator"
	"github.com/dmitrijs2005/depmsg/internal/reconcile"
	"github.com/dustin/go-humanize"
)

func count(n int) string {
	return humanize.Comma(int64(n))
}

func elapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

func printMigration(w io.Writer, r *migrator.Report) {
	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "Migration of %s%s\n", r.Scope, mode)
	for _, u := range r.Units {
		printMigrationUnit(w, "  ", u)
	}

	t := r.Totals()
	fmt.Fprintf(w, "Total: %s depositions, %s failed; messages migrated %s, skipped %s, failed %s\n",
		count(t.Units), count(t.FailedUnits), count(t.Migrated), count(t.Skipped), count(t.Failed))
}

func printMigrationUnit(w io.Writer, indent string, u *migrator.UnitReport) {
	fmt.Fprintf(w, "%s%-16s migrated %s  skipped %s  failed %s  %s\n", indent,
		u.DepositionID, count(u.Migrated), count(u.Skipped), count(u.Failed), elapsed(u.Elapsed))
	if u.Err != nil {
		fmt.Fprintf(w, "%s  error: %v\n", indent, u.Err)
	}
	for _, f := range u.Failures {
		fmt.Fprintf(w, "%s  message %s: %v\n", indent, f.MessageID, f.Err)
	}
}

func printExport(w io.Writer, r *exporter.Report) {
	fmt.Fprintf(w, "Export of %s\n", r.Scope)
	var written, failed int
	for _, u := range r.Units {
		switch {
		case u.Skipped:
			fmt.Fprintf(w, "  %-16s skipped: already exported\n", u.DepositionID)
		case u.Err != nil:
			failed++
			fmt.Fprintf(w, "  %-16s error: %v\n", u.DepositionID, u.Err)
		default:
			written += len(u.Documents)
			fmt.Fprintf(w, "  %-16s %s files  %s\n", u.DepositionID, count(len(u.Documents)), elapsed(u.Elapsed))
			for _, d := range u.Documents {
				fmt.Fprintf(w, "    %s\n", d)
			}
		}
		if u.Diff != "" {
			failed++
			fmt.Fprintf(w, "  %-16s differs from source (-source +export):\n%s\n", u.DepositionID, indentLines(u.Diff, "    "))
		}
	}
	fmt.Fprintf(w, "Total: %s depositions, %s files written, %s failed\n",
		count(len(r.Units)), count(written), count(failed))
}

func printReconcile(w io.Writer, r *reconcile.Report) {
	fmt.Fprintf(w, "Reconciled %s depositions\n", count(len(r.Units)))
	for _, u := range r.Units {
		state := "resolved"
		if !u.Resolved {
			state = "pending"
		}
		fmt.Fprintf(w, "  %-16s %s divergences  statuses repaired %s  files exported %s  %s\n",
			u.DepositionID, count(u.Divergences), count(u.StatusesRepaired), count(len(u.Exported)), state)
		if u.Migration != nil {
			printMigrationUnit(w, "    ", u.Migration)
		}
		if u.Err != nil {
			fmt.Fprintf(w, "    error: %v\n", u.Err)
		}
	}
}

func indentLines(s, indent string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = indent + l
	}
	return strings.Join(lines, "\n")
}
