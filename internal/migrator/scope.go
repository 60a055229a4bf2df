package migrator

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// Lister enumerates every deposition a backend holds.
type Lister interface {
	ListDepositions(ctx context.Context) ([]string, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context) ([]string, error)

func (f ListerFunc) ListDepositions(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// Scope selects the depositions a batch run works on.
type Scope interface {
	Units(ctx context.Context, l Lister) ([]string, error)
	String() string
}

type singleDeposition string

// SingleDeposition selects one deposition.
func SingleDeposition(id string) Scope {
	return singleDeposition(id)
}

func (s singleDeposition) Units(context.Context, Lister) ([]string, error) {
	return []string{string(s)}, nil
}

func (s singleDeposition) String() string {
	return "deposition " + string(s)
}

type depositionList []string

// DepositionList selects the given depositions in order, dropping repeats
// and blanks.
func DepositionList(ids ...string) Scope {
	var out depositionList
	seen := map[string]bool{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// DepositionListFile reads deposition ids from a file, one per line. Blank
// lines and lines starting with # are ignored.
func DepositionListFile(path string) (Scope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id list: %w", err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read id list: %w", err)
	}
	return DepositionList(ids...), nil
}

func (s depositionList) Units(context.Context, Lister) ([]string, error) {
	return append([]string(nil), s...), nil
}

func (s depositionList) String() string {
	return fmt.Sprintf("%d depositions", len(s))
}

type directoryScan struct{}

// DirectoryScan selects every deposition the source holds.
func DirectoryScan() Scope {
	return directoryScan{}
}

func (directoryScan) Units(ctx context.Context, l Lister) ([]string, error) {
	ids, err := l.ListDepositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan depositions: %w", err)
	}
	return ids, nil
}

func (directoryScan) String() string {
	return "all depositions"
}
