package migrator

import "time"

// Failure is one record that could not be processed.
type Failure struct {
	MessageID string
	Err       error
}

// UnitReport holds the outcome of one deposition. Err is set when the unit
// could not be read at all.
type UnitReport struct {
	DepositionID string
	Migrated     int
	Skipped      int
	Failed       int
	Failures     []Failure
	Err          error
	Elapsed      time.Duration
}

// OK reports whether every record of the unit was migrated or skipped.
func (u *UnitReport) OK() bool {
	return u.Err == nil && u.Failed == 0
}

func (u *UnitReport) fail(id string, err error) {
	u.Failed++
	u.Failures = append(u.Failures, Failure{MessageID: id, Err: err})
}

type Report struct {
	Scope  string
	DryRun bool
	Units  []*UnitReport
}

type Totals struct {
	Units       int
	FailedUnits int
	Migrated    int
	Skipped     int
	Failed      int
}

func (r *Report) Totals() Totals {
	t := Totals{Units: len(r.Units)}
	for _, u := range r.Units {
		if u == nil {
			continue
		}
		t.Migrated += u.Migrated
		t.Skipped += u.Skipped
		t.Failed += u.Failed
		if !u.OK() {
			t.FailedUnits++
		}
	}
	return t
}

// Failed marks the whole batch failed when any record or unit failed.
func (r *Report) Failed() bool {
	return r.Totals().FailedUnits > 0
}
