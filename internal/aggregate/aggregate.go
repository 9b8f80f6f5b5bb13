package aggregate

import (
	"golang.org/x/sync/errgroup"

	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

// Tables holds the raw table of each tracked sheet. A missing kind reads as
// an empty table.
type Tables map[sheet.Kind]sheet.Table

// Result is the output of one pipeline pass.
type Result struct {
	Misalignment MisalignmentReport `json:"misalignment"`
	Alerts       AlertReport        `json:"alerts"`
	Issues       IssueReport        `json:"issues"`
}

// Run aggregates the three sheets in parallel. The folds share nothing, so
// the result depends only on tables and opts.
func Run(tables Tables, opts Options) Result {
	var (
		res Result
		g   errgroup.Group
	)

	g.Go(func() error {
		t := tables[sheet.KindMisalignment]
		res.Misalignment = Misalignment(t, opts.columns(sheet.KindMisalignment, t))
		return nil
	})
	g.Go(func() error {
		t := tables[sheet.KindAlerts]
		res.Alerts = Alerts(t, opts.columns(sheet.KindAlerts, t), opts.Filters)
		return nil
	})
	g.Go(func() error {
		t := tables[sheet.KindIssues]
		res.Issues = Issues(t, opts.columns(sheet.KindIssues, t), opts.Filters)
		return nil
	})

	_ = g.Wait()
	return res
}
