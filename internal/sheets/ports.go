// Package sheets exports monthly receipt summaries to spreadsheets.
package sheets

import (
	"context"
	"strconv"

	"kvitto/internal/core"
)

// SummaryExporter writes a monthly summary table somewhere and returns a
// reference to what it wrote.
type SummaryExporter interface {
	ExportSummary(ctx context.Context, table Table) (ref string, err error)
}

// Header is the first row of every exported summary.
var Header = []string{"Month", "Receipts", "Total"}

// Table is a rectangular block of cells, header first.
type Table [][]string

// SummaryTable builds the Month | Receipts | Total table for groups, closed
// by a grand total row. Amounts keep two decimals.
func SummaryTable(groups []core.Group) Table {
	t := make(Table, 0, len(groups)+2)
	t = append(t, append([]string(nil), Header...))
	count := 0
	for _, g := range groups {
		t = append(t, []string{g.Month.String(), strconv.Itoa(g.Count()), g.Total.Display()})
		count += g.Count()
	}
	t = append(t, []string{"Total", strconv.Itoa(count), core.GrandTotal(groups).Display()})
	return t
}

// Cells converts the table to the generic cell grid spreadsheet APIs take.
func (t Table) Cells() [][]any {
	out := make([][]any, len(t))
	for i, row := range t {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}
