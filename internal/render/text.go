// Package render turns aggregated receipt groups into text, HTML and chart
// output. It never recomputes sums: totals come from the groups.
package render

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"kvitto/internal/core"
)

// EmptyReport is printed when there is nothing to report.
const EmptyReport = "No receipts (0 groups)"

// Text writes one block per month: a header, one "store amount" line per
// receipt, a total line and a blank line. Styling is dropped when w is not a
// terminal.
func Text(w io.Writer, groups []core.Group) error {
	if len(groups) == 0 {
		_, err := fmt.Fprintln(w, EmptyReport)
		return err
	}

	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	total := r.NewStyle().Bold(true)

	for _, g := range groups {
		if _, err := fmt.Fprintln(w, header.Render(g.Month.String()+":")); err != nil {
			return err
		}
		for _, rc := range g.Receipts {
			if _, err := fmt.Fprintf(w, "%s %s\n", rc.Store.Name, rc.Amount().Display()); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, total.Render("Total: "+g.Total.Display())); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
