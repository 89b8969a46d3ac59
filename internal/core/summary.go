package core

// Group is one month of receipts with their summed amount.
// Groups are recomputed on every aggregation and never persisted.
type Group struct {
	Month    MonthKey
	Receipts []Receipt
	Total    Money
}

// Count returns the number of receipts in the group.
func (g Group) Count() int {
	return len(g.Receipts)
}

// GrandTotal sums the group totals.
func GrandTotal(groups []Group) Money {
	totals := make([]Money, len(groups))
	for i, g := range groups {
		totals[i] = g.Total
	}
	return Sum(totals...)
}
