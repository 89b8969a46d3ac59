package core

import (
	"maps"
	"slices"
)

// GroupByMonth partitions receipts by purchase month.
//
// Members keep their input order and groups are sorted by MonthKey ascending,
// which is chronological because the key is zero-padded. A single unparseable
// timestamp fails the whole call with ErrParse and no groups are returned.
// Empty input yields an empty, non-nil slice.
func GroupByMonth(receipts []Receipt) ([]Group, error) {
	byMonth := make(map[MonthKey][]Receipt)
	for _, r := range receipts {
		key, err := MonthKeyOf(r)
		if err != nil {
			return nil, err
		}
		byMonth[key] = append(byMonth[key], r)
	}

	keys := slices.Sorted(maps.Keys(byMonth))
	groups := make([]Group, 0, len(keys))
	for _, key := range keys {
		members := byMonth[key]
		groups = append(groups, Group{
			Month:    key,
			Receipts: members,
			Total:    sumReceipts(members),
		})
	}
	return groups, nil
}

func sumReceipts(receipts []Receipt) Money {
	amounts := make([]Money, len(receipts))
	for i, r := range receipts {
		amounts[i] = r.Amount()
	}
	return Sum(amounts...)
}
