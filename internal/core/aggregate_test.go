package core

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receipt(key, store, date, amount string) Receipt {
	m, err := ParseAmount(amount)
	if err != nil {
		panic(err)
	}
	return Receipt{Key: key, Store: Store{Name: store}, PurchaseDate: date, TotalAmount: Amount{Amount: m}}
}

func money(s string) Money {
	m, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return m
}

var moneyEqual = cmp.Comparer(func(a, b Money) bool { return a.Equal(b) })

func TestGroupByMonth(t *testing.T) {
	a := receipt("A", "Shop", "2024-01-05T10:00:00Z", "12.50")
	b := receipt("B", "Shop", "2024-01-20T09:00:00Z", "7.50")
	c := receipt("C", "Other", "2024-02-01T00:00:00Z", "3.00")

	groups, err := GroupByMonth([]Receipt{a, b, c})
	require.NoError(t, err)

	want := []Group{
		{Month: "2024-01", Receipts: []Receipt{a, b}, Total: money("20.00")},
		{Month: "2024-02", Receipts: []Receipt{c}, Total: money("3.00")},
	}
	if diff := cmp.Diff(want, groups, moneyEqual); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupByMonthOrdering(t *testing.T) {
	in := []Receipt{
		receipt("late", "S", "2024-03-31T23:59:59Z", "1"),
		receipt("early", "S", "2023-12-01T00:00:00Z", "2"),
		receipt("mid", "S", "2024-03-01T00:00:00Z", "3"),
		receipt("year", "S", "2024-10-01T00:00:00Z", "4"),
	}
	groups, err := GroupByMonth(in)
	require.NoError(t, err)

	var months []MonthKey
	for _, g := range groups {
		months = append(months, g.Month)
	}
	assert.Equal(t, []MonthKey{"2023-12", "2024-03", "2024-10"}, months)
	// input order is kept inside a group
	assert.Equal(t, "late", groups[1].Receipts[0].Key)
	assert.Equal(t, "mid", groups[1].Receipts[1].Key)
}

func TestGroupByMonthEmpty(t *testing.T) {
	groups, err := GroupByMonth(nil)
	require.NoError(t, err)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestGroupByMonthInvalidDate(t *testing.T) {
	cases := []string{
		"2024-13-01T00:00:00Z",
		"not a date",
		"2024-01-05",
		"",
	}
	for _, date := range cases {
		t.Run(date, func(t *testing.T) {
			groups, err := GroupByMonth([]Receipt{
				receipt("ok", "S", "2024-01-01T00:00:00Z", "1"),
				receipt("bad", "S", date, "1"),
			})
			if !errors.Is(err, ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			if groups != nil {
				t.Fatalf("expected no groups on failure, got %v", groups)
			}
		})
	}
}

func TestGroupByMonthNoTimezoneConversion(t *testing.T) {
	// 23:30 at -05:00 is February in UTC, but the encoded calendar says January.
	r := receipt("tz", "S", "2024-01-31T23:30:00-05:00", "1")
	key, err := MonthKeyOf(r)
	require.NoError(t, err)
	assert.Equal(t, MonthKey("2024-01"), key)
}

func TestSumIndependentOfOrder(t *testing.T) {
	in := []Receipt{
		receipt("1", "S", "2024-05-01T00:00:00Z", "0.10"),
		receipt("2", "S", "2024-05-02T00:00:00Z", "0.20"),
		receipt("3", "S", "2024-05-03T00:00:00Z", "1234567.89"),
	}
	reversed := []Receipt{in[2], in[1], in[0]}

	g1, err := GroupByMonth(in)
	require.NoError(t, err)
	g2, err := GroupByMonth(reversed)
	require.NoError(t, err)

	assert.True(t, g1[0].Total.Equal(g2[0].Total))
	assert.Equal(t, "1234568.19", g1[0].Total.String())
	assert.True(t, GrandTotal(g1).Equal(g1[0].Total))
}
