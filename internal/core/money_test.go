package core

import (
	"encoding/json"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.005", true}, // no rounding
		{" 2.50 ", "2.5", true},
		{"0", "0", true},
		{"-1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestSumIsExact(t *testing.T) {
	var amounts []Money
	for i := 0; i < 10; i++ {
		m, _ := ParseAmount("0.1")
		amounts = append(amounts, m)
	}
	want, _ := ParseAmount("1")
	if got := Sum(amounts...); !got.Equal(want) {
		t.Fatalf("sum of ten 0.1 = %s, want 1", got)
	}
	if got := Sum(); !got.IsZero() {
		t.Fatalf("empty sum = %s, want 0", got)
	}
}

func TestMoneyJSON(t *testing.T) {
	var m Money
	if err := json.Unmarshal([]byte(`12.50`), &m); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if m.Display() != "12.50" {
		t.Fatalf("display = %s", m.Display())
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "12.5" {
		t.Fatalf("marshal = %s, want bare number 12.5", b)
	}

	var quoted Money
	if err := json.Unmarshal([]byte(`"7.25"`), &quoted); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if quoted.String() != "7.25" {
		t.Fatalf("quoted = %s", quoted)
	}
}

func TestMoneyDisplay(t *testing.T) {
	for in, want := range map[string]string{
		"3":      "3.00",
		"12.5":   "12.50",
		"0.005":  "0.005",
		"1.2345": "1.2345",
	} {
		m, err := ParseAmount(in)
		if err != nil {
			t.Fatalf("parse %s: %v", in, err)
		}
		if got := m.Display(); got != want {
			t.Errorf("Display(%s) = %s, want %s", in, got, want)
		}
	}
}
