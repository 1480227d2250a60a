package store

import (
	"math"
	"testing"
	"time"
)

func TestNumberCoercion(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{nil, 0, false},
		{"12.5", 12.5, true},
		{" 7 ", 7, true},
		{"", 0, false},
		{"abc", 0, false},
		{[]byte("3"), 3, true},
		{int64(4), 4, true},
		{2.25, 2.25, true},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
		{"Inf", 0, false},
		{true, 1, true},
	}
	for _, c := range cases {
		got, ok := Number(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("Number(%#v) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestTimeCoercion(t *testing.T) {
	ref := time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC)
	for _, in := range []any{Stamp(ref), []byte(Stamp(ref)), ref, ref.UnixMilli()} {
		got := Time(in)
		if got == nil {
			t.Fatalf("Time(%#v) = nil", in)
		}
		if got.Sub(ref).Abs() >= time.Millisecond {
			t.Errorf("Time(%#v) = %v, want ~%v", in, got, ref)
		}
	}
	if Time("not a date") != nil || Time(nil) != nil {
		t.Errorf("expected nil for absent timestamps")
	}
}
