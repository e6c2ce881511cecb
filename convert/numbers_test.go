package convert

import "testing"

func TestTwoDecimals(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{1.234, 1.23},
		{1.236, 1.24},
		{-1.239, -1.24},
		{0, 0},
	}
	for _, c := range cases {
		if got := TwoDecimals(c.in); got != c.want {
			t.Errorf("TwoDecimals(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestOctasToPercentage(t *testing.T) {
	if got := OctasToPercentage(4); got != 50 {
		t.Errorf("OctasToPercentage(4) = %v, want 50", got)
	}
	if got := OctasToPercentage(8); got != 100 {
		t.Errorf("OctasToPercentage(8) = %v, want 100", got)
	}
}
