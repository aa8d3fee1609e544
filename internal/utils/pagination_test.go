package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"x", 5, 5},
		{" 42", 7, 7}, // no trim
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestNewPage(t *testing.T) {
	cases := []struct {
		n, s int
		want Page
	}{
		{0, 0, Page{1, DefaultPageSize}},
		{-3, 5, Page{1, 5}},
		{4, 500, Page{4, MaxPageSize}},
		{2, 10, Page{2, 10}},
	}
	for _, tc := range cases {
		if got := NewPage(tc.n, tc.s); got != tc.want {
			t.Fatalf("NewPage(%d,%d)=%+v want %+v", tc.n, tc.s, got, tc.want)
		}
	}
}

func TestParsePage(t *testing.T) {
	cases := []struct {
		n, s string
		want Page
	}{
		{"", "", Page{1, DefaultPageSize}},
		{"abc", "x", Page{1, DefaultPageSize}},
		{"-1", "0", Page{1, 1}},
		{"3", "1000", Page{3, MaxPageSize}},
	}
	for _, tc := range cases {
		if got := ParsePage(tc.n, tc.s); got != tc.want {
			t.Fatalf("ParsePage(%q,%q)=%+v want %+v", tc.n, tc.s, got, tc.want)
		}
	}
}

func TestPage_OffsetAndTotalPages(t *testing.T) {
	p := Page{Number: 3, Size: 10}
	if p.Offset() != 20 {
		t.Fatalf("offset=%d", p.Offset())
	}
	for total, want := range map[int64]int{0: 0, 1: 1, 10: 1, 11: 2, 95: 10} {
		if got := p.TotalPages(total); got != want {
			t.Fatalf("TotalPages(%d)=%d want %d", total, got, want)
		}
	}
	if (Page{}).TotalPages(5) != 0 {
		t.Fatalf("zero size must not divide")
	}
}
