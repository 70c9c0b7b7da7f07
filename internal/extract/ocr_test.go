package extract

import "testing"

func TestCapNotice(t *testing.T) {
	cases := []struct {
		name       string
		pagesDone  int
		limit      int
		totalPages int
		want       string
	}{
		{"stopped before cap", 3, 25, 10, ""},
		{"document fits cap exactly", 25, 25, 25, ""},
		{"cap below known total", 25, 25, 40, "[OCR stopped after 25 of 40 pages]"},
		{"cap exhausted with unknown total", 25, 25, 0, "[OCR stopped after 25 pages]"},
		{"unknown total stopped early", 12, 25, 0, ""},
	}
	for _, tc := range cases {
		if got := capNotice(tc.pagesDone, tc.limit, tc.totalPages); got != tc.want {
			t.Fatalf("%s: capNotice(%d, %d, %d) = %q, want %q",
				tc.name, tc.pagesDone, tc.limit, tc.totalPages, got, tc.want)
		}
	}
}
