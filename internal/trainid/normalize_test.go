package trainid

import "testing"

func TestNormalizeExamples(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1:1111406H", "406H"},
		{"42000906G", "906G"},
		{"1234H", "1234H"},
		{"0406H", "406H"},
	}
	for _, c := range cases {
		got, ok := Normalize(c.in)
		if !ok {
			t.Fatalf("Normalize(%q): expected match", c.in)
		}
		if got != c.want {
			t.Fatalf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeUnmatched(t *testing.T) {
	cases := []string{"", "ABCDEF", "12"}
	for _, c := range cases {
		if _, ok := Normalize(c); ok {
			t.Fatalf("Normalize(%q): expected no match", c)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"1:1111406H", "42000906G", "1234H"}
	for _, in := range inputs {
		once, ok := Normalize(in)
		if !ok {
			t.Fatalf("Normalize(%q): expected match", in)
		}
		twice, ok := Normalize(once)
		if !ok {
			t.Fatalf("Normalize(%q): expected match", once)
		}
		if once != twice {
			t.Fatalf("Normalize not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}
