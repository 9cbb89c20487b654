package lotcode

import "testing"

func TestNext(t *testing.T) {
	cases := []struct {
		current string
		want    string
	}{
		{"", "AA000"},
		{"AA000", "AA001"},
		{"AA009", "AA010"},
		{"AA099", "AA100"},
		{"AA999", "AB000"},
		{"AZ999", "BA000"},
		{"BZ999", "CA000"},
		{"ZY999", "ZZ000"},
		{"ZZ998", "ZZ999"},
		{"ZZ999", "AA000"}, // wrap
	}

	for _, tc := range cases {
		got, err := Next(tc.current)
		if err != nil {
			t.Fatalf("Next(%q) returned error: %v", tc.current, err)
		}
		if got != tc.want {
			t.Errorf("Next(%q) = %q, want %q", tc.current, got, tc.want)
		}
	}
}

func TestNextRejectsMalformedCodes(t *testing.T) {
	for _, bad := range []string{"A1000", "AAA00", "aa000", "AA00", "AA0000", "00AAA"} {
		if _, err := Next(bad); err == nil {
			t.Errorf("Next(%q) accepted a malformed code", bad)
		}
	}
}

func TestNextStaysValid(t *testing.T) {
	code := First
	for i := 0; i < 5000; i++ {
		next, err := Next(code)
		if err != nil {
			t.Fatalf("Next(%q) returned error after %d steps: %v", code, i, err)
		}
		if !Valid(next) {
			t.Fatalf("Next(%q) produced malformed code %q", code, next)
		}
		code = next
	}
}
