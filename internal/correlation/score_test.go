package correlation

import "testing"

func TestScoreCountsMatchedIndicators(t *testing.T) {
	findings := "outbound connection to 203.0.113.7 using mimikatz dropper"
	indicators := []string{"203.0.113.7", "mimikatz", "cobaltstrike", "10.0.0.9"}

	got := Score(findings, indicators)
	if got != 50 {
		t.Fatalf("Score = %v, want 50", got)
	}
}

func TestScoreEmptyIndicatorListIsZero(t *testing.T) {
	if got := Score("anything at all", nil); got != 0 {
		t.Fatalf("Score with nil indicators = %v, want 0", got)
	}
	if got := Score("anything at all", []string{}); got != 0 {
		t.Fatalf("Score with empty indicators = %v, want 0", got)
	}
}

func TestScoreFullMatchClampsAtHundred(t *testing.T) {
	findings := "a b c"
	if got := Score(findings, []string{"a", "b", "c"}); got != 100 {
		t.Fatalf("Score = %v, want 100", got)
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	findings := "suspicious login from 198.51.100.23"
	indicators := []string{"198.51.100.23", "malware.example.com", ""}

	first := Score(findings, indicators)
	second := Score(findings, indicators)
	if first != second {
		t.Fatalf("Score not idempotent: %v then %v", first, second)
	}
}

func TestScoreRoundsToTwoDecimals(t *testing.T) {
	// 1 of 3 indicators: 33.333... rounds to 33.33.
	got := Score("hit one", []string{"one", "two", "three"})
	if got != 33.33 {
		t.Fatalf("Score = %v, want 33.33", got)
	}
}
