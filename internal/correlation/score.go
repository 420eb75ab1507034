package correlation

import (
	"math"
	"strings"
)

// Score computes the indicator-containment score between agent findings
// and a threat-intel indicator list. This is a deliberately simple
// substring heuristic, not a real correlation algorithm: the score is the
// percentage of indicators found verbatim inside the findings text,
// rounded to two decimals and clamped to [0,100]. An empty indicator
// list scores 0.
func Score(findings string, indicators []string) float64 {
	if len(indicators) == 0 {
		return 0
	}

	matches := 0
	for _, indicator := range indicators {
		if indicator == "" {
			continue
		}
		if strings.Contains(findings, indicator) {
			matches++
		}
	}

	score := float64(matches) / float64(len(indicators)) * 100
	if score > 100 {
		score = 100
	}
	return math.Round(score*100) / 100
}
