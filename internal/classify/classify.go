package classify

import (
	"errors"
	"fmt"

	"threatrelay/pkg/models"
)

// ErrInvalidArgument reports classifier input outside the documented range.
var ErrInvalidArgument = errors.New("invalid classifier argument")

// Classify maps a threat level and confidence to an escalation tier.
// Thresholds are evaluated from most to least severe; the first match
// wins. Out-of-range inputs are rejected, never clamped.
func Classify(threatLevel int, confidence float64) (models.EscalationTier, error) {
	if threatLevel < 1 || threatLevel > 5 {
		return "", fmt.Errorf("%w: threat level %d outside 1..5", ErrInvalidArgument, threatLevel)
	}
	if confidence < 0.0 || confidence > 1.0 {
		return "", fmt.Errorf("%w: confidence %.3f outside 0..1", ErrInvalidArgument, confidence)
	}

	switch {
	case threatLevel >= 4 && confidence >= 0.8:
		return models.TierCritical, nil
	case threatLevel >= 3 && confidence >= 0.7:
		return models.TierHigh, nil
	case threatLevel >= 2 && confidence >= 0.6:
		return models.TierMedium, nil
	case threatLevel >= 1 && confidence >= 0.5:
		return models.TierLow, nil
	default:
		return models.TierInfo, nil
	}
}
