package graph

import "math"

// Evidence deltas. Contradicting evidence is weighted twice as heavily as
// supporting evidence: refutation should move the needle faster than
// confirmation.
const (
	supportingDelta    = 0.05
	contradictingDelta = -0.10
)

// Confirmation thresholds for the status transition rule, evaluated after a
// confidence update.
const (
	supportedThreshold = 0.8
	refutedThreshold   = 0.2
)

// neutralPrior is the default confidence for a freshly created node.
const neutralPrior = 0.5

// clamp01 bounds a confidence or strength value to [0,1].
func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// round2 rounds to two decimal places, the precision at which confidence is
// stored and reported.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// evidenceDelta returns the confidence delta contributed by a single evidence
// item. Neutral items contribute nothing.
func evidenceDelta(s Sentiment) float64 {
	switch s {
	case SentimentSupporting:
		return supportingDelta
	case SentimentContradicting:
		return contradictingDelta
	default:
		return 0
	}
}

// statusAfter applies the status transition rule: confidence at or above the
// supported threshold wins regardless of batch contents, at or below the
// refuted threshold loses, otherwise any contradicting item in the applied
// batch marks the node challenged and the status is unchanged when none was.
func statusAfter(current NodeStatus, confidence float64, anyContradicting bool) NodeStatus {
	switch {
	case confidence >= supportedThreshold:
		return StatusSupported
	case confidence <= refutedThreshold:
		return StatusRefuted
	case anyContradicting:
		return StatusChallenged
	default:
		return current
	}
}

// InitialConfidenceFromImportance derives a starting confidence from a stated
// importance in [0,1]. Higher importance yields a more conservative prior:
// more-critical claims default to needing more validation.
func InitialConfidenceFromImportance(importance float64) float64 {
	return round2(clamp01(neutralPrior - (importance-neutralPrior)*0.2))
}

// riskModifiers maps a qualitative risk level to its confidence adjustment.
var riskModifiers = map[string]float64{
	"high":   -0.15,
	"medium": -0.05,
	"low":    0.05,
}

// InitialConfidenceFromRisk derives a starting confidence from a qualitative
// risk level and a testability score in [0,1]. The result is clamped to
// [0.2, 0.7] so no hypothesis starts out effectively decided.
func InitialConfidenceFromRisk(risk string, testability float64) float64 {
	c := neutralPrior + riskModifiers[risk] + (testability-neutralPrior)*0.1
	return round2(math.Min(0.7, math.Max(0.2, c)))
}
