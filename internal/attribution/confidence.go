package attribution

// DecayFunc maps the hours between click and play to a confidence score.
// Returning 0 rejects the pairing outright.
type DecayFunc func(hours float64) float64

// StepDecay is the default confidence schedule: full confidence for plays
// within 12 hours of the click, stepping down to nothing beyond 48 hours.
func StepDecay(hours float64) float64 {
	switch {
	case hours <= 12:
		return 1.0
	case hours <= 24:
		return 0.6
	case hours <= 48:
		return 0.3
	default:
		return 0
	}
}
