package engine

import (
	"strings"
)

// Directional priors per task: which band is expected to move which way.
// Matching is by band token inside the feature name, so "alpha_relative"
// and "frontal_alpha_power" both pick up the alpha prior.
var taskExpectations = map[string]map[string]int{
	"mental_arithmetic": {
		"alpha": -1,
		"beta":  +1,
	},
	"working_memory": {
		"alpha": -1,
		"theta": +1,
	},
	"meditation": {
		"alpha": +1,
		"theta": +1,
	},
	"relaxation": {
		"alpha": +1,
		"beta":  -1,
	},
	"visual_attention": {
		"alpha": -1,
		"gamma": +1,
	},
}

var bandTokens = []string{"delta", "theta", "alpha", "beta", "gamma"}

// ExpectedDirection returns the directional prior for a task/feature pair:
// -1 expected decrease, +1 expected increase, 0 no prior. Ratio features get
// no prior; the sign of a ratio change depends on both bands.
func ExpectedDirection(task, feature string) int {
	expectations, ok := taskExpectations[strings.ToLower(task)]
	if !ok {
		return 0
	}
	f := strings.ToLower(feature)
	if strings.Contains(f, "ratio") {
		return 0
	}
	for _, band := range bandTokens {
		if strings.Contains(f, band) {
			return expectations[band]
		}
	}
	return 0
}

// effectThreshold returns the band/ratio-specific Cohen's d acceptance
// threshold for a feature.
func effectThreshold(feature string) float64 {
	f := strings.ToLower(feature)
	switch {
	case strings.Contains(f, "ratio"):
		return 0.30
	case strings.Contains(f, "beta"):
		return 0.35
	case strings.Contains(f, "alpha"):
		return 0.25
	default:
		return 0.30
	}
}

// percentThreshold returns the percent-change acceptance threshold: relative
// features move on a tighter band than absolute power values.
func percentThreshold(feature string) float64 {
	if isRelativeFeature(feature) {
		return 5.0
	}
	return 10.0
}

func isRelativeFeature(feature string) bool {
	f := strings.ToLower(feature)
	return strings.Contains(f, "relative") || strings.Contains(f, "_rel")
}
