package tracking

import "time"

// Config holds tracker tuning.
type Config struct {
	// Variant selection
	Kind Kind // Variant used at session start

	// Swapping
	ConfidenceFloor float64       // Below this a frame counts as weak (0-1)
	SwapAfter       time.Duration // Weak for this long → try the next variant

	// Search
	SearchScale float64 // Correlation search window, as a multiple of the box size
	MinBoxSide  int     // Reject init regions smaller than this (px)

	// Confidence scoring
	Score ScoreConfig
}

// ScoreConfig weights the evidence that goes into a confidence value.
type ScoreConfig struct {
	NativeWeight  float64 // Algorithm's own match score
	FeatureWeight float64 // Trackable corners inside the box
	MotionWeight  float64 // Frame-to-frame motion consistency

	FeatureTarget int     // Corner count that scores a full 1.0
	MaxSpeed      float64 // Centre speed (frame diagonals per second) that scores 0
	MaxSizeChange float64 // Relative area jump treated as occlusion
	OcclusionCap  float64 // Confidence ceiling after an occlusion jump
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		Kind: KindCorrelation,

		ConfidenceFloor: 0.3,
		SwapAfter:       500 * time.Millisecond,

		SearchScale: 2.5,
		MinBoxSide:  8,

		Score: DefaultScoreConfig(),
	}
}

// DefaultScoreConfig returns the default evidence weights.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		NativeWeight:  0.6,
		FeatureWeight: 0.2,
		MotionWeight:  0.2,

		FeatureTarget: 20,
		MaxSpeed:      1.5,
		MaxSizeChange: 0.5,
		OcclusionCap:  0.05,
	}
}
