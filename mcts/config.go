package mcts

import "encoding/json"

// Config configures a Tree / sequential Search / ParallelSearch instance.
// It mirrors the "mcts" player's data schema.
type Config struct {
	ExplorationFactor float32     `json:"explorationFactor" validate:"gte=0"`
	GoalMatrix        [][]float32 `json:"goalMatrix" validate:"required,min=1"`
	Iterations        int         `json:"iterations" validate:"gt=0"`
	Parallel          bool        `json:"parallel"`
	Workers           int         `json:"workers" validate:"gte=0"`

	// RootNoiseAlpha/RootNoiseEpsilon add AlphaZero-style Dirichlet noise to
	// root child selection, biasing the first few iterations away from
	// always re-exploring the same early favourite. Zero alpha disables it.
	RootNoiseAlpha   float64 `json:"rootNoiseAlpha,omitempty" validate:"gte=0"`
	RootNoiseEpsilon float32 `json:"rootNoiseEpsilon,omitempty" validate:"gte=0,lte=1"`

	ActionGeneratorType string          `json:"-"`
	ActionGeneratorData json.RawMessage `json:"-"`
	RolloutPlayerType   string          `json:"-"`
	RolloutPlayerData   json.RawMessage `json:"-"`
}

// DefaultConfig returns a conservative single-threaded configuration; callers
// building a player always override ExplorationFactor/GoalMatrix/Iterations
// from the request payload.
func DefaultConfig() Config {
	return Config{
		ExplorationFactor: 1.0,
		Iterations:        1000,
	}
}
