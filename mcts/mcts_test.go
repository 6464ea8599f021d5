package mcts_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardgameai/mctsd/actiongen"
	"github.com/boardgameai/mctsd/game"
	"github.com/boardgameai/mctsd/mcts"
	_ "github.com/boardgameai/mctsd/player/randmove"
)

func tttConfig() (game.Game, game.State) {
	g, err := game.Create(game.TypeTagTicTacToe, nil)
	if err != nil {
		panic(err)
	}
	return g, g.CreateDefaultState()
}

func baseConfig() mcts.Config {
	return mcts.Config{
		ExplorationFactor:   1.4,
		GoalMatrix:          [][]float32{{1, 0}, {0, 1}},
		Iterations:          200,
		RolloutPlayerType:   "random_move",
		RolloutPlayerData:   mustJSON(map[string]interface{}{"actionGenerator": map[string]interface{}{"type": "default"}}),
		ActionGeneratorType: "default",
	}
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func TestSearchReturnsALegalBestAction(t *testing.T) {
	g, s := tttConfig()
	ag, err := actiongen.Create("default", nil)
	require.NoError(t, err)

	tree := mcts.Search(g, ag, s, baseConfig())
	a := tree.BestAction()
	require.NotNil(t, a)
	assert.True(t, g.IsValidAction(s, a))
}

func TestRootDetailsCoverEveryFirstMove(t *testing.T) {
	g, s := tttConfig()
	ag, err := actiongen.Create("default", nil)
	require.NoError(t, err)

	tree := mcts.Search(g, ag, s, baseConfig())
	total, details := tree.RootDetails()
	assert.Equal(t, uint64(200), total)
	assert.Len(t, details, 9) // empty 3x3 board: 9 legal first moves
	var sum uint64
	for _, d := range details {
		sum += d.Rollouts
	}
	assert.Equal(t, total, sum)
}

func TestExportDOTProducesNonEmptyGraph(t *testing.T) {
	g, s := tttConfig()
	ag, err := actiongen.Create("default", nil)
	require.NoError(t, err)

	tree := mcts.Search(g, ag, s, baseConfig())
	dot, err := tree.ExportDOT(0)
	require.NoError(t, err)
	assert.Contains(t, dot, "digraph")
}

func TestRootNoiseDoesNotCorruptRollingStatistics(t *testing.T) {
	g, s := tttConfig()
	ag, err := actiongen.Create("default", nil)
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.RootNoiseAlpha = 0.3
	cfg.RootNoiseEpsilon = 0.25

	tree := mcts.Search(g, ag, s, cfg)
	total, details := tree.RootDetails()
	assert.Equal(t, uint64(200), total)
	var sum uint64
	for _, d := range details {
		sum += d.Rollouts
		assert.GreaterOrEqual(t, d.Score, float32(0))
		assert.LessOrEqual(t, d.Score, float32(1))
	}
	assert.Equal(t, total, sum)

	a := tree.BestAction()
	require.NotNil(t, a)
	assert.True(t, g.IsValidAction(s, a))
}
